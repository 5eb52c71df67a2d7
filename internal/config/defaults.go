package config

import (
	"github.com/steadycalls/mailforge/internal/constants"
)

// DefaultConfig returns a Config populated with built-in defaults.
// Provider credentials have no defaults and must be supplied by the
// environment or a config file.
func DefaultConfig() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxRetries:     constants.DefaultMaxRetries,
			InitialDelay:   constants.DefaultInitialRetryDelay,
			MaxDelay:       constants.DefaultMaxRetryDelay,
			RateLimitDelay: constants.DefaultRateLimitDelay,
		},
		Verification: VerificationConfig{
			PollInterval: constants.DefaultVerificationPollInterval,
			MaxAttempts:  constants.DefaultVerificationMaxAttempts,
			Timeout:      constants.DefaultVerificationTimeout,
		},
		Provisioning: ProvisioningConfig{
			Concurrency: constants.DefaultConcurrentDomains,
		},
	}
}
