package config

import (
	"strings"
	"time"

	"github.com/steadycalls/mailforge/internal/errors"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
//
// Validation rules:
//   - retry.max_retries must be at least 1
//   - retry delays must be positive and initial_delay <= max_delay
//   - verification poll interval, attempts, and timeout must be positive
//   - provisioning.concurrency must be at least 1
//   - every alias needs a name and at least one recipient
//
// Provider credentials are checked separately by ValidateCredentials, so
// read-only commands work without them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.Wrap(errors.ErrConfigInvalid, "config is nil")
	}

	if err := validateRetryConfig(&cfg.Retry); err != nil {
		return err
	}
	if err := validateVerificationConfig(&cfg.Verification); err != nil {
		return err
	}
	if err := validateProvisioningConfig(&cfg.Provisioning); err != nil {
		return err
	}

	return nil
}

// ValidateCredentials checks that both provider credentials are present.
// Called only by commands that talk to the providers.
func ValidateCredentials(cfg *Config) error {
	if strings.TrimSpace(cfg.Providers.ForwardEmail.APIKey) == "" {
		return errors.Wrap(errors.ErrConfigMissingCredential,
			"providers.forwardemail.api_key is required (set MAILFORGE_PROVIDERS_FORWARDEMAIL_API_KEY)")
	}
	if strings.TrimSpace(cfg.Providers.Cloudflare.APIToken) == "" {
		return errors.Wrap(errors.ErrConfigMissingCredential,
			"providers.cloudflare.api_token is required (set MAILFORGE_PROVIDERS_CLOUDFLARE_API_TOKEN)")
	}
	return nil
}

// validateRetryConfig checks retry-specific configuration values.
func validateRetryConfig(cfg *RetryConfig) error {
	if cfg.MaxRetries < 1 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"retry.max_retries must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"retry.initial_delay must be positive, got %s", cfg.InitialDelay)
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"retry.max_delay must be at least retry.initial_delay, got %s < %s",
			cfg.MaxDelay, cfg.InitialDelay)
	}
	if cfg.RateLimitDelay <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"retry.rate_limit_delay must be positive, got %s", cfg.RateLimitDelay)
	}
	return nil
}

// validateVerificationConfig checks verification-specific configuration
// values.
func validateVerificationConfig(cfg *VerificationConfig) error {
	minInterval := 1 * time.Second
	if cfg.PollInterval < minInterval {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"verification.poll_interval must be at least %s, got %s",
			minInterval, cfg.PollInterval)
	}
	if cfg.MaxAttempts < 1 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"verification.max_attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"verification.timeout must be positive, got %s", cfg.Timeout)
	}
	return nil
}

// validateProvisioningConfig checks provisioning-specific configuration
// values.
func validateProvisioningConfig(cfg *ProvisioningConfig) error {
	maxConcurrency := 100
	if cfg.Concurrency < 1 || cfg.Concurrency > maxConcurrency {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"provisioning.concurrency must be between 1 and %d, got %d",
			maxConcurrency, cfg.Concurrency)
	}

	for i, alias := range cfg.Aliases {
		if strings.TrimSpace(alias.Name) == "" {
			return errors.Wrapf(errors.ErrConfigInvalid,
				"provisioning.aliases[%d].name must not be empty", i)
		}
		if len(alias.Recipients) == 0 {
			return errors.Wrapf(errors.ErrConfigInvalid,
				"provisioning.aliases[%d] ('%s') needs at least one recipient", i, alias.Name)
		}
		for _, recipient := range alias.Recipients {
			if !strings.Contains(recipient, "@") {
				return errors.Wrapf(errors.ErrConfigInvalid,
					"provisioning.aliases[%d] ('%s') has invalid recipient '%s'",
					i, alias.Name, recipient)
			}
		}
	}

	return nil
}
