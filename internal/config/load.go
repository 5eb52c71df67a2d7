package config

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/steadycalls/mailforge/internal/errors"
)

// newViperInstance creates a Viper instance with the standard mailforge
// setup: defaults, MAILFORGE_ env prefix, and key replacer.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MAILFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// isConfigNotFoundError returns true if the error is a viper config file
// not found error.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// Load reads configuration from all available sources with proper
// precedence. Configuration is loaded in the following order (highest
// precedence first):
//  1. Environment variables (MAILFORGE_* prefix)
//  2. Config file (configPath, or ~/.mailforge/config.yaml when empty)
//  3. Built-in defaults
//
// A missing config file is not an error; missing credentials are caught by
// Validate.
func Load(ctx context.Context, configPath string) (*Config, error) {
	v := newViperInstance()

	path := configPath
	if path == "" {
		globalPath, err := GlobalConfigPath()
		if err == nil && fileExists(globalPath) {
			path = globalPath
		}
	} else if !fileExists(path) {
		return nil, errors.Wrapf(errors.ErrConfigInvalid, "config file not found: %s", path)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	cfg, err := unmarshalAndValidate(v)
	if err != nil {
		return nil, err
	}

	if cfg.State.Path == "" {
		statePath, pathErr := DefaultStatePath()
		if pathErr != nil {
			return nil, pathErr
		}
		cfg.State.Path = statePath
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Str("config_file", path).
		Int("retry.max_retries", cfg.Retry.MaxRetries).
		Dur("verification.poll_interval", cfg.Verification.PollInterval).
		Int("provisioning.concurrency", cfg.Provisioning.Concurrency).
		Str("state.path", cfg.State.Path).
		Msg("configuration loaded")

	return cfg, nil
}

// unmarshalAndValidate unmarshals viper config into a Config and
// validates it.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// fileExists returns true if the file at path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// setDefaults configures all default values on the Viper instance.
// These defaults match the values from DefaultConfig().
// IMPORTANT: Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	// Provider defaults
	v.SetDefault("providers.forwardemail.api_key", "")
	v.SetDefault("providers.forwardemail.base_url", "")
	v.SetDefault("providers.cloudflare.api_token", "")
	v.SetDefault("providers.cloudflare.base_url", "")

	// Retry defaults
	v.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	v.SetDefault("retry.initial_delay", defaults.Retry.InitialDelay.String())
	v.SetDefault("retry.max_delay", defaults.Retry.MaxDelay.String())
	v.SetDefault("retry.rate_limit_delay", defaults.Retry.RateLimitDelay.String())

	// Verification defaults
	v.SetDefault("verification.poll_interval", defaults.Verification.PollInterval.String())
	v.SetDefault("verification.max_attempts", defaults.Verification.MaxAttempts)
	v.SetDefault("verification.timeout", defaults.Verification.Timeout.String())

	// Provisioning defaults
	v.SetDefault("provisioning.concurrency", defaults.Provisioning.Concurrency)
	v.SetDefault("provisioning.aliases", []map[string]any{})
	v.SetDefault("provisioning.enhanced_protection", false)

	// State defaults
	v.SetDefault("state.path", "")
}

// viperDecoderOption returns the decoder options for Viper unmarshal.
// This configures mapstructure to handle time.Duration conversion from
// strings.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}
