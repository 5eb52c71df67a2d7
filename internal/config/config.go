// Package config provides configuration management for mailforge with
// layered precedence.
//
// Configuration sources are loaded in the following order (highest
// precedence first):
//  1. Environment variables (MAILFORGE_* prefix)
//  2. Config file (--config flag, or ~/.mailforge/config.yaml)
//  3. Built-in defaults
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure for mailforge.
type Config struct {
	// Providers contains credentials and endpoints for the mail and DNS
	// providers.
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`

	// Retry contains settings for the resilient HTTP invoker.
	Retry RetryConfig `yaml:"retry" mapstructure:"retry"`

	// Verification contains settings for DNS verification polling.
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`

	// Provisioning contains settings for the pipeline engine.
	Provisioning ProvisioningConfig `yaml:"provisioning" mapstructure:"provisioning"`

	// State contains settings for the persisted state store.
	State StateConfig `yaml:"state" mapstructure:"state"`
}

// ProvidersConfig groups the per-provider settings.
type ProvidersConfig struct {
	ForwardEmail ForwardEmailConfig `yaml:"forwardemail" mapstructure:"forwardemail"`
	Cloudflare   CloudflareConfig   `yaml:"cloudflare" mapstructure:"cloudflare"`
}

// ForwardEmailConfig contains settings for the Forward Email API client.
type ForwardEmailConfig struct {
	// APIKey is the Forward Email API key, sent as HTTP basic auth.
	// Usually supplied via MAILFORGE_PROVIDERS_FORWARDEMAIL_API_KEY.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// BaseURL overrides the API endpoint. Empty means the public API.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CloudflareConfig contains settings for the Cloudflare API client.
type CloudflareConfig struct {
	// APIToken is the Cloudflare API token, sent as a bearer token.
	// Usually supplied via MAILFORGE_PROVIDERS_CLOUDFLARE_API_TOKEN.
	APIToken string `yaml:"api_token" mapstructure:"api_token"`

	// BaseURL overrides the API endpoint. Empty means the public API.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// RetryConfig contains settings for outbound HTTP retry behavior.
type RetryConfig struct {
	// MaxRetries is the attempt budget per call.
	// Default: 5
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	// InitialDelay is the backoff before the first retry. Subsequent
	// retries double it up to MaxDelay.
	// Default: 2s
	InitialDelay time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`

	// MaxDelay caps exponential backoff growth.
	// Default: 60s
	MaxDelay time.Duration `yaml:"max_delay" mapstructure:"max_delay"`

	// RateLimitDelay is the fixed pause after a 429 response.
	// Default: 30s
	RateLimitDelay time.Duration `yaml:"rate_limit_delay" mapstructure:"rate_limit_delay"`
}

// VerificationConfig contains settings for DNS verification polling.
type VerificationConfig struct {
	// PollInterval is the delay between verification polls.
	// Default: 30s
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// MaxAttempts bounds the number of verification polls.
	// Default: 40
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// Timeout is the wall-clock bound on verification polling.
	// Default: 20m
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AliasConfig describes one forwarding alias to ensure on every domain.
type AliasConfig struct {
	// Name is the local part of the alias address.
	Name string `yaml:"name" mapstructure:"name"`

	// Recipients are the destination addresses.
	Recipients []string `yaml:"recipients" mapstructure:"recipients"`

	// Description is free-form text stored on the alias.
	Description string `yaml:"description,omitempty" mapstructure:"description"`

	// Labels tag the alias at the provider.
	Labels []string `yaml:"labels,omitempty" mapstructure:"labels"`
}

// ProvisioningConfig contains settings for the pipeline engine.
type ProvisioningConfig struct {
	// Concurrency is how many domains are processed in parallel.
	// Default: 10
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`

	// Aliases are created on every domain once it verifies.
	Aliases []AliasConfig `yaml:"aliases" mapstructure:"aliases"`

	// EnhancedProtection enables the provider's protection flag on each
	// domain after verification.
	// Default: false
	EnhancedProtection bool `yaml:"enhanced_protection" mapstructure:"enhanced_protection"`
}

// StateConfig contains settings for the persisted state store.
type StateConfig struct {
	// Path is the location of the JSON state file.
	// Default: ~/.mailforge/mailforge-state.json
	Path string `yaml:"path" mapstructure:"path"`
}
