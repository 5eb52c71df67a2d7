// Package constants provides centralized constant values used throughout
// mailforge. This package is the single source of truth for shared constants
// and MUST NOT import any other internal packages.
package constants

import "time"

// File names used by mailforge for persistence.
const (
	// StateFileName is the default name of the JSON file that stores the
	// provisioning state for every managed domain.
	StateFileName = "mailforge-state.json"

	// CLILogFileName is the name of the rotating CLI log file.
	CLILogFileName = "mailforge.log"
)

// Directory names and paths used by mailforge for organizing data.
const (
	// MailforgeHome is the hidden directory name where mailforge stores its
	// data. Created in the user's home directory unless MAILFORGE_HOME is set.
	MailforgeHome = ".mailforge"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"
)

// Retry configuration defaults for outbound API calls.
const (
	// DefaultMaxRetries is the maximum number of attempts for a single
	// outbound HTTP call before giving up with a retries-exhausted error.
	DefaultMaxRetries = 5

	// DefaultInitialRetryDelay is the backoff delay before the first retry.
	// Subsequent retries double this value up to DefaultMaxRetryDelay.
	DefaultInitialRetryDelay = 2 * time.Second

	// DefaultMaxRetryDelay caps the exponential backoff growth.
	DefaultMaxRetryDelay = 60 * time.Second

	// DefaultRateLimitDelay is the fixed pause applied when a provider
	// responds with 429. Rate-limit waits do not grow exponentially.
	DefaultRateLimitDelay = 30 * time.Second

	// DefaultRetryJitterMax is the upper bound of the random jitter added to
	// each exponential backoff delay.
	DefaultRetryJitterMax = 5 * time.Second
)

// Verification polling defaults.
const (
	// DefaultVerificationPollInterval is how often the mail provider's
	// verify-records endpoint is polled while waiting for DNS propagation.
	DefaultVerificationPollInterval = 30 * time.Second

	// DefaultVerificationMaxAttempts bounds the number of verification polls.
	DefaultVerificationMaxAttempts = 40

	// DefaultVerificationTimeout is the wall-clock bound on verification
	// polling. Whichever of the two bounds trips first ends the wait.
	DefaultVerificationTimeout = 1200 * time.Second
)

// Provisioning defaults.
const (
	// DefaultConcurrentDomains is how many domains are provisioned in
	// parallel by the pipeline engine.
	DefaultConcurrentDomains = 10
)

// Log rotation settings for the CLI log file.
const (
	LogMaxSizeMB  = 10
	LogMaxBackups = 3
	LogMaxAgeDays = 30
	LogCompress   = true
)

// StateSchemaVersion is the version of the persisted state file schema.
// Bump when the on-disk shape of DomainRecord changes.
const StateSchemaVersion = 1
