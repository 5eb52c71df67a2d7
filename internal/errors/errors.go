// Package errors provides centralized error handling for mailforge.
//
// This package defines sentinel errors used for programmatic error
// categorization throughout the application. All error types can be checked
// using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrPermanent indicates a 4xx client error from a provider that must
	// not be retried (400, 401, 403, 404, 409).
	ErrPermanent = errors.New("permanent provider error")

	// ErrRetriesExhausted indicates the retry budget for an outbound call
	// was consumed without a successful response.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrRateLimited indicates a provider responded with 429. The invoker
	// absorbs these internally; the sentinel surfaces only in logs and tests.
	ErrRateLimited = errors.New("rate limited")

	// ErrVerificationTimeout indicates DNS verification polling hit either
	// its attempt bound or its wall-clock bound without success.
	ErrVerificationTimeout = errors.New("verification polling timeout")

	// ErrStateCorrupted indicates the persisted state file could not be
	// parsed or validated. Recovered by backup-and-reset, never fatal.
	ErrStateCorrupted = errors.New("state file corrupted")

	// ErrInvalidTransition indicates a disallowed domain state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrDomainNotFound indicates the requested domain does not exist in the
	// state store.
	ErrDomainNotFound = errors.New("domain not found")

	// ErrZoneNotFound indicates the DNS provider has no zone matching the
	// domain name.
	ErrZoneNotFound = errors.New("dns zone not found")

	// ErrConfigMissingCredential indicates a required provider credential is
	// absent from the configuration. Fatal at startup.
	ErrConfigMissingCredential = errors.New("missing required credential")

	// ErrConfigInvalid indicates a configuration value is out of range or
	// inconsistent.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrEmptyValue indicates a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrInvalidPriority indicates an MX priority outside 1-65535, or a
	// priority supplied for a non-MX record type.
	ErrInvalidPriority = errors.New("invalid record priority")

	// ErrProviderResponse indicates a provider returned a well-formed
	// response that reports failure (e.g. a Cloudflare success=false
	// envelope).
	ErrProviderResponse = errors.New("provider reported failure")
)
