package constants

// DomainStatus represents the state of a domain in the provisioning pipeline.
// Status values use snake_case for JSON serialization compatibility.
type DomainStatus string

// Domain status constants define the valid states a domain can be in.
// These follow the provisioning state machine:
//
//	Pending → ForwardEmailAdded → DnsConfigured → Verifying → Verified →
//	AliasesCreated → Completed
//
// with Failed reachable from every non-terminal state.
const (
	// DomainStatusPending indicates a domain is registered with the store
	// but no provisioning work has started.
	DomainStatusPending DomainStatus = "pending"

	// DomainStatusForwardEmailAdded indicates the domain exists at the mail
	// provider and its provider ID has been recorded.
	DomainStatusForwardEmailAdded DomainStatus = "forward_email_added"

	// DomainStatusDNSConfigured indicates every verification DNS record
	// required by the mail provider exists in the DNS zone.
	DomainStatusDNSConfigured DomainStatus = "dns_configured"

	// DomainStatusVerifying indicates a verification check has been
	// initiated and the pipeline is polling for propagation.
	DomainStatusVerifying DomainStatus = "verifying"

	// DomainStatusVerified indicates the mail provider confirmed the
	// verification records resolved successfully.
	DomainStatusVerified DomainStatus = "verified"

	// DomainStatusAliasesCreated indicates every configured alias exists
	// for the domain.
	DomainStatusAliasesCreated DomainStatus = "aliases_created"

	// DomainStatusCompleted indicates terminal success.
	DomainStatusCompleted DomainStatus = "completed"

	// DomainStatusFailed indicates a permanent error or an exhausted retry or
	// polling budget. Terminal; re-processing re-enters from Pending logic.
	DomainStatusFailed DomainStatus = "failed"
)

// String returns the string representation of the DomainStatus.
// This implements fmt.Stringer for convenient logging and debugging.
func (s DomainStatus) String() string {
	return string(s)
}

// PipelineOrder lists the success-path statuses in pipeline order.
// Failed is not part of the success path and is listed separately.
//
//nolint:gochecknoglobals // Read-only ordered lookup table
var PipelineOrder = []DomainStatus{
	DomainStatusPending,
	DomainStatusForwardEmailAdded,
	DomainStatusDNSConfigured,
	DomainStatusVerifying,
	DomainStatusVerified,
	DomainStatusAliasesCreated,
	DomainStatusCompleted,
}

// AllDomainStatuses lists every valid status, success path first.
//
//nolint:gochecknoglobals // Read-only lookup table
var AllDomainStatuses = append(append([]DomainStatus{}, PipelineOrder...), DomainStatusFailed)

// validStatuses enables O(1) membership checks for status parsing.
//
//nolint:gochecknoglobals // Read-only lookup table derived from AllDomainStatuses
var validStatuses = func() map[DomainStatus]bool {
	m := make(map[DomainStatus]bool, len(AllDomainStatuses))
	for _, s := range AllDomainStatuses {
		m[s] = true
	}
	return m
}()

// IsValidDomainStatus reports whether the given string is a known status.
// Unknown strings in a persisted state file are treated as corruption
// rather than silently coerced.
func IsValidDomainStatus(s string) bool {
	return validStatuses[DomainStatus(s)]
}
