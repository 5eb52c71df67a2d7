// Package pipeline drives domains through the provisioning state machine.
//
// This file implements the state machine itself, which enforces valid
// transitions and keeps the record's timestamps consistent.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, std lib
//   - MUST NOT import: internal/state, internal/cli
package pipeline

import (
	"fmt"
	"time"

	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/domain"
	mferrors "github.com/steadycalls/mailforge/internal/errors"
)

// ValidTransitions defines all allowed state transitions in the
// provisioning lifecycle. Format: from_status -> []to_statuses
//
// The state machine is linear:
//
//	Pending → ForwardEmailAdded → DnsConfigured → Verifying → Verified →
//	AliasesCreated → Completed
//
// with Failed reachable from every non-terminal state. Completed and
// Failed are terminal; a retried Failed domain re-enters from Pending
// logic via an explicit reset, not a transition.
//
//nolint:gochecknoglobals // Exported for testing and read-only lookup table
var ValidTransitions = map[constants.DomainStatus][]constants.DomainStatus{
	constants.DomainStatusPending: {
		constants.DomainStatusForwardEmailAdded,
		constants.DomainStatusFailed,
	},
	constants.DomainStatusForwardEmailAdded: {
		constants.DomainStatusDNSConfigured,
		constants.DomainStatusFailed,
	},
	constants.DomainStatusDNSConfigured: {
		constants.DomainStatusVerifying,
		constants.DomainStatusFailed,
	},
	constants.DomainStatusVerifying: {
		constants.DomainStatusVerified,
		constants.DomainStatusFailed,
	},
	constants.DomainStatusVerified: {
		constants.DomainStatusAliasesCreated,
		constants.DomainStatusFailed,
	},
	constants.DomainStatusAliasesCreated: {
		constants.DomainStatusCompleted,
		constants.DomainStatusFailed,
	},
}

// terminalStatuses defines states where no further transitions are allowed.
// These are the statuses NOT present as keys in ValidTransitions,
// duplicated here for O(1) lookup.
//
//nolint:gochecknoglobals // Read-only lookup table for terminal state checks
var terminalStatuses = map[constants.DomainStatus]bool{
	constants.DomainStatusCompleted: true,
	constants.DomainStatusFailed:    true,
}

// IsValidTransition checks if a transition from one status to another is
// allowed. Returns false for transitions from terminal states or to the
// same state.
func IsValidTransition(from, to constants.DomainStatus) bool {
	if from == to {
		return false
	}
	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false // Terminal state or unknown state
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus returns true for states where no further transitions
// are allowed: Completed, Failed.
func IsTerminalStatus(status constants.DomainStatus) bool {
	return terminalStatuses[status]
}

// NextStatus returns the success-path successor of the given status, or
// empty string for terminal states.
func NextStatus(from constants.DomainStatus) constants.DomainStatus {
	targets, exists := ValidTransitions[from]
	if !exists {
		return ""
	}
	return targets[0]
}

// Transition validates and applies a state transition to the record.
// CompletedAt is set exactly when the record reaches Completed.
// The caller is responsible for persisting the updated record.
func Transition(rec *domain.DomainRecord, to constants.DomainStatus, now time.Time) error {
	if rec == nil {
		return fmt.Errorf("%w: record is nil", mferrors.ErrInvalidTransition)
	}

	from := rec.Status
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s",
			mferrors.ErrInvalidTransition, from, to)
	}

	rec.Status = to
	rec.UpdatedAt = now
	if to == constants.DomainStatusCompleted {
		t := now
		rec.CompletedAt = &t
	}
	return nil
}

// ResetForRetry returns a Failed record to Pending so the driver can run
// it through the pipeline again. The error history and any recorded
// provider identifiers are kept: the idempotent get-or-create operations
// make re-entry safe even when some DNS records already exist.
func ResetForRetry(rec *domain.DomainRecord, now time.Time) error {
	if rec == nil {
		return fmt.Errorf("%w: record is nil", mferrors.ErrInvalidTransition)
	}
	if rec.Status != constants.DomainStatusFailed {
		return fmt.Errorf("%w: cannot retry domain in state %s",
			mferrors.ErrInvalidTransition, rec.Status)
	}

	rec.Status = constants.DomainStatusPending
	rec.CompletedAt = nil
	rec.UpdatedAt = now
	return nil
}
