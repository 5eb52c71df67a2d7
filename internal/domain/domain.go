// Package domain provides shared domain types for the mailforge provisioning
// pipeline. These types are used across all internal packages to ensure
// consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case.
package domain

import (
	"time"

	"github.com/steadycalls/mailforge/internal/constants"
)

// DomainRecord tracks one domain's progress through the provisioning
// pipeline. The state store owns the authoritative copy; every mutation must
// go through the store's Update so persistence stays consistent with memory.
//
// Example JSON representation:
//
//	{
//	    "domain": "example.com",
//	    "status": "dns_configured",
//	    "mail_provider_domain_id": "64a1f...",
//	    "dns_zone_id": "023e1...",
//	    "dns_records": [...],
//	    "attempts": 1,
//	    "last_attempt_at": "2026-03-01T10:00:00.000Z",
//	    "errors": []
//	}
type DomainRecord struct {
	// Domain is the immutable identity key.
	Domain string `json:"domain"`

	// Status is the current state in the provisioning pipeline.
	Status constants.DomainStatus `json:"status"`

	// MailProviderDomainID is the opaque identifier assigned by the mail
	// provider. Set once known, never cleared.
	MailProviderDomainID string `json:"mail_provider_domain_id,omitempty"`

	// DNSZoneID is the opaque zone identifier at the DNS provider.
	// Set once known, never cleared.
	DNSZoneID string `json:"dns_zone_id,omitempty"`

	// DNSRecords is the ordered sequence of records created so far.
	DNSRecords []DNSRecord `json:"dns_records,omitempty"`

	// Aliases is the ordered sequence of aliases created so far.
	Aliases []Alias `json:"aliases,omitempty"`

	// Attempts counts processing attempts, incremented once per attempt
	// regardless of outcome. Monotonically increasing.
	Attempts int `json:"attempts"`

	// LastAttemptAt is when processing last began (nil before first attempt).
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// CompletedAt is set exactly when Status becomes Completed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Errors is the append-only audit trail of stage failures.
	// Never rewritten or truncated.
	Errors []ProvisionError `json:"errors,omitempty"`

	// Metadata stores provider-specific extras.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the domain was first registered with the store.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// DNSRecord describes a DNS record the pipeline created or confirmed in the
// domain's zone.
type DNSRecord struct {
	// ID is the record identifier at the DNS provider.
	ID string `json:"id,omitempty"`

	// Type is the record type (MX, TXT, CNAME, ...).
	Type string `json:"type"`

	// Name is the record name.
	Name string `json:"name"`

	// Content is the record value. Matching during idempotent
	// get-or-create is content-exact.
	Content string `json:"content"`

	// Priority holds the MX priority (1-65535); nil for other types.
	Priority *int `json:"priority,omitempty"`

	// Proxied reports whether the record is proxied at the DNS provider.
	// Always false for TXT and MX records.
	Proxied bool `json:"proxied"`

	// TTL is the record time-to-live in seconds.
	TTL int `json:"ttl,omitempty"`
}

// Alias describes a forwarding alias created at the mail provider.
type Alias struct {
	// ID is the alias identifier at the mail provider.
	ID string `json:"id,omitempty"`

	// Name is the local part of the alias address.
	Name string `json:"name"`

	// Recipients are the forwarding destinations.
	Recipients []string `json:"recipients"`

	// Description is a free-form label shown in the provider UI.
	Description string `json:"description,omitempty"`

	// Labels tag the alias for grouping.
	Labels []string `json:"labels,omitempty"`
}

// ProvisionError is one entry in a domain's error audit trail.
type ProvisionError struct {
	// Timestamp is when the failure was recorded (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Stage names the pipeline stage that failed (the status being
	// processed, e.g. "verifying").
	Stage string `json:"stage"`

	// Message is the human-readable failure description.
	Message string `json:"message"`

	// Code is a machine-readable failure category.
	Code string `json:"code"`

	// Details carries structured context such as HTTP status codes.
	Details map[string]any `json:"details,omitempty"`
}

// NewDomainRecord creates a Pending record for the given domain name.
func NewDomainRecord(name string, now time.Time) *DomainRecord {
	return &DomainRecord{
		Domain:    name,
		Status:    constants.DomainStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the record. The state store hands out clones
// so callers cannot mutate the authoritative copy behind the store's back.
func (r *DomainRecord) Clone() *DomainRecord {
	if r == nil {
		return nil
	}
	c := *r

	if r.LastAttemptAt != nil {
		t := *r.LastAttemptAt
		c.LastAttemptAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}

	if r.DNSRecords != nil {
		c.DNSRecords = make([]DNSRecord, len(r.DNSRecords))
		for i, rec := range r.DNSRecords {
			c.DNSRecords[i] = rec
			if rec.Priority != nil {
				p := *rec.Priority
				c.DNSRecords[i].Priority = &p
			}
		}
	}

	if r.Aliases != nil {
		c.Aliases = make([]Alias, len(r.Aliases))
		for i, a := range r.Aliases {
			c.Aliases[i] = a
			c.Aliases[i].Recipients = append([]string(nil), a.Recipients...)
			if a.Labels != nil {
				c.Aliases[i].Labels = append([]string(nil), a.Labels...)
			}
		}
	}

	if r.Errors != nil {
		c.Errors = make([]ProvisionError, len(r.Errors))
		for i, e := range r.Errors {
			c.Errors[i] = e
			if e.Details != nil {
				d := make(map[string]any, len(e.Details))
				for k, v := range e.Details {
					d[k] = v
				}
				c.Errors[i].Details = d
			}
		}
	}

	if r.Metadata != nil {
		m := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			m[k] = v
		}
		c.Metadata = m
	}

	return &c
}

// RecordError appends a failure entry to the audit trail.
func (r *DomainRecord) RecordError(now time.Time, stage, message, code string, details map[string]any) {
	r.Errors = append(r.Errors, ProvisionError{
		Timestamp: now,
		Stage:     stage,
		Message:   message,
		Code:      code,
		Details:   details,
	})
}

// HasDNSRecord reports whether an identical record (type, name, content)
// is already tracked on the domain.
func (r *DomainRecord) HasDNSRecord(recType, name, content string) bool {
	for _, rec := range r.DNSRecords {
		if rec.Type == recType && rec.Name == name && rec.Content == content {
			return true
		}
	}
	return false
}

// HasAlias reports whether an alias with the given name is already tracked.
func (r *DomainRecord) HasAlias(name string) bool {
	for _, a := range r.Aliases {
		if a.Name == name {
			return true
		}
	}
	return false
}
