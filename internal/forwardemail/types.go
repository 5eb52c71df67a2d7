package forwardemail

import "time"

// Domain is a domain registered with the mail provider.
type Domain struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	IsVerified         bool      `json:"is_verified"`
	HasMXRecord        bool      `json:"has_mx_record"`
	HasTXTRecord       bool      `json:"has_txt_record"`
	Plan               string    `json:"plan,omitempty"`
	EnhancedProtection bool      `json:"has_adult_content_protection,omitempty"`
	CreatedAt          time.Time `json:"created_at,omitempty"`
}

// RecordSpec is one DNS record the mail provider requires in the domain's
// zone before it will verify the domain.
type RecordSpec struct {
	// Type is the record type (MX or TXT for verification records).
	Type string `json:"type"`

	// Name is the record name, usually the bare domain.
	Name string `json:"name"`

	// Content is the exact record value the provider expects.
	Content string `json:"content"`

	// Priority is the MX priority; zero for non-MX records.
	Priority int `json:"priority,omitempty"`

	// TTL is the suggested time-to-live in seconds.
	TTL int `json:"ttl,omitempty"`
}

// VerifyRecords is the mail provider's verify-records response: the records
// it requires plus whether it currently sees them as propagated.
type VerifyRecords struct {
	Verified bool         `json:"verified"`
	MX       bool         `json:"mx"`
	TXT      bool         `json:"txt"`
	Records  []RecordSpec `json:"records"`
	Message  string       `json:"message,omitempty"`
}

// Alias is a forwarding alias on a domain.
type Alias struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Recipients  []string `json:"recipients"`
	Description string   `json:"description,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	IsEnabled   bool     `json:"is_enabled"`
}
