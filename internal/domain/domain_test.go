package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steadycalls/mailforge/internal/constants"
)

func intPtr(v int) *int { return &v }

func sampleRecord(now time.Time) *DomainRecord {
	rec := NewDomainRecord("example.com", now)
	rec.Status = constants.DomainStatusVerifying
	rec.MailProviderDomainID = "fe-1"
	rec.DNSZoneID = "zone-1"
	rec.Attempts = 2
	rec.LastAttemptAt = &now
	rec.DNSRecords = []DNSRecord{
		{ID: "r1", Type: "MX", Name: "@", Content: "mx1.example", Priority: intPtr(10)},
		{ID: "r2", Type: "TXT", Name: "@", Content: "v=abc"},
	}
	rec.Aliases = []Alias{
		{ID: "a1", Name: "support", Recipients: []string{"ops@example.com"}, Labels: []string{"inbound"}},
	}
	rec.Errors = []ProvisionError{
		{Timestamp: now, Stage: "verifying", Message: "timed out", Code: "verification_timeout",
			Details: map[string]any{"status_code": 504}},
	}
	rec.Metadata = map[string]any{"plan": "enhanced"}
	return rec
}

func TestNewDomainRecord(t *testing.T) {
	now := time.Now().UTC()
	rec := NewDomainRecord("example.com", now)

	assert.Equal(t, "example.com", rec.Domain)
	assert.Equal(t, constants.DomainStatusPending, rec.Status)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, now, rec.UpdatedAt)
	assert.Zero(t, rec.Attempts)
	assert.Nil(t, rec.LastAttemptAt)
	assert.Nil(t, rec.CompletedAt)
	assert.Empty(t, rec.Errors)
}

func TestClone(t *testing.T) {
	t.Run("nil receiver", func(t *testing.T) {
		var rec *DomainRecord
		assert.Nil(t, rec.Clone())
	})

	t.Run("deep copy is independent", func(t *testing.T) {
		now := time.Now().UTC()
		orig := sampleRecord(now)
		clone := orig.Clone()

		require.Equal(t, orig, clone)

		// Mutating the clone must not reach the original.
		*clone.DNSRecords[0].Priority = 99
		clone.Aliases[0].Recipients[0] = "hijacked@example.com"
		clone.Aliases[0].Labels[0] = "outbound"
		clone.Errors[0].Details["status_code"] = 500
		clone.Metadata["plan"] = "basic"
		other := now.Add(time.Hour)
		*clone.LastAttemptAt = other

		assert.Equal(t, 10, *orig.DNSRecords[0].Priority)
		assert.Equal(t, "ops@example.com", orig.Aliases[0].Recipients[0])
		assert.Equal(t, "inbound", orig.Aliases[0].Labels[0])
		assert.Equal(t, 504, orig.Errors[0].Details["status_code"])
		assert.Equal(t, "enhanced", orig.Metadata["plan"])
		assert.Equal(t, now, *orig.LastAttemptAt)
	})
}

func TestRecordError(t *testing.T) {
	now := time.Now().UTC()
	rec := NewDomainRecord("example.com", now)

	rec.RecordError(now, "pending", "auth failed", "permanent_error", map[string]any{"status_code": 401})
	rec.RecordError(now.Add(time.Minute), "verifying", "timed out", "verification_timeout", nil)

	require.Len(t, rec.Errors, 2)
	assert.Equal(t, "pending", rec.Errors[0].Stage)
	assert.Equal(t, 401, rec.Errors[0].Details["status_code"])
	assert.Equal(t, "verification_timeout", rec.Errors[1].Code)
	assert.Nil(t, rec.Errors[1].Details)
}

func TestHasDNSRecord(t *testing.T) {
	rec := sampleRecord(time.Now().UTC())

	assert.True(t, rec.HasDNSRecord("MX", "@", "mx1.example"))
	assert.True(t, rec.HasDNSRecord("TXT", "@", "v=abc"))
	assert.False(t, rec.HasDNSRecord("MX", "@", "mx2.example"), "content must match exactly")
	assert.False(t, rec.HasDNSRecord("TXT", "mail", "v=abc"), "name must match")
	assert.False(t, rec.HasDNSRecord("CNAME", "@", "mx1.example"), "type must match")
}

func TestHasAlias(t *testing.T) {
	rec := sampleRecord(time.Now().UTC())

	assert.True(t, rec.HasAlias("support"))
	assert.False(t, rec.HasAlias("sales"))
	assert.False(t, rec.HasAlias(""))
}
