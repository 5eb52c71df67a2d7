package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steadycalls/mailforge/internal/cloudflare"
	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/domain"
	mferrors "github.com/steadycalls/mailforge/internal/errors"
	"github.com/steadycalls/mailforge/internal/forwardemail"
	"github.com/steadycalls/mailforge/internal/state"
)

// stubMail is an in-memory MailClient.
type stubMail struct {
	mu sync.Mutex

	ensureDomainCalls int
	ensureDomainErr   map[string]error

	// verifyAfter is how many polls return unverified before success.
	// Negative means never verified.
	verifyAfter   int
	verifyCalls   int
	verifyRecords []forwardemail.RecordSpec

	ensureAliasCalls int
	aliases          map[string][]forwardemail.Alias

	protectionCalls int
}

func newStubMail() *stubMail {
	return &stubMail{
		aliases: make(map[string][]forwardemail.Alias),
		verifyRecords: []forwardemail.RecordSpec{
			{Type: "MX", Name: "@", Content: "mx1.forwardemail.net", Priority: 10},
			{Type: "MX", Name: "@", Content: "mx2.forwardemail.net", Priority: 20},
			{Type: "TXT", Name: "@", Content: "forward-email-site-verification=abc123"},
		},
	}
}

func (m *stubMail) EnsureDomain(_ context.Context, name string) (*forwardemail.Domain, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDomainCalls++
	if err := m.ensureDomainErr[name]; err != nil {
		return nil, false, err
	}
	return &forwardemail.Domain{ID: "fe-" + name, Name: name}, true, nil
}

func (m *stubMail) GetVerifyRecords(_ context.Context, name string) (*forwardemail.VerifyRecords, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	verified := m.verifyAfter >= 0 && m.verifyCalls > m.verifyAfter
	return &forwardemail.VerifyRecords{
		Verified: verified,
		MX:       verified,
		TXT:      verified,
		Records:  m.verifyRecords,
	}, nil
}

func (m *stubMail) EnsureAlias(_ context.Context, domainName string, alias forwardemail.Alias) (*forwardemail.Alias, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureAliasCalls++
	for _, existing := range m.aliases[domainName] {
		if existing.Name == alias.Name {
			return &existing, false, nil
		}
	}
	alias.ID = fmt.Sprintf("alias-%s-%s", domainName, alias.Name)
	m.aliases[domainName] = append(m.aliases[domainName], alias)
	return &alias, true, nil
}

func (m *stubMail) SetEnhancedProtection(_ context.Context, _ string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protectionCalls++
	return nil
}

// stubDNS is an in-memory DNSClient.
type stubDNS struct {
	mu sync.Mutex

	zoneErr     error
	existing    []cloudflare.Record
	createCalls int
}

func (d *stubDNS) FindZone(_ context.Context, name string) (*cloudflare.Zone, error) {
	if d.zoneErr != nil {
		return nil, d.zoneErr
	}
	return &cloudflare.Zone{ID: "zone-" + name, Name: name, Status: "active"}, nil
}

func (d *stubDNS) EnsureRecord(_ context.Context, zoneID string, rec cloudflare.NewRecord) (*cloudflare.Record, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.existing {
		if existing.Type == rec.Type && existing.Name == rec.Name && existing.Content == rec.Content {
			return &existing, false, nil
		}
	}
	d.createCalls++
	created := cloudflare.Record{
		ID:       fmt.Sprintf("rec-%d", d.createCalls),
		Type:     rec.Type,
		Name:     rec.Name,
		Content:  rec.Content,
		TTL:      rec.TTL,
		Priority: rec.Priority,
	}
	d.existing = append(d.existing, created)
	return &created, true, nil
}

func newTestEngine(t *testing.T, mail MailClient, dns DNSClient, cfg Config) (*Engine, *state.Store) {
	t.Helper()
	store, err := state.New(filepath.Join(t.TempDir(), constants.StateFileName), zerolog.Nop())
	require.NoError(t, err)

	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.MaxPollAttempts == 0 {
		cfg.MaxPollAttempts = 5
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = time.Minute
	}

	engine := NewEngine(store, mail, dns, cfg, zerolog.Nop(),
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		}),
	)
	return engine, store
}

func defaultAliases() []domain.Alias {
	return []domain.Alias{
		{Name: "hello", Recipients: []string{"team@corp.example"}},
		{Name: "support", Recipients: []string{"help@corp.example"}, Labels: []string{"ops"}},
	}
}

func TestProcessDomain_HappyPath(t *testing.T) {
	mail := newStubMail()
	dns := &stubDNS{}
	engine, store := newTestEngine(t, mail, dns, Config{
		Aliases:            defaultAliases(),
		EnhancedProtection: true,
	})

	rec, err := engine.ProcessDomain(context.Background(), "example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, constants.DomainStatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.Attempts, "one full run is one attempt")
	require.NotNil(t, rec.LastAttemptAt)
	require.NotNil(t, rec.CompletedAt)
	assert.Empty(t, rec.Errors)

	assert.Equal(t, "fe-example.com", rec.MailProviderDomainID)
	assert.Equal(t, "zone-example.com", rec.DNSZoneID)
	require.Len(t, rec.DNSRecords, 3)
	require.NotNil(t, rec.DNSRecords[0].Priority)
	assert.Equal(t, 10, *rec.DNSRecords[0].Priority)
	assert.Nil(t, rec.DNSRecords[2].Priority, "TXT records carry no priority")

	require.Len(t, rec.Aliases, 2)
	assert.Equal(t, "hello", rec.Aliases[0].Name)
	assert.Equal(t, 1, mail.protectionCalls)

	// The terminal state must be durable.
	persisted := store.Get("example.com")
	assert.Equal(t, constants.DomainStatusCompleted, persisted.Status)
}

func TestProcessDomain_AlreadyCompletedIsNoOp(t *testing.T) {
	mail := newStubMail()
	engine, store := newTestEngine(t, mail, &stubDNS{}, Config{})

	_, err := engine.ProcessDomain(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, 1, mail.ensureDomainCalls)

	rec, err := engine.ProcessDomain(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, constants.DomainStatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.Attempts, "terminal domains are not re-attempted")
	assert.Equal(t, 1, mail.ensureDomainCalls, "no provider calls for a terminal domain")

	assert.Equal(t, 1, store.Summary()[constants.DomainStatusCompleted])
}

func TestProcessDomain_VerificationTimeoutFailsDomain(t *testing.T) {
	mail := newStubMail()
	mail.verifyAfter = -1 // never verifies
	engine, store := newTestEngine(t, mail, &stubDNS{}, Config{
		MaxPollAttempts: 2,
	})

	rec, err := engine.ProcessDomain(context.Background(), "example.com")
	require.NoError(t, err, "a failed domain is a recorded outcome, not a processing error")

	assert.Equal(t, constants.DomainStatusFailed, rec.Status)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "verifying", rec.Errors[0].Stage)
	assert.Equal(t, "verification_timeout", rec.Errors[0].Code)

	// One call during DNS configuration plus exactly MaxPollAttempts polls.
	assert.Equal(t, 3, mail.verifyCalls)

	persisted := store.Get("example.com")
	assert.Equal(t, constants.DomainStatusFailed, persisted.Status)
	assert.Len(t, persisted.Errors, 1)
}

func TestProcessDomain_VerifiesOnSecondPoll(t *testing.T) {
	mail := newStubMail()
	// First GetVerifyRecords call happens in the DNS stage; the next two
	// are polls, the second of which reports verified.
	mail.verifyAfter = 2
	engine, _ := newTestEngine(t, mail, &stubDNS{}, Config{MaxPollAttempts: 5})

	rec, err := engine.ProcessDomain(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, constants.DomainStatusCompleted, rec.Status)
	assert.Equal(t, 3, mail.verifyCalls)
}

func TestProcessDomain_ZoneNotFoundFailsAtDNSStage(t *testing.T) {
	mail := newStubMail()
	dns := &stubDNS{zoneErr: fmt.Errorf("no zone for 'example.com': %w", mferrors.ErrZoneNotFound)}
	engine, _ := newTestEngine(t, mail, dns, Config{})

	rec, err := engine.ProcessDomain(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, constants.DomainStatusFailed, rec.Status)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, constants.DomainStatusForwardEmailAdded.String(), rec.Errors[0].Stage)
	assert.Equal(t, "zone_not_found", rec.Errors[0].Code)
}

func TestProcessDomain_PermanentProviderErrorRecorded(t *testing.T) {
	mail := newStubMail()
	mail.ensureDomainErr = map[string]error{
		"example.com": fmt.Errorf("%w: %w", mferrors.ErrPermanent,
			&mferrors.HTTPError{StatusCode: 401, Method: "POST", URL: "/v1/domains"}),
	}
	engine, _ := newTestEngine(t, mail, &stubDNS{}, Config{})

	rec, err := engine.ProcessDomain(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, constants.DomainStatusFailed, rec.Status)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "pending", rec.Errors[0].Stage)
	assert.Equal(t, "permanent_error", rec.Errors[0].Code)
	assert.Equal(t, 401, rec.Errors[0].Details["status_code"])
}

func TestProcessDomain_ExistingDNSRecordsNotRecreated(t *testing.T) {
	mail := newStubMail()
	dns := &stubDNS{
		existing: []cloudflare.Record{
			{ID: "pre-1", Type: "TXT", Name: "@", Content: "forward-email-site-verification=abc123"},
		},
	}
	engine, _ := newTestEngine(t, mail, dns, Config{})

	rec, err := engine.ProcessDomain(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, constants.DomainStatusCompleted, rec.Status)
	assert.Equal(t, 2, dns.createCalls, "only the two missing MX records are created")
	assert.Len(t, rec.DNSRecords, 3, "pre-existing records are still tracked")
}

func TestProcessDomain_CanceledContextDoesNotFailDomain(t *testing.T) {
	mail := newStubMail()
	engine, store := newTestEngine(t, mail, &stubDNS{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.ProcessDomain(ctx, "example.com")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, store.Get("example.com"), "canceled before registration leaves no record")
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	mail := newStubMail()
	mail.ensureDomainErr = map[string]error{
		"bad.example": fmt.Errorf("%w: upstream rejected", mferrors.ErrPermanent),
	}
	engine, store := newTestEngine(t, mail, &stubDNS{}, Config{Concurrency: 3})

	results, err := engine.Run(context.Background(), []string{"good.example", "bad.example", "other.example"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	byDomain := make(map[string]Result, len(results))
	for _, r := range results {
		byDomain[r.Domain] = r
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, constants.DomainStatusCompleted, byDomain["good.example"].Status)
	assert.Equal(t, constants.DomainStatusFailed, byDomain["bad.example"].Status)
	assert.Equal(t, constants.DomainStatusCompleted, byDomain["other.example"].Status)

	summary := store.Summary()
	assert.Equal(t, 2, summary[constants.DomainStatusCompleted])
	assert.Equal(t, 1, summary[constants.DomainStatusFailed])
}

func TestRetryFailed_ReprocessesOnlyFailedDomains(t *testing.T) {
	mail := newStubMail()
	mail.ensureDomainErr = map[string]error{
		"bad.example": fmt.Errorf("%w: upstream rejected", mferrors.ErrPermanent),
	}
	engine, store := newTestEngine(t, mail, &stubDNS{}, Config{})

	_, err := engine.Run(context.Background(), []string{"good.example", "bad.example"})
	require.NoError(t, err)
	require.Len(t, store.ByState(constants.DomainStatusFailed), 1)

	// Clear the fault and retry.
	mail.mu.Lock()
	mail.ensureDomainErr = nil
	mail.mu.Unlock()

	results, err := engine.RetryFailed(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1, "only the failed domain is retried")
	assert.Equal(t, "bad.example", results[0].Domain)
	assert.Equal(t, constants.DomainStatusCompleted, results[0].Status)

	rec := store.Get("bad.example")
	assert.Equal(t, 2, rec.Attempts, "retry is a second attempt")
	assert.Len(t, rec.Errors, 1, "failure history survives the retry")
}

func TestRetryFailed_NothingToDo(t *testing.T) {
	engine, _ := newTestEngine(t, newStubMail(), &stubDNS{}, Config{})

	results, err := engine.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}
