// Package pipeline drives domains through the provisioning state machine.
//
// This file implements the Engine, which advances each domain stage by
// stage: mail-provider registration, DNS record creation, verification
// polling, alias creation. Failures are isolated per domain; one domain's
// permanent error never stops the rest of the batch.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/steadycalls/mailforge/internal/clock"
	"github.com/steadycalls/mailforge/internal/cloudflare"
	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/ctxutil"
	"github.com/steadycalls/mailforge/internal/domain"
	mferrors "github.com/steadycalls/mailforge/internal/errors"
	"github.com/steadycalls/mailforge/internal/forwardemail"
)

// Store defines the persistence operations the engine needs.
// Implemented by state.Store.
type Store interface {
	// Get returns a copy of the record for the domain, or nil if unknown.
	Get(name string) *domain.DomainRecord

	// Add registers a domain, creating a Pending record if absent.
	// Idempotent.
	Add(name string) (*domain.DomainRecord, error)

	// Update replaces the record and persists synchronously.
	Update(name string, rec *domain.DomainRecord) error

	// ByState returns copies of every record in the given state.
	ByState(status constants.DomainStatus) []*domain.DomainRecord
}

// MailClient defines the mail-provider operations the engine needs.
// Implemented by forwardemail.Client.
type MailClient interface {
	EnsureDomain(ctx context.Context, name string) (*forwardemail.Domain, bool, error)
	GetVerifyRecords(ctx context.Context, name string) (*forwardemail.VerifyRecords, error)
	EnsureAlias(ctx context.Context, domainName string, alias forwardemail.Alias) (*forwardemail.Alias, bool, error)
	SetEnhancedProtection(ctx context.Context, name string, enabled bool) error
}

// DNSClient defines the DNS-provider operations the engine needs.
// Implemented by cloudflare.Client.
type DNSClient interface {
	FindZone(ctx context.Context, name string) (*cloudflare.Zone, error)
	EnsureRecord(ctx context.Context, zoneID string, rec cloudflare.NewRecord) (*cloudflare.Record, bool, error)
}

// Config holds tuning for the pipeline engine.
type Config struct {
	// Concurrency is how many domains are processed in parallel.
	// Work on two different domains is fully independent; work on one
	// domain is always serialized within its single worker goroutine.
	Concurrency int

	// Aliases are the forwarding aliases to ensure on every domain.
	Aliases []domain.Alias

	// EnhancedProtection toggles the provider's protection flag after
	// verification succeeds.
	EnhancedProtection bool

	// PollInterval is the delay between verification polls.
	PollInterval time.Duration

	// MaxPollAttempts bounds the number of verification polls.
	MaxPollAttempts int

	// PollTimeout is the wall-clock bound on verification polling.
	// Whichever of the two bounds trips first ends the wait.
	PollTimeout time.Duration
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{
		Concurrency:     constants.DefaultConcurrentDomains,
		PollInterval:    constants.DefaultVerificationPollInterval,
		MaxPollAttempts: constants.DefaultVerificationMaxAttempts,
		PollTimeout:     constants.DefaultVerificationTimeout,
	}
}

// Result reports the outcome of processing one domain.
type Result struct {
	Domain string
	Status constants.DomainStatus
	Err    error
}

// Engine orchestrates domain provisioning through the two provider clients
// and the state store.
type Engine struct {
	store  Store
	mail   MailClient
	dns    DNSClient
	cfg    Config
	logger zerolog.Logger
	clk    clock.Clock
	sleep  func(ctx context.Context, d time.Duration) error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock substitutes the time source. Intended for tests.
func WithClock(clk clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clk = clk
	}
}

// WithSleep substitutes the wait function. Intended for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// NewEngine creates a pipeline engine with the given dependencies.
func NewEngine(store Store, mail MailClient, dns DNSClient, cfg Config, logger zerolog.Logger, opts ...EngineOption) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = constants.DefaultConcurrentDomains
	}
	e := &Engine{
		store:  store,
		mail:   mail,
		dns:    dns,
		cfg:    cfg,
		logger: logger.With().Str("component", "pipeline").Logger(),
		clk:    clock.RealClock{},
		sleep:  ctxutil.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes the given domains concurrently, at most cfg.Concurrency at
// a time. Each domain advances independently; a failed domain is recorded
// and the batch continues. The returned results are in input order.
// The error is non-nil only when the run context was canceled.
func (e *Engine) Run(ctx context.Context, names []string) ([]Result, error) {
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)

	results := make([]Result, len(names))
	for idx, name := range names {
		idx, name := idx, name
		g.Go(func() error {
			rec, err := e.ProcessDomain(ctx, name)

			result := Result{Domain: name, Err: err}
			if rec != nil {
				result.Status = rec.Status
			}
			results[idx] = result

			// Failures are isolated per domain; never abort the batch.
			return nil
		})
	}

	_ = g.Wait()
	return results, ctx.Err()
}

// RetryFailed resets every Failed domain to Pending and runs them through
// the pipeline again. Idempotent get-or-create operations make re-entry
// safe even when some provider resources already exist.
func (e *Engine) RetryFailed(ctx context.Context) ([]Result, error) {
	failed := e.store.ByState(constants.DomainStatusFailed)
	names := make([]string, 0, len(failed))
	now := e.clk.Now().UTC()

	for _, rec := range failed {
		if err := ResetForRetry(rec, now); err != nil {
			return nil, err
		}
		if err := e.store.Update(rec.Domain, rec); err != nil {
			return nil, err
		}
		names = append(names, rec.Domain)
	}

	e.logger.Info().Int("domains", len(names)).Msg("retrying failed domains")
	return e.Run(ctx, names)
}

// ProcessDomain runs one processing attempt for a domain, advancing it
// stage by stage until it reaches a terminal state or an error moves it to
// Failed. The attempt counter and last-attempt timestamp are persisted
// before the first external call executes, so a crash mid-call still
// records that an attempt was made.
func (e *Engine) ProcessDomain(ctx context.Context, name string) (*domain.DomainRecord, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	rec, err := e.store.Add(name)
	if err != nil {
		return nil, err
	}
	if IsTerminalStatus(rec.Status) {
		e.logger.Debug().
			Str("domain", name).
			Str("status", rec.Status.String()).
			Msg("domain already terminal, nothing to do")
		return rec, nil
	}

	rec.Attempts++
	now := e.clk.Now().UTC()
	rec.LastAttemptAt = &now
	if err := e.store.Update(name, rec); err != nil {
		return rec, err
	}

	for !IsTerminalStatus(rec.Status) {
		if err := ctxutil.Canceled(ctx); err != nil {
			return rec, err
		}

		stage := rec.Status
		if err := e.runStage(ctx, rec); err != nil {
			if ctxCause := ctxutil.Canceled(ctx); ctxCause != nil {
				// Shutdown, not a domain failure: the record stays at its
				// current stage and a later run resumes from there.
				return rec, ctxCause
			}
			e.failDomain(rec, stage, err)
			return rec, nil
		}

		if err := e.store.Update(name, rec); err != nil {
			return rec, err
		}

		e.logger.Info().
			Str("domain", name).
			Str("stage", stage.String()).
			Str("status", rec.Status.String()).
			Msg("stage completed")
	}

	return rec, nil
}

// runStage executes the stage matching the record's current status and,
// on success, transitions the record to its successor state.
func (e *Engine) runStage(ctx context.Context, rec *domain.DomainRecord) error {
	switch rec.Status {
	case constants.DomainStatusPending:
		return e.stageRegisterDomain(ctx, rec)
	case constants.DomainStatusForwardEmailAdded:
		return e.stageConfigureDNS(ctx, rec)
	case constants.DomainStatusDNSConfigured:
		return e.stageBeginVerification(rec)
	case constants.DomainStatusVerifying:
		return e.stageAwaitVerification(ctx, rec)
	case constants.DomainStatusVerified:
		return e.stageCreateAliases(ctx, rec)
	case constants.DomainStatusAliasesCreated:
		return e.stageComplete(rec)
	default:
		return fmt.Errorf("%w: no stage for status %s", mferrors.ErrInvalidTransition, rec.Status)
	}
}

// stageRegisterDomain ensures the domain exists at the mail provider and
// records its provider ID.
func (e *Engine) stageRegisterDomain(ctx context.Context, rec *domain.DomainRecord) error {
	d, created, err := e.mail.EnsureDomain(ctx, rec.Domain)
	if err != nil {
		return err
	}

	rec.MailProviderDomainID = d.ID
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]any)
	}
	rec.Metadata["mail_domain_created"] = created

	return Transition(rec, constants.DomainStatusForwardEmailAdded, e.clk.Now().UTC())
}

// stageConfigureDNS idempotently creates every verification record the
// mail provider requires in the domain's DNS zone.
func (e *Engine) stageConfigureDNS(ctx context.Context, rec *domain.DomainRecord) error {
	zone, err := e.dns.FindZone(ctx, rec.Domain)
	if err != nil {
		return err
	}
	rec.DNSZoneID = zone.ID

	verify, err := e.mail.GetVerifyRecords(ctx, rec.Domain)
	if err != nil {
		return err
	}

	for _, want := range verify.Records {
		newRec := cloudflare.NewRecord{
			Type:    want.Type,
			Name:    want.Name,
			Content: want.Content,
			TTL:     want.TTL,
		}
		if want.Type == "MX" && want.Priority > 0 {
			priority := want.Priority
			newRec.Priority = &priority
		}

		ensured, _, err := e.dns.EnsureRecord(ctx, zone.ID, newRec)
		if err != nil {
			return err
		}

		if !rec.HasDNSRecord(ensured.Type, ensured.Name, ensured.Content) {
			rec.DNSRecords = append(rec.DNSRecords, domain.DNSRecord{
				ID:       ensured.ID,
				Type:     ensured.Type,
				Name:     ensured.Name,
				Content:  ensured.Content,
				Priority: ensured.Priority,
				Proxied:  ensured.Proxied,
				TTL:      ensured.TTL,
			})
		}
	}

	return Transition(rec, constants.DomainStatusDNSConfigured, e.clk.Now().UTC())
}

// stageBeginVerification records that the propagation check has been
// initiated. The actual polling happens in the Verifying stage so a crash
// between the two persists the fact that verification was requested.
func (e *Engine) stageBeginVerification(rec *domain.DomainRecord) error {
	return Transition(rec, constants.DomainStatusVerifying, e.clk.Now().UTC())
}

// stageAwaitVerification polls the mail provider's verify-records endpoint
// until it reports success or a bound trips. Two bounds apply: the attempt
// count and the wall-clock timeout; whichever trips first ends the wait
// (shortest-wins).
func (e *Engine) stageAwaitVerification(ctx context.Context, rec *domain.DomainRecord) error {
	deadline := e.clk.Now().Add(e.cfg.PollTimeout)

	for attempt := 1; attempt <= e.cfg.MaxPollAttempts; attempt++ {
		verify, err := e.mail.GetVerifyRecords(ctx, rec.Domain)
		if err != nil {
			return err
		}
		if verify.Verified {
			return Transition(rec, constants.DomainStatusVerified, e.clk.Now().UTC())
		}

		e.logger.Debug().
			Str("domain", rec.Domain).
			Int("attempt", attempt).
			Int("max_attempts", e.cfg.MaxPollAttempts).
			Bool("mx", verify.MX).
			Bool("txt", verify.TXT).
			Msg("verification not yet propagated")

		if attempt == e.cfg.MaxPollAttempts {
			break
		}
		// Shortest-wins: stop early when the next poll could not complete
		// inside the wall-clock budget.
		if e.clk.Now().Add(e.cfg.PollInterval).After(deadline) {
			break
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: domain '%s' not verified after %d polls or %s",
		mferrors.ErrVerificationTimeout, rec.Domain, e.cfg.MaxPollAttempts, e.cfg.PollTimeout)
}

// stageCreateAliases ensures every configured alias exists on the domain,
// then applies the enhanced-protection flag when configured.
func (e *Engine) stageCreateAliases(ctx context.Context, rec *domain.DomainRecord) error {
	for _, want := range e.cfg.Aliases {
		alias := forwardemail.Alias{
			Name:        want.Name,
			Recipients:  want.Recipients,
			Description: want.Description,
			Labels:      want.Labels,
			IsEnabled:   true,
		}

		ensured, _, err := e.mail.EnsureAlias(ctx, rec.Domain, alias)
		if err != nil {
			return err
		}

		if !rec.HasAlias(ensured.Name) {
			rec.Aliases = append(rec.Aliases, domain.Alias{
				ID:          ensured.ID,
				Name:        ensured.Name,
				Recipients:  ensured.Recipients,
				Description: ensured.Description,
				Labels:      ensured.Labels,
			})
		}
	}

	if e.cfg.EnhancedProtection {
		if err := e.mail.SetEnhancedProtection(ctx, rec.Domain, true); err != nil {
			return err
		}
	}

	return Transition(rec, constants.DomainStatusAliasesCreated, e.clk.Now().UTC())
}

// stageComplete marks terminal success.
func (e *Engine) stageComplete(rec *domain.DomainRecord) error {
	return Transition(rec, constants.DomainStatusCompleted, e.clk.Now().UTC())
}

// failDomain records the failure on the domain's audit trail, moves it to
// Failed, and persists. Failures here never propagate: the record itself
// is the report.
func (e *Engine) failDomain(rec *domain.DomainRecord, stage constants.DomainStatus, cause error) {
	now := e.clk.Now().UTC()

	var details map[string]any
	if status := mferrors.StatusCode(cause); status != 0 {
		details = map[string]any{"status_code": status}
	}

	rec.RecordError(now, stage.String(), cause.Error(), classifyErrorCode(cause), details)
	if err := Transition(rec, constants.DomainStatusFailed, now); err != nil {
		// Failed is reachable from every non-terminal state; reaching this
		// branch means the record was externally mutated mid-flight.
		e.logger.Error().Err(err).Str("domain", rec.Domain).Msg("could not mark domain failed")
	}

	if err := e.store.Update(rec.Domain, rec); err != nil {
		e.logger.Error().Err(err).Str("domain", rec.Domain).Msg("could not persist failed domain")
	}

	e.logger.Warn().
		Err(cause).
		Str("domain", rec.Domain).
		Str("stage", stage.String()).
		Msg("domain provisioning failed")
}

// classifyErrorCode maps an error to the machine-readable code stored on
// the domain's audit trail.
func classifyErrorCode(err error) string {
	switch {
	case mferrors.Is(err, mferrors.ErrPermanent):
		return "permanent_error"
	case mferrors.Is(err, mferrors.ErrRetriesExhausted):
		return "retries_exhausted"
	case mferrors.Is(err, mferrors.ErrVerificationTimeout):
		return "verification_timeout"
	case mferrors.Is(err, mferrors.ErrZoneNotFound):
		return "zone_not_found"
	case mferrors.Is(err, mferrors.ErrProviderResponse):
		return "provider_error"
	case mferrors.Is(err, mferrors.ErrInvalidPriority):
		return "invalid_record"
	default:
		return "unknown_error"
	}
}
