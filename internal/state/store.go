// Package state implements the durable, crash-safe store for domain
// provisioning records. The whole domain map lives in one JSON file that is
// rewritten atomically (write-temp-then-rename) on every mutation, so
// readers only ever see either the old complete file or the new complete
// file, never a partial one.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/steadycalls/mailforge/internal/clock"
	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/domain"
	mferrors "github.com/steadycalls/mailforge/internal/errors"
)

// File permission constants.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// backupTimeFormat names corrupt-file backups so forensic evidence survives
// a recovery reset.
const backupTimeFormat = "20060102-150405"

// stateFile is the on-disk schema.
type stateFile struct {
	Version     int                             `json:"version"`
	LastUpdated time.Time                       `json:"last_updated"`
	Domains     map[string]*domain.DomainRecord `json:"domains"`
}

// failureReport is the shape written by ExportFailures.
type failureReport struct {
	Timestamp     time.Time                 `json:"timestamp"`
	TotalFailures int                       `json:"total_failures"`
	Domains       map[string]failureDetails `json:"domains"`
}

// failureDetails is one failed domain in the export report.
type failureDetails struct {
	Attempts    int                     `json:"attempts"`
	LastAttempt *time.Time              `json:"last_attempt,omitempty"`
	Errors      []domain.ProvisionError `json:"errors"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
}

// Store is the process-wide durable map from domain name to DomainRecord.
// A single mutex spans every read-modify-persist sequence so concurrent
// workers cannot race the in-memory map or the temp-then-rename write.
type Store struct {
	mu      sync.Mutex
	path    string
	domains map[string]*domain.DomainRecord
	logger  zerolog.Logger
	clk     clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock substitutes the time source. Intended for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) {
		s.clk = clk
	}
}

// New constructs the store, loading the state file at path. An absent file
// is a cold start. An unparsable or invalid file is backed up under a
// timestamped name and the store starts empty: corruption must never block
// forward progress, but the operator keeps forensic evidence.
func New(path string, logger zerolog.Logger, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("failed to create state store: path %w", mferrors.ErrEmptyValue)
	}

	s := &Store{
		path:    path,
		domains: make(map[string]*domain.DomainRecord),
		logger:  logger.With().Str("component", "state").Logger(),
		clk:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the state file.
func (s *Store) Path() string {
	return s.path
}

// load reads and validates the state file, recovering from corruption.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path) //#nosec G304 -- path comes from configuration
	if os.IsNotExist(err) {
		s.logger.Debug().Str("path", s.path).Msg("no state file, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return s.recoverCorrupt(fmt.Errorf("%w: %v", mferrors.ErrStateCorrupted, err)) //nolint:errorlint // intentional hybrid wrap
	}
	if err := validateStateFile(&file); err != nil {
		return s.recoverCorrupt(err)
	}

	s.domains = file.Domains
	if s.domains == nil {
		s.domains = make(map[string]*domain.DomainRecord)
	}
	s.logger.Info().Int("domains", len(s.domains)).Str("path", s.path).Msg("state loaded")
	return nil
}

// validateStateFile checks the required fields of every loaded record.
// Unknown state strings and missing identity keys are corruption, not nulls
// to propagate silently.
func validateStateFile(file *stateFile) error {
	if file.Version <= 0 || file.Version > constants.StateSchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %d", mferrors.ErrStateCorrupted, file.Version)
	}
	for name, rec := range file.Domains {
		if rec == nil || rec.Domain == "" {
			return fmt.Errorf("%w: record '%s' missing domain field", mferrors.ErrStateCorrupted, name)
		}
		if !constants.IsValidDomainStatus(string(rec.Status)) {
			return fmt.Errorf("%w: record '%s' has unknown status '%s'", mferrors.ErrStateCorrupted, name, rec.Status)
		}
	}
	return nil
}

// recoverCorrupt backs up the unreadable state file and resets to empty.
func (s *Store) recoverCorrupt(cause error) error {
	backupPath := fmt.Sprintf("%s.corrupt-%s", s.path, s.clk.Now().UTC().Format(backupTimeFormat))
	if err := os.Rename(s.path, backupPath); err != nil {
		return fmt.Errorf("failed to back up corrupt state file: %w", err)
	}

	s.logger.Warn().
		Err(cause).
		Str("backup", backupPath).
		Msg("state file corrupt, backed up and starting empty")
	s.domains = make(map[string]*domain.DomainRecord)
	return nil
}

// Get returns a copy of the record for the domain, or nil if unknown.
// Pure read, no side effect.
func (s *Store) Get(name string) *domain.DomainRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domains[name].Clone()
}

// Add registers a domain. If absent it is created in Pending state and
// persisted; if present the existing record is returned unchanged and no
// write occurs. Idempotent.
func (s *Store) Add(name string) (*domain.DomainRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("failed to add domain: name %w", mferrors.ErrEmptyValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.domains[name]; ok {
		return existing.Clone(), nil
	}

	rec := domain.NewDomainRecord(name, s.clk.Now().UTC())
	s.domains[name] = rec
	if err := s.persistLocked(); err != nil {
		delete(s.domains, name)
		return nil, mferrors.Wrapf(err, "failed to add domain '%s'", name)
	}

	s.logger.Info().Str("domain", name).Msg("domain registered")
	return rec.Clone(), nil
}

// Update replaces the record for the domain and persists synchronously.
// Every pipeline transition must route through here so the durable file
// never drifts from memory.
func (s *Store) Update(name string, rec *domain.DomainRecord) error {
	if name == "" {
		return fmt.Errorf("failed to update domain: name %w", mferrors.ErrEmptyValue)
	}
	if rec == nil {
		return fmt.Errorf("failed to update domain: record %w", mferrors.ErrEmptyValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[name]; !ok {
		return fmt.Errorf("failed to update domain '%s': %w", name, mferrors.ErrDomainNotFound)
	}

	clone := rec.Clone()
	clone.UpdatedAt = s.clk.Now().UTC()
	previous := s.domains[name]
	s.domains[name] = clone

	if err := s.persistLocked(); err != nil {
		s.domains[name] = previous
		return mferrors.Wrapf(err, "failed to update domain '%s'", name)
	}
	return nil
}

// ByState returns copies of every record in the given state, sorted by
// domain name. Snapshot read for the driver's scheduling loop.
func (s *Store) ByState(status constants.DomainStatus) []*domain.DomainRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.DomainRecord
	for _, rec := range s.domains {
		if rec.Status == status {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out)
	return out
}

// All returns copies of every record, sorted by domain name.
func (s *Store) All() []*domain.DomainRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.DomainRecord, 0, len(s.domains))
	for _, rec := range s.domains {
		out = append(out, rec.Clone())
	}
	sortRecords(out)
	return out
}

// Summary counts domains per state. Every known state appears in the
// result, including zero-count states, so downstream reporting never has
// to special-case missing keys.
func (s *Store) Summary() map[constants.DomainStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := make(map[constants.DomainStatus]int, len(constants.AllDomainStatuses))
	for _, status := range constants.AllDomainStatuses {
		summary[status] = 0
	}
	for _, rec := range s.domains {
		summary[rec.Status]++
	}
	return summary
}

// ExportFailures writes a JSON report of all Failed domains to path.
// Purely a read-and-serialize; no store state is mutated.
func (s *Store) ExportFailures(path string) error {
	if path == "" {
		return fmt.Errorf("failed to export failures: path %w", mferrors.ErrEmptyValue)
	}

	s.mu.Lock()
	report := failureReport{
		Timestamp: s.clk.Now().UTC(),
		Domains:   make(map[string]failureDetails),
	}
	for name, rec := range s.domains {
		if rec.Status != constants.DomainStatusFailed {
			continue
		}
		report.Domains[name] = failureDetails{
			Attempts:    rec.Attempts,
			LastAttempt: rec.LastAttemptAt,
			Errors:      rec.Errors,
			Metadata:    rec.Metadata,
		}
	}
	report.TotalFailures = len(report.Domains)
	s.mu.Unlock()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode failure report: %w", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return mferrors.Wrap(err, "failed to write failure report")
	}

	s.logger.Info().Int("failures", report.TotalFailures).Str("path", path).Msg("failure report exported")
	return nil
}

// persistLocked serializes the full domain map and rewrites the state file
// atomically. Callers must hold s.mu.
func (s *Store) persistLocked() error {
	file := stateFile{
		Version:     constants.StateSchemaVersion,
		LastUpdated: s.clk.Now().UTC(),
		Domains:     s.domains,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	return atomicWrite(s.path, data)
}

// sortRecords orders records by domain name for stable output.
func sortRecords(records []*domain.DomainRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Domain < records[j].Domain
	})
}

// atomicWrite writes data to a file atomically using write-then-rename.
// The temp file lives in the same directory as the target so the rename
// never crosses filesystems.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Sync before rename so a crash cannot leave a renamed-but-empty file.
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
