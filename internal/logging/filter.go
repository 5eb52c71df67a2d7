// Package logging provides logging utilities including sensitive data
// filtering. Both provider credentials (the ForwardEmail API key travels in
// a Basic auth header, the Cloudflare token in a Bearer header) must never
// reach the log file, so the file writer is wrapped with a redacting filter.
package logging

import (
	"io"
	"regexp"

	"github.com/rs/zerolog"
)

// RedactedValue is the replacement string for sensitive data.
const RedactedValue = "[REDACTED]"

// sensitivePatterns contains compiled regular expressions for detecting
// credential material in log output.
//
//nolint:gochecknoglobals // Package-level patterns for reuse
var sensitivePatterns = []*regexp.Regexp{
	// Bearer tokens (Cloudflare API tokens travel this way)
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_.-]{20,}`),

	// Basic auth headers (ForwardEmail API key as username)
	regexp.MustCompile(`(?i)basic\s+[a-zA-Z0-9+/=]{16,}`),

	// Generic API keys (api_key, apikey, api-key followed by a value)
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)['"]?\s*[:=]\s*['"]?[a-zA-Z0-9_-]{16,}['"]?`),

	// Generic token assignments
	regexp.MustCompile(`(?i)(api[_-]?token|auth[_-]?token|token)['"]?\s*[:=]\s*['"]?[a-zA-Z0-9_.-]{20,}['"]?`),

	// Authorization headers
	regexp.MustCompile(`(?i)authorization['"]?\s*[:=]\s*['"]?[^\s'"]{16,}['"]?`),

	// Generic secret patterns
	regexp.MustCompile(`(?i)(secret|password|credential|passwd)['"]?\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
}

// Redact replaces any sensitive substrings in s with RedactedValue.
func Redact(s string) string {
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, RedactedValue)
	}
	return s
}

// ContainsSensitiveData reports whether s matches any sensitive pattern.
func ContainsSensitiveData(s string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// SensitiveDataHook is a zerolog hook that flags log entries whose message
// matches a sensitive pattern. Zerolog hooks cannot rewrite the message
// itself; the actual redaction happens in the FilteringWriter on the file
// path, and the hook marks suspect console entries.
type SensitiveDataHook struct{}

// NewSensitiveDataHook creates a new SensitiveDataHook.
func NewSensitiveDataHook() *SensitiveDataHook {
	return &SensitiveDataHook{}
}

// Run implements the zerolog.Hook interface.
func (h *SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, msg string) {
	if ContainsSensitiveData(msg) {
		e.Bool("contains_filtered_data", true)
	}
}

// FilteringWriter wraps an io.Writer and redacts sensitive data from every
// write. Used to wrap the rotating log file so credentials never reach disk.
type FilteringWriter struct {
	target io.Writer
}

// NewFilteringWriter creates a FilteringWriter around target.
func NewFilteringWriter(target io.Writer) *FilteringWriter {
	return &FilteringWriter{target: target}
}

// Write implements io.Writer. The redacted form is written to the target;
// the returned length reflects the input so callers see a complete write.
func (w *FilteringWriter) Write(p []byte) (int, error) {
	filtered := Redact(string(p))
	if _, err := w.target.Write([]byte(filtered)); err != nil {
		return 0, err
	}
	return len(p), nil
}
