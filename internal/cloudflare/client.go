// Package cloudflare provides a typed client for the DNS provider API:
// zone lookup and DNS record management. Every call goes through the shared
// resilient invoker; this layer adds bearer auth, the response envelope,
// the record-type proxy/priority policy, and the idempotent get-or-create
// composite that makes repeated pipeline runs safe.
package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	mferrors "github.com/steadycalls/mailforge/internal/errors"
	"github.com/steadycalls/mailforge/internal/httpclient"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// Zone is a DNS zone at the provider.
type Zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Record is a DNS record within a zone.
type Record struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Proxied  bool   `json:"proxied"`
	Priority *int   `json:"priority,omitempty"`
}

// NewRecord describes a record to create or confirm in a zone.
type NewRecord struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl,omitempty"`
	Proxied bool   `json:"proxied"`
	// Priority is the MX priority (1-65535). Must be nil for non-MX types.
	Priority *int `json:"priority,omitempty"`
}

// apiError is one entry in the provider's errors array.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope is the provider's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

// Client is a typed facade over the DNS provider's REST API.
// Safe for concurrent use: it holds no mutable state beyond configuration.
type Client struct {
	baseURL  string
	apiToken string
	invoker  *httpclient.Invoker
	logger   zerolog.Logger
}

// NewClient creates a DNS-provider client authenticated with a bearer token.
func NewClient(baseURL, apiToken string, invoker *httpclient.Invoker, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		invoker:  invoker,
		logger:   logger.With().Str("component", "cloudflare").Logger(),
	}
}

// header builds the auth header for every request.
func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiToken)
	h.Set("Accept", "application/json")
	return h
}

// call invokes the endpoint and unwraps the provider envelope into out.
func (c *Client) call(ctx context.Context, method, endpoint string, body []byte, out any) error {
	resp, err := c.invoker.Invoke(ctx, method, endpoint, body, c.header())
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if !env.Success {
		if len(env.Errors) > 0 {
			first := env.Errors[0]
			return fmt.Errorf("%w: code %d: %s", mferrors.ErrProviderResponse, first.Code, first.Message)
		}
		return mferrors.ErrProviderResponse
	}
	if out != nil && env.Result != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return nil
}

// FindZone looks up the zone for a domain name.
// Returns ErrZoneNotFound when the account has no matching zone.
func (c *Client) FindZone(ctx context.Context, name string) (*Zone, error) {
	if name == "" {
		return nil, fmt.Errorf("failed to find zone: zone name %w", mferrors.ErrEmptyValue)
	}

	endpoint := c.baseURL + "/zones?name=" + url.QueryEscape(name)
	var zones []Zone
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &zones); err != nil {
		return nil, mferrors.Wrapf(err, "failed to find zone '%s'", name)
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("%w: '%s'", mferrors.ErrZoneNotFound, name)
	}
	return &zones[0], nil
}

// ListRecords returns records in the zone, optionally filtered by type and
// name. Empty filter values are omitted from the query.
func (c *Client) ListRecords(ctx context.Context, zoneID, recordType, name string) ([]Record, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("failed to list records: zone ID %w", mferrors.ErrEmptyValue)
	}

	query := url.Values{}
	if recordType != "" {
		query.Set("type", recordType)
	}
	if name != "" {
		query.Set("name", name)
	}
	endpoint := c.baseURL + "/zones/" + url.PathEscape(zoneID) + "/dns_records"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var records []Record
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &records); err != nil {
		return nil, mferrors.Wrap(err, "failed to list dns records")
	}
	return records, nil
}

// CreateRecord creates a DNS record in the zone, applying the record-type
// policy: TXT and MX records are always created non-proxied, MX priorities
// must be 1-65535, and non-MX records must not carry a priority.
func (c *Client) CreateRecord(ctx context.Context, zoneID string, rec NewRecord) (*Record, error) {
	if zoneID == "" {
		return nil, fmt.Errorf("failed to create record: zone ID %w", mferrors.ErrEmptyValue)
	}
	if err := applyRecordPolicy(&rec); err != nil {
		return nil, err
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record request: %w", err)
	}

	endpoint := c.baseURL + "/zones/" + url.PathEscape(zoneID) + "/dns_records"
	var created Record
	if err := c.call(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, mferrors.Wrapf(err, "failed to create %s record '%s'", rec.Type, rec.Name)
	}

	c.logger.Info().
		Str("zone_id", zoneID).
		Str("type", created.Type).
		Str("name", created.Name).
		Str("record_id", created.ID).
		Msg("dns record created")
	return &created, nil
}

// UpdateRecord patches fields of an existing record.
func (c *Client) UpdateRecord(ctx context.Context, zoneID, recordID string, rec NewRecord) (*Record, error) {
	if zoneID == "" || recordID == "" {
		return nil, fmt.Errorf("failed to update record: identifier %w", mferrors.ErrEmptyValue)
	}
	if err := applyRecordPolicy(&rec); err != nil {
		return nil, err
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record request: %w", err)
	}

	endpoint := c.baseURL + "/zones/" + url.PathEscape(zoneID) + "/dns_records/" + url.PathEscape(recordID)
	var updated Record
	if err := c.call(ctx, http.MethodPatch, endpoint, body, &updated); err != nil {
		return nil, mferrors.Wrapf(err, "failed to update record '%s'", recordID)
	}
	return &updated, nil
}

// DeleteRecord removes a record from the zone.
func (c *Client) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	if zoneID == "" || recordID == "" {
		return fmt.Errorf("failed to delete record: identifier %w", mferrors.ErrEmptyValue)
	}

	endpoint := c.baseURL + "/zones/" + url.PathEscape(zoneID) + "/dns_records/" + url.PathEscape(recordID)
	if err := c.call(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return mferrors.Wrapf(err, "failed to delete record '%s'", recordID)
	}
	return nil
}

// EnsureRecord creates the record unless an identical one already exists.
// Existing records are matched by zone, type, name, and content-exact
// equality; a TTL or comment difference does not count as a match and does
// not trigger an update. Only create-if-absent is supported here, never
// reconcile-in-place. Returns the record and whether a create call was made.
func (c *Client) EnsureRecord(ctx context.Context, zoneID string, rec NewRecord) (*Record, bool, error) {
	existing, err := c.ListRecords(ctx, zoneID, rec.Type, rec.Name)
	if err != nil {
		return nil, false, err
	}
	for idx := range existing {
		if existing[idx].Content == rec.Content {
			c.logger.Debug().
				Str("zone_id", zoneID).
				Str("type", rec.Type).
				Str("name", rec.Name).
				Msg("dns record already present")
			return &existing[idx], false, nil
		}
	}

	created, err := c.CreateRecord(ctx, zoneID, rec)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// applyRecordPolicy enforces the record-type rules before any write.
func applyRecordPolicy(rec *NewRecord) error {
	switch rec.Type {
	case "MX":
		rec.Proxied = false
		if rec.Priority != nil && (*rec.Priority < 1 || *rec.Priority > 65535) {
			return fmt.Errorf("%w: MX priority %d not in 1-65535", mferrors.ErrInvalidPriority, *rec.Priority)
		}
	case "TXT":
		rec.Proxied = false
		if rec.Priority != nil {
			return fmt.Errorf("%w: priority not allowed for TXT records", mferrors.ErrInvalidPriority)
		}
	default:
		if rec.Priority != nil {
			return fmt.Errorf("%w: priority not allowed for %s records", mferrors.ErrInvalidPriority, rec.Type)
		}
	}
	return nil
}
