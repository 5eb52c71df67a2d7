// Package forwardemail provides a typed client for the mail-delivery
// provider API: domain registration, verification records, aliases, and
// protection settings. Every call goes through the shared resilient invoker;
// this layer only adds request shapes, Basic auth, and idempotent
// get-or-create composites.
package forwardemail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	mferrors "github.com/steadycalls/mailforge/internal/errors"
	"github.com/steadycalls/mailforge/internal/httpclient"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.forwardemail.net/v1"

// pageSize is the page length requested from paginated list endpoints.
const pageSize = 50

// Client is a typed facade over the mail provider's REST API.
// Safe for concurrent use: it holds no mutable state beyond configuration.
type Client struct {
	baseURL string
	apiKey  string
	invoker *httpclient.Invoker
	logger  zerolog.Logger
}

// NewClient creates a mail-provider client. The API key is sent as the
// Basic auth username with an empty password.
func NewClient(baseURL, apiKey string, invoker *httpclient.Invoker, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		invoker: invoker,
		logger:  logger.With().Str("component", "forwardemail").Logger(),
	}
}

// header builds the auth header for every request.
func (c *Client) header() http.Header {
	h := http.Header{}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.apiKey + ":"))
	h.Set("Authorization", "Basic "+credentials)
	h.Set("Accept", "application/json")
	return h
}

// CreateDomain registers a domain with the mail provider.
func (c *Client) CreateDomain(ctx context.Context, name string) (*Domain, error) {
	if name == "" {
		return nil, fmt.Errorf("failed to create domain: domain name %w", mferrors.ErrEmptyValue)
	}

	body, err := json.Marshal(map[string]string{"domain": name})
	if err != nil {
		return nil, fmt.Errorf("failed to encode domain request: %w", err)
	}

	resp, err := c.invoker.Invoke(ctx, http.MethodPost, c.baseURL+"/domains", body, c.header())
	if err != nil {
		return nil, mferrors.Wrapf(err, "failed to create domain '%s'", name)
	}

	var d Domain
	if err := json.Unmarshal(resp.Body, &d); err != nil {
		return nil, fmt.Errorf("failed to decode domain '%s': %w", name, err)
	}
	return &d, nil
}

// GetDomain fetches a domain by name.
func (c *Client) GetDomain(ctx context.Context, name string) (*Domain, error) {
	if name == "" {
		return nil, fmt.Errorf("failed to get domain: domain name %w", mferrors.ErrEmptyValue)
	}

	resp, err := c.invoker.Invoke(ctx, http.MethodGet, c.domainURL(name), nil, c.header())
	if err != nil {
		return nil, mferrors.Wrapf(err, "failed to get domain '%s'", name)
	}

	var d Domain
	if err := json.Unmarshal(resp.Body, &d); err != nil {
		return nil, fmt.Errorf("failed to decode domain '%s': %w", name, err)
	}
	return &d, nil
}

// DomainExists probes for a domain. A provider 404 means false; any other
// error is propagated rather than silently swallowed.
func (c *Client) DomainExists(ctx context.Context, name string) (bool, error) {
	_, err := c.GetDomain(ctx, name)
	if err == nil {
		return true, nil
	}
	if mferrors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// EnsureDomain fetches the domain if it exists, creating it otherwise.
// Returns the domain and whether a create call was made. Safe to repeat:
// a second call performs no network write.
func (c *Client) EnsureDomain(ctx context.Context, name string) (*Domain, bool, error) {
	d, err := c.GetDomain(ctx, name)
	if err == nil {
		c.logger.Debug().Str("domain", name).Msg("domain already registered")
		return d, false, nil
	}
	if !mferrors.IsNotFound(err) {
		return nil, false, err
	}

	d, err = c.CreateDomain(ctx, name)
	if err != nil {
		return nil, false, err
	}
	c.logger.Info().Str("domain", name).Str("domain_id", d.ID).Msg("domain registered")
	return d, true, nil
}

// ListDomains returns every domain on the account, following pagination.
func (c *Client) ListDomains(ctx context.Context) ([]Domain, error) {
	var all []Domain
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/domains?page=%d&limit=%d", c.baseURL, page, pageSize)
		resp, err := c.invoker.Invoke(ctx, http.MethodGet, u, nil, c.header())
		if err != nil {
			return nil, mferrors.Wrap(err, "failed to list domains")
		}

		var batch []Domain
		if err := json.Unmarshal(resp.Body, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode domain list: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
	}
}

// GetVerifyRecords fetches the DNS records the provider requires for the
// domain, along with the provider's current view of their propagation.
func (c *Client) GetVerifyRecords(ctx context.Context, name string) (*VerifyRecords, error) {
	if name == "" {
		return nil, fmt.Errorf("failed to get verify records: domain name %w", mferrors.ErrEmptyValue)
	}

	resp, err := c.invoker.Invoke(ctx, http.MethodGet, c.domainURL(name)+"/verify-records", nil, c.header())
	if err != nil {
		return nil, mferrors.Wrapf(err, "failed to get verify records for '%s'", name)
	}

	var v VerifyRecords
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return nil, fmt.Errorf("failed to decode verify records for '%s': %w", name, err)
	}
	return &v, nil
}

// CreateAlias creates a forwarding alias on the domain.
func (c *Client) CreateAlias(ctx context.Context, domain string, alias Alias) (*Alias, error) {
	if domain == "" {
		return nil, fmt.Errorf("failed to create alias: domain name %w", mferrors.ErrEmptyValue)
	}
	if alias.Name == "" {
		return nil, fmt.Errorf("failed to create alias: alias name %w", mferrors.ErrEmptyValue)
	}

	body, err := json.Marshal(alias)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alias request: %w", err)
	}

	resp, err := c.invoker.Invoke(ctx, http.MethodPost, c.domainURL(domain)+"/aliases", body, c.header())
	if err != nil {
		return nil, mferrors.Wrapf(err, "failed to create alias '%s@%s'", alias.Name, domain)
	}

	var created Alias
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode alias '%s@%s': %w", alias.Name, domain, err)
	}
	return &created, nil
}

// ListAliases returns every alias on the domain, following pagination.
func (c *Client) ListAliases(ctx context.Context, domain string) ([]Alias, error) {
	if domain == "" {
		return nil, fmt.Errorf("failed to list aliases: domain name %w", mferrors.ErrEmptyValue)
	}

	var all []Alias
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/aliases?page=%d&limit=%d", c.domainURL(domain), page, pageSize)
		resp, err := c.invoker.Invoke(ctx, http.MethodGet, u, nil, c.header())
		if err != nil {
			return nil, mferrors.Wrapf(err, "failed to list aliases for '%s'", domain)
		}

		var batch []Alias
		if err := json.Unmarshal(resp.Body, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode alias list for '%s': %w", domain, err)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
	}
}

// EnsureAlias creates the alias unless one with the same name already
// exists. Matching is by alias name only; an alias with drifted recipients
// is returned unchanged, never reconciled in place.
func (c *Client) EnsureAlias(ctx context.Context, domain string, alias Alias) (*Alias, bool, error) {
	existing, err := c.ListAliases(ctx, domain)
	if err != nil {
		return nil, false, err
	}
	for idx := range existing {
		if existing[idx].Name == alias.Name {
			c.logger.Debug().
				Str("domain", domain).
				Str("alias", alias.Name).
				Msg("alias already exists")
			return &existing[idx], false, nil
		}
	}

	created, err := c.CreateAlias(ctx, domain, alias)
	if err != nil {
		return nil, false, err
	}
	c.logger.Info().Str("domain", domain).Str("alias", alias.Name).Msg("alias created")
	return created, true, nil
}

// SetEnhancedProtection toggles the domain's enhanced protection flag.
func (c *Client) SetEnhancedProtection(ctx context.Context, name string, enabled bool) error {
	if name == "" {
		return fmt.Errorf("failed to set enhanced protection: domain name %w", mferrors.ErrEmptyValue)
	}

	body, err := json.Marshal(map[string]string{
		"has_adult_content_protection": strconv.FormatBool(enabled),
	})
	if err != nil {
		return fmt.Errorf("failed to encode protection request: %w", err)
	}

	if _, err := c.invoker.Invoke(ctx, http.MethodPatch, c.domainURL(name), body, c.header()); err != nil {
		return mferrors.Wrapf(err, "failed to set enhanced protection for '%s'", name)
	}
	return nil
}

// domainURL builds the URL for a domain-scoped endpoint.
func (c *Client) domainURL(name string) string {
	return c.baseURL + "/domains/" + url.PathEscape(name)
}
