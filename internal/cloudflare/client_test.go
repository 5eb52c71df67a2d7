package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mferrors "github.com/steadycalls/mailforge/internal/errors"
	"github.com/steadycalls/mailforge/internal/httpclient"
)

func testInvoker() *httpclient.Invoker {
	return httpclient.New(httpclient.RetryConfig{
		MaxRetries:     2,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		RateLimitDelay: time.Millisecond,
	}, zerolog.Nop(),
		httpclient.WithSleep(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		}),
	)
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, "test-token", testInvoker(), zerolog.Nop())
}

// writeEnvelope writes a success envelope wrapping result.
func writeEnvelope(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(w).Encode(envelope{Success: true, Result: raw}))
}

func intPtr(v int) *int { return &v }

func TestClient_BearerAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeEnvelope(t, w, []Zone{{ID: "z1", Name: "example.com"}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FindZone(context.Background(), "example.com")
	require.NoError(t, err)
}

func TestFindZone(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/zones", r.URL.Path)
			assert.Equal(t, "example.com", r.URL.Query().Get("name"))
			writeEnvelope(t, w, []Zone{{ID: "z1", Name: "example.com", Status: "active"}})
		}))
		defer srv.Close()

		zone, err := newTestClient(srv).FindZone(context.Background(), "example.com")
		require.NoError(t, err)
		assert.Equal(t, "z1", zone.ID)
		assert.Equal(t, "active", zone.Status)
	})

	t.Run("not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeEnvelope(t, w, []Zone{})
		}))
		defer srv.Close()

		_, err := newTestClient(srv).FindZone(context.Background(), "example.com")
		require.ErrorIs(t, err, mferrors.ErrZoneNotFound)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("no request expected")
		}))
		defer srv.Close()

		_, err := newTestClient(srv).FindZone(context.Background(), "")
		require.ErrorIs(t, err, mferrors.ErrEmptyValue)
	})
}

func TestCall_EnvelopeFailureSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(envelope{
			Success: false,
			Errors:  []apiError{{Code: 9109, Message: "Invalid access token"}},
		}))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FindZone(context.Background(), "example.com")
	require.ErrorIs(t, err, mferrors.ErrProviderResponse)
	assert.Contains(t, err.Error(), "9109")
	assert.Contains(t, err.Error(), "Invalid access token")
}

func TestCreateRecord_RecordPolicy(t *testing.T) {
	t.Run("MX is never proxied", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req NewRecord
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.False(t, req.Proxied, "MX records must be sent non-proxied")
			require.NotNil(t, req.Priority)
			assert.Equal(t, 10, *req.Priority)
			writeEnvelope(t, w, Record{ID: "r1", Type: "MX", Name: "@", Content: "mx1.example"})
		}))
		defer srv.Close()

		_, err := newTestClient(srv).CreateRecord(context.Background(), "z1", NewRecord{
			Type: "MX", Name: "@", Content: "mx1.example", Proxied: true, Priority: intPtr(10),
		})
		require.NoError(t, err)
	})

	t.Run("TXT is never proxied", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req NewRecord
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.False(t, req.Proxied)
			assert.Nil(t, req.Priority)
			writeEnvelope(t, w, Record{ID: "r1", Type: "TXT", Name: "@", Content: "v=abc"})
		}))
		defer srv.Close()

		_, err := newTestClient(srv).CreateRecord(context.Background(), "z1", NewRecord{
			Type: "TXT", Name: "@", Content: "v=abc", Proxied: true,
		})
		require.NoError(t, err)
	})

	t.Run("MX priority out of range rejected locally", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			calls++
		}))
		defer srv.Close()

		client := newTestClient(srv)
		for _, priority := range []int{0, -5, 65536} {
			_, err := client.CreateRecord(context.Background(), "z1", NewRecord{
				Type: "MX", Name: "@", Content: "mx1.example", Priority: intPtr(priority),
			})
			require.ErrorIs(t, err, mferrors.ErrInvalidPriority, "priority %d", priority)
		}
		assert.Zero(t, calls, "invalid priority must fail before any request")
	})

	t.Run("priority on non-MX rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("no request expected")
		}))
		defer srv.Close()

		client := newTestClient(srv)
		for _, recType := range []string{"TXT", "CNAME", "A"} {
			_, err := client.CreateRecord(context.Background(), "z1", NewRecord{
				Type: recType, Name: "@", Content: "x", Priority: intPtr(10),
			})
			require.ErrorIs(t, err, mferrors.ErrInvalidPriority, "type %s", recType)
		}
	})
}

func TestListRecords_QueryFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/zones/z1/dns_records", r.URL.Path)
		assert.Equal(t, "MX", r.URL.Query().Get("type"))
		assert.Equal(t, "example.com", r.URL.Query().Get("name"))
		writeEnvelope(t, w, []Record{{ID: "r1", Type: "MX", Name: "example.com", Content: "mx1.example"}})
	}))
	defer srv.Close()

	records, err := newTestClient(srv).ListRecords(context.Background(), "z1", "MX", "example.com")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0].ID)
}

func TestEnsureRecord(t *testing.T) {
	t.Run("creates when absent", func(t *testing.T) {
		var posts int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				writeEnvelope(t, w, []Record{})
			case http.MethodPost:
				posts++
				writeEnvelope(t, w, Record{ID: "r1", Type: "TXT", Name: "@", Content: "v=abc"})
			}
		}))
		defer srv.Close()

		rec, created, err := newTestClient(srv).EnsureRecord(context.Background(), "z1", NewRecord{
			Type: "TXT", Name: "@", Content: "v=abc",
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "r1", rec.ID)
		assert.Equal(t, 1, posts)
	})

	t.Run("content-exact match skips create", func(t *testing.T) {
		var posts int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				writeEnvelope(t, w, []Record{
					{ID: "r1", Type: "TXT", Name: "@", Content: "v=abc", TTL: 120},
				})
			case http.MethodPost:
				posts++
			}
		}))
		defer srv.Close()

		rec, created, err := newTestClient(srv).EnsureRecord(context.Background(), "z1", NewRecord{
			Type: "TXT", Name: "@", Content: "v=abc", TTL: 3600,
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "r1", rec.ID)
		assert.Equal(t, 120, rec.TTL, "TTL drift does not trigger an update")
		assert.Zero(t, posts, "matching record must not be recreated")
	})

	t.Run("different content creates a second record", func(t *testing.T) {
		var posts int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				writeEnvelope(t, w, []Record{
					{ID: "r1", Type: "MX", Name: "@", Content: "mx1.example"},
				})
			case http.MethodPost:
				posts++
				writeEnvelope(t, w, Record{ID: "r2", Type: "MX", Name: "@", Content: "mx2.example"})
			}
		}))
		defer srv.Close()

		rec, created, err := newTestClient(srv).EnsureRecord(context.Background(), "z1", NewRecord{
			Type: "MX", Name: "@", Content: "mx2.example", Priority: intPtr(20),
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "r2", rec.ID)
		assert.Equal(t, 1, posts)
	})
}

func TestUpdateRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/zones/z1/dns_records/r1", r.URL.Path)
		writeEnvelope(t, w, Record{ID: "r1", Type: "TXT", Name: "@", Content: "v=new"})
	}))
	defer srv.Close()

	rec, err := newTestClient(srv).UpdateRecord(context.Background(), "z1", "r1", NewRecord{
		Type: "TXT", Name: "@", Content: "v=new",
	})
	require.NoError(t, err)
	assert.Equal(t, "v=new", rec.Content)
}

func TestDeleteRecord(t *testing.T) {
	var deletes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/zones/z1/dns_records/r1", r.URL.Path)
		deletes++
		writeEnvelope(t, w, map[string]string{"id": "r1"})
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv).DeleteRecord(context.Background(), "z1", "r1"))
	assert.Equal(t, 1, deletes)
}
