package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/terrasight/internal/resilience"
)

// fastRetry keeps test backoffs in the microsecond range.
func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     2.0,
	}
}

type testProvider struct {
	t *testing.T

	tokenCalls  atomic.Int64
	expiresIn   int
	searchPages func(startIndex, maxResults int) searchPage
	searchHook  func(w http.ResponseWriter, r *http.Request) bool
	bands       map[string]*Grid
}

func newTestProvider(t *testing.T) (*testProvider, *httptest.Server) {
	t.Helper()
	p := &testProvider{t: t, expiresIn: 3600}
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		n := p.tokenCalls.Add(1)
		writeJSON(t, w, map[string]any{
			"access_token": fmt.Sprintf("tok-%d", n),
			"expires_in":   p.expiresIn,
		})
	})

	mux.HandleFunc("/api/v1/catalog/search", func(w http.ResponseWriter, r *http.Request) {
		if p.searchHook != nil && p.searchHook(w, r) {
			return
		}
		var body struct {
			MaxResults int `json:"maxResults"`
			StartIndex int `json:"startIndex"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(t, w, p.searchPages(body.StartIndex, body.MaxResults))
	})

	mux.HandleFunc("/api/v1/scenes/", func(w http.ResponseWriter, r *http.Request) {
		if p.bands == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(t, w, bandsResponse{Bands: p.bands})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return p, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newTestClient(srv *httptest.Server, pageSize int) Client {
	return NewClient(Config{
		BaseURL:        srv.URL,
		TokenURL:       srv.URL + "/token",
		ClientID:       "id",
		ClientSecret:   "secret",
		RequestsPerSec: 1000,
		Burst:          1000,
		PageSize:       pageSize,
	}, WithRetryConfig(fastRetry()))
}

func makeScenes(start, count int) []SceneDescriptor {
	scenes := make([]SceneDescriptor, count)
	for i := range scenes {
		scenes[i] = SceneDescriptor{
			ProductID:  fmt.Sprintf("S2A_%04d", start+i),
			AcquiredAt: time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC),
			CloudCover: 12,
			Footprint:  "POLYGON((17.4 48.2, 17.8 48.2, 17.8 48.5, 17.4 48.5, 17.4 48.2))",
		}
	}
	return scenes
}

func TestSearch_PagesUntilExhausted(t *testing.T) {
	p, srv := newTestProvider(t)
	var indexes []int
	p.searchPages = func(startIndex, maxResults int) searchPage {
		indexes = append(indexes, startIndex)
		assert.Equal(t, 2, maxResults)
		// Two full pages, then a short final page.
		switch startIndex {
		case 0, 2:
			return searchPage{Scenes: makeScenes(startIndex, 2)}
		default:
			return searchPage{Scenes: makeScenes(startIndex, 1)}
		}
	}

	c := newTestClient(srv, 2)
	scenes, err := c.Search(context.Background(), SearchRequest{AOI: "POLYGON((0 0, 1 0, 1 1, 0 0))"})
	require.NoError(t, err)
	assert.Len(t, scenes, 5)
	assert.Equal(t, []int{0, 2, 4}, indexes)
	assert.Equal(t, "S2A_0000", scenes[0].ProductID)
	assert.Equal(t, "S2A_0004", scenes[4].ProductID)
}

func TestSearch_MaxItemsBoundsPaging(t *testing.T) {
	p, srv := newTestProvider(t)
	p.searchPages = func(startIndex, maxResults int) searchPage {
		return searchPage{Scenes: makeScenes(startIndex, maxResults)}
	}

	c := newTestClient(srv, 2)
	scenes, err := c.Search(context.Background(), SearchRequest{MaxItems: 3})
	require.NoError(t, err)
	assert.Len(t, scenes, 3)
}

func TestSearch_TokenCachedAcrossCalls(t *testing.T) {
	p, srv := newTestProvider(t)
	p.searchPages = func(startIndex, maxResults int) searchPage {
		return searchPage{Scenes: makeScenes(0, 1)}
	}

	c := newTestClient(srv, 10)
	ctx := context.Background()
	_, err := c.Search(ctx, SearchRequest{})
	require.NoError(t, err)
	_, err = c.Search(ctx, SearchRequest{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.tokenCalls.Load())
}

func TestSearch_TokenRefreshedNearExpiry(t *testing.T) {
	p, srv := newTestProvider(t)
	// 30s lifetime is inside the 60s slack, so every call re-authenticates.
	p.expiresIn = 30
	p.searchPages = func(startIndex, maxResults int) searchPage {
		return searchPage{Scenes: makeScenes(0, 1)}
	}

	c := newTestClient(srv, 10)
	ctx := context.Background()
	_, err := c.Search(ctx, SearchRequest{})
	require.NoError(t, err)
	_, err = c.Search(ctx, SearchRequest{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), p.tokenCalls.Load())
}

func TestSearch_ReauthenticatesOnceOn401(t *testing.T) {
	p, srv := newTestProvider(t)
	var searchCalls atomic.Int64
	p.searchPages = func(startIndex, maxResults int) searchPage {
		return searchPage{Scenes: makeScenes(0, 1)}
	}
	p.searchHook = func(w http.ResponseWriter, r *http.Request) bool {
		// The first token is rejected; the re-auth token succeeds.
		if searchCalls.Add(1) == 1 {
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return true
		}
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		return false
	}

	c := newTestClient(srv, 10)
	scenes, err := c.Search(context.Background(), SearchRequest{})
	require.NoError(t, err)
	assert.Len(t, scenes, 1)
	assert.Equal(t, int64(2), p.tokenCalls.Load())
}

func TestSearch_PersistentUnauthorized(t *testing.T) {
	p, srv := newTestProvider(t)
	p.searchHook = func(w http.ResponseWriter, r *http.Request) bool {
		w.WriteHeader(http.StatusUnauthorized)
		return true
	}

	c := newTestClient(srv, 10)
	_, err := c.Search(context.Background(), SearchRequest{})
	require.Error(t, err)

	var ae *resilience.AuthExpiredError
	assert.ErrorAs(t, err, &ae)
	// A persistent 401 is not transient, so exactly one re-auth happened.
	assert.Equal(t, int64(2), p.tokenCalls.Load())
}

func TestSearch_RetriesTransientThenSucceeds(t *testing.T) {
	p, srv := newTestProvider(t)
	var searchCalls atomic.Int64
	p.searchPages = func(startIndex, maxResults int) searchPage {
		return searchPage{Scenes: makeScenes(0, 1)}
	}
	p.searchHook = func(w http.ResponseWriter, r *http.Request) bool {
		if searchCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return true
		}
		return false
	}

	c := newTestClient(srv, 10)
	scenes, err := c.Search(context.Background(), SearchRequest{})
	require.NoError(t, err)
	assert.Len(t, scenes, 1)
	assert.Equal(t, int64(2), searchCalls.Load())
}

func TestSearch_ExhaustionReturnsProviderUnavailable(t *testing.T) {
	p, srv := newTestProvider(t)
	p.searchHook = func(w http.ResponseWriter, r *http.Request) bool {
		w.WriteHeader(http.StatusTooManyRequests)
		return true
	}

	c := newTestClient(srv, 10)
	_, err := c.Search(context.Background(), SearchRequest{})
	require.Error(t, err)
	assert.True(t, resilience.IsProviderUnavailable(err))
}

func TestSearch_MidSearchFailureKeepsPartialResults(t *testing.T) {
	p, srv := newTestProvider(t)
	p.searchPages = func(startIndex, maxResults int) searchPage {
		return searchPage{Scenes: makeScenes(startIndex, maxResults)}
	}
	var searchCalls atomic.Int64
	p.searchHook = func(w http.ResponseWriter, r *http.Request) bool {
		if searchCalls.Add(1) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return true
		}
		return false
	}

	c := newTestClient(srv, 2)
	scenes, err := c.Search(context.Background(), SearchRequest{})
	require.Error(t, err)
	assert.True(t, resilience.IsProviderUnavailable(err))
	assert.Len(t, scenes, 2)
}

func TestFetchBands(t *testing.T) {
	p, srv := newTestProvider(t)
	p.bands = map[string]*Grid{
		"B08": {Band: "B08", Width: 2, Height: 1, Samples: []float64{0.8, 0.7}},
		"B04": {Band: "B04", Width: 2, Height: 1, Samples: []float64{0.2, 0.3}},
	}

	c := newTestClient(srv, 10)
	a, b, err := c.FetchBands(context.Background(), "S2A_0001", "B08", "B04")
	require.NoError(t, err)
	assert.Equal(t, "B08", a.Band)
	assert.Equal(t, []float64{0.2, 0.3}, b.Samples)
}

func TestFetchBands_NotFound(t *testing.T) {
	_, srv := newTestProvider(t)

	c := newTestClient(srv, 10)
	_, _, err := c.FetchBands(context.Background(), "S2A_0001", "B08", "B04")
	assert.ErrorIs(t, err, ErrBandsUnavailable)
}

func TestFetchBands_MissingBandKey(t *testing.T) {
	p, srv := newTestProvider(t)
	p.bands = map[string]*Grid{
		"B08": {Band: "B08", Width: 1, Height: 1, Samples: []float64{0.8}},
	}

	c := newTestClient(srv, 10)
	_, _, err := c.FetchBands(context.Background(), "S2A_0001", "B08", "B04")
	assert.ErrorIs(t, err, ErrBandsUnavailable)
}
