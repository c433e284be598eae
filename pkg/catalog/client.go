package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/terrasight/internal/resilience"
)

// tokenExpirySlack is subtracted from the provider-reported token lifetime
// so a token is refreshed before it actually expires.
const tokenExpirySlack = 60 * time.Second

// Config holds the provider connection settings.
type Config struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RequestsPerSec float64
	Burst          int
	Timeout        time.Duration
	MaxRetries     int
	// PageSize is the maxResults value sent per search page.
	PageSize int
}

// Option configures the catalog client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client for all provider requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryConfig overrides the retry policy for provider calls.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a Client for the given provider configuration.
func NewClient(cfg Config, opts ...Option) Client {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSec)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}

	c := &httpClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		retry:   retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchPage struct {
	Scenes     []SceneDescriptor `json:"scenes"`
	TotalCount int               `json:"total_count"`
}

// Search pages through the provider catalog until the result set is
// exhausted or MaxItems is reached. On a mid-search provider failure the
// scenes fetched so far are returned alongside the error.
func (c *httpClient) Search(ctx context.Context, req SearchRequest) ([]SceneDescriptor, error) {
	var scenes []SceneDescriptor
	startIndex := 0

	for {
		pageSize := c.cfg.PageSize
		if req.MaxItems > 0 && req.MaxItems-len(scenes) < pageSize {
			pageSize = req.MaxItems - len(scenes)
		}

		body := map[string]any{
			"aoi":             req.AOI,
			"from":            req.From.UTC().Format(time.RFC3339),
			"to":              req.To.UTC().Format(time.RFC3339),
			"max_cloud_cover": req.MaxCloudCover,
			"maxResults":      pageSize,
			"startIndex":      startIndex,
		}

		page, err := resilience.DoVal(ctx, c.retry, "catalog search", func(ctx context.Context) (*searchPage, error) {
			var p searchPage
			if err := c.doJSON(ctx, http.MethodPost, "/api/v1/catalog/search", body, &p); err != nil {
				return nil, err
			}
			return &p, nil
		})
		if err != nil {
			return scenes, err
		}

		scenes = append(scenes, page.Scenes...)
		zap.S().Debugw("catalog page fetched",
			"start_index", startIndex,
			"page_scenes", len(page.Scenes),
			"total_scenes", len(scenes),
		)

		if len(page.Scenes) < pageSize {
			return scenes, nil
		}
		if req.MaxItems > 0 && len(scenes) >= req.MaxItems {
			return scenes[:req.MaxItems], nil
		}
		startIndex += len(page.Scenes)
	}
}

type bandsResponse struct {
	Bands map[string]*Grid `json:"bands"`
}

// FetchBands downloads two co-registered band rasters for one scene.
// A 404 from the provider means the scene has no raster data and maps to
// ErrBandsUnavailable.
func (c *httpClient) FetchBands(ctx context.Context, productID, bandA, bandB string) (*Grid, *Grid, error) {
	path := fmt.Sprintf("/api/v1/scenes/%s/bands?bands=%s",
		url.PathEscape(productID), url.QueryEscape(bandA+","+bandB))

	resp, err := resilience.DoVal(ctx, c.retry, "fetch bands", func(ctx context.Context) (*bandsResponse, error) {
		var r bandsResponse
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		var nf *notFoundError
		if errors.As(err, &nf) {
			return nil, nil, eris.Wrapf(ErrBandsUnavailable, "catalog: scene %s", productID)
		}
		return nil, nil, err
	}

	a, okA := resp.Bands[bandA]
	b, okB := resp.Bands[bandB]
	if !okA || !okB {
		return nil, nil, eris.Wrapf(ErrBandsUnavailable, "catalog: scene %s", productID)
	}
	return a, b, nil
}

// doJSON performs one authenticated request. A 401 triggers exactly one
// re-authentication before the request is repeated; a second 401 surfaces
// as AuthExpiredError.
func (c *httpClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "catalog: rate limit")
	}

	status, data, err := c.request(ctx, method, path, body, false)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		status, data, err = c.request(ctx, method, path, body, true)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return &resilience.AuthExpiredError{
				Err: eris.Errorf("catalog: %s %s returned 401 after re-authentication", method, path),
			}
		}
	}

	switch {
	case status == http.StatusNotFound:
		return &notFoundError{method: method, path: path}
	case resilience.IsTransientHTTPStatus(status):
		return resilience.NewTransientError(
			eris.Errorf("catalog: %s %s returned %d: %s", method, path, status, truncate(data)), status)
	case status < 200 || status >= 300:
		return eris.Errorf("catalog: %s %s returned %d: %s", method, path, status, truncate(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "catalog: decode %s %s", method, path)
	}
	return nil
}

func (c *httpClient) request(ctx context.Context, method, path string, body any, forceAuth bool) (int, []byte, error) {
	token, err := c.accessToken(ctx, forceAuth)
	if err != nil {
		return 0, nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, eris.Wrap(err, "catalog: encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "catalog: build %s %s", method, path)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "catalog: %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "catalog: read %s %s", method, path)
	}
	return resp.StatusCode, data, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the cached token, refreshing when it is absent,
// within the expiry slack, or when force is set.
func (c *httpClient) accessToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "catalog: build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "catalog: token request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "catalog: read token response")
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return "", resilience.NewTransientError(
			eris.Errorf("catalog: token endpoint returned %d: %s", resp.StatusCode, truncate(data)),
			resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("catalog: token endpoint returned %d: %s", resp.StatusCode, truncate(data))
	}

	var tok tokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", eris.Wrap(err, "catalog: decode token response")
	}
	if tok.AccessToken == "" {
		return "", eris.New("catalog: token response has no access_token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySlack)
	zap.S().Debugw("provider token refreshed", "expires_in", tok.ExpiresIn)
	return c.token, nil
}

// notFoundError marks a 404 so callers can map it per endpoint.
type notFoundError struct {
	method, path string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("catalog: %s %s returned 404", e.method, e.path)
}

func truncate(data []byte) string {
	const limit = 200
	s := string(data)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
