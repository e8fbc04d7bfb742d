package supabase

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vegdirect/storefront/internal/httputil"
)

const (
	defaultTimeout = 30 * time.Second

	// maxResponseBytes bounds row/object payloads read into memory.
	maxResponseBytes = 8 << 20
	// maxErrorBodyBytes bounds error bodies captured for diagnostics.
	maxErrorBodyBytes = 32 << 10
)

// Client talks to the hosted backend. Sub-clients expose the REST, auth,
// storage and realtime surfaces; all share one HTTP core.
type Client struct {
	cfg        Config
	httpClient *http.Client

	projectURL  string
	restURL     string
	authURL     string
	storageURL  string
	realtimeURL string

	allowedHosts map[string]bool

	DB       *DatabaseClient
	Auth     *AuthClient
	Storage  *StorageClient
	Realtime *RealtimeClient
}

// NewClient validates cfg and builds a client with derived service URLs.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("supabase: project URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("supabase: anon key is required")
	}
	base, err := url.Parse(cfg.ProjectURL)
	if err != nil {
		return nil, fmt.Errorf("supabase: invalid project URL: %w", err)
	}
	if base.Scheme != "https" && base.Scheme != "http" {
		return nil, fmt.Errorf("supabase: unsupported scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	allowed := map[string]bool{base.Host: true}
	for _, h := range cfg.AllowedHosts {
		allowed[h] = true
	}

	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	resilient := NewResilientTransport(transport, retry, NewCircuitBreaker(5, 30*time.Second))
	resilient.onOutcome = cfg.OnRequestOutcome
	resilient.onBreakerOpen = cfg.OnBreakerOpen

	projectURL := strings.TrimRight(base.String(), "/")
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: resilient, Timeout: cfg.Timeout},

		projectURL:  projectURL,
		restURL:     projectURL + "/rest/v1",
		authURL:     projectURL + "/auth/v1",
		storageURL:  projectURL + "/storage/v1",
		realtimeURL: derivedRealtimeURL(base),

		allowedHosts: allowed,
	}
	c.DB = &DatabaseClient{client: c}
	c.Auth = &AuthClient{client: c}
	c.Storage = &StorageClient{client: c}
	c.Realtime = NewRealtimeClient(c)
	return c, nil
}

func derivedRealtimeURL(base *url.URL) string {
	scheme := "wss"
	if base.Scheme == "http" {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/realtime/v1/websocket", scheme, base.Host)
}

// ProjectURL returns the configured backend base URL.
func (c *Client) ProjectURL() string { return c.projectURL }

// Ping checks reachability of the row-storage endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.request(ctx, http.MethodGet, c.restURL+"/", nil, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		return parseError(resp)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	return nil
}

// HasServiceKey reports whether privileged operations are available.
func (c *Client) HasServiceKey() bool { return c.cfg.ServiceKey != "" }

// validateURL rejects requests that would leave the allowed host set.
func (c *Client) validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("supabase: invalid request URL: %w", err)
	}
	if !c.allowedHosts[u.Host] {
		return fmt.Errorf("supabase: host %q not allowed", u.Host)
	}
	return nil
}

// buildHeaders assembles the key and bearer headers for a request. An empty
// token falls back to the anon key as bearer, per hosted-backend convention.
func (c *Client) buildHeaders(token string) map[string]string {
	headers := map[string]string{
		"apikey":       c.cfg.AnonKey,
		"Content-Type": "application/json",
	}
	if token == "" {
		token = c.cfg.AnonKey
	}
	headers["Authorization"] = "Bearer " + token
	for k, v := range c.cfg.DefaultHeaders {
		headers[k] = v
	}
	return headers
}

// request performs an anon-scoped request.
func (c *Client) request(ctx context.Context, method, rawURL string, body io.Reader, headers map[string]string) (*http.Response, error) {
	return c.doRequest(ctx, method, rawURL, body, c.mergeHeaders(c.buildHeaders(""), headers))
}

// requestWithToken performs a request on behalf of an end user.
func (c *Client) requestWithToken(ctx context.Context, token, method, rawURL string, body io.Reader, headers map[string]string) (*http.Response, error) {
	return c.doRequest(ctx, method, rawURL, body, c.mergeHeaders(c.buildHeaders(token), headers))
}

// requestWithServiceKey performs a privileged request.
func (c *Client) requestWithServiceKey(ctx context.Context, method, rawURL string, body io.Reader, headers map[string]string) (*http.Response, error) {
	if c.cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase: service key not configured")
	}
	h := c.buildHeaders(c.cfg.ServiceKey)
	h["apikey"] = c.cfg.ServiceKey
	return c.doRequest(ctx, method, rawURL, body, c.mergeHeaders(h, headers))
}

func (c *Client) mergeHeaders(base, extra map[string]string) map[string]string {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

func (c *Client) doRequest(ctx context.Context, method, rawURL string, body io.Reader, headers map[string]string) (*http.Response, error) {
	if err := c.validateURL(rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("supabase: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase: %s %s: %w", method, req.URL.Path, err)
	}
	return resp, nil
}

// jsonBody marshals v for a request body.
func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("supabase: marshal body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// readBody drains resp.Body up to the payload limit and closes it.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("supabase: read response: %w", err)
	}
	return data, nil
}

// parseError converts a non-2xx response into a structured *Error. The
// backend services disagree on field names, so several are probed.
func parseError(resp *http.Response) *Error {
	defer resp.Body.Close()
	data, _, err := httputil.ReadAllWithLimit(resp.Body, maxErrorBodyBytes)
	e := &Error{StatusCode: resp.StatusCode}
	if err != nil || len(data) == 0 {
		e.Message = http.StatusText(resp.StatusCode)
		return e
	}
	body := string(data)
	if !gjson.Valid(body) {
		e.Message = strings.TrimSpace(body)
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return e
	}
	parsed := gjson.Parse(body)
	for _, key := range []string{"message", "msg", "error_description", "error"} {
		if v := parsed.Get(key); v.Exists() && v.Type == gjson.String {
			e.Message = v.String()
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	e.Code = parsed.Get("code").String()
	e.Details = parsed.Get("details").String()
	e.Hint = parsed.Get("hint").String()
	return e
}
