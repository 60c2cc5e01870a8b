package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habedi/uniboard/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

// Backend paths used by the client itself.
const (
	LoginPath   = "/api/auth/login/"
	RefreshPath = "/api/auth/refresh/"
	LogoutPath  = "/api/auth/logout/"
	MePath      = "/api/auth/me/"
)

// DefaultTimeout bounds every network call made by the client.
const DefaultTimeout = 10 * time.Second

// Client talks to the dashboard API on behalf of the stored session.
// It adds the bearer token to each request and renews the access token
// once when a request is rejected with 401.
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	store        session.Store
	onExpired    []func(error)
	refreshGroup *singleflight.Group
	userAgent    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request network timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithSessionExpiredHandler registers fn to be called after the session
// has been cleared because the access token could not be renewed.
func WithSessionExpiredHandler(fn func(cause error)) Option {
	return func(c *Client) { c.onExpired = append(c.onExpired, fn) }
}

// WithSingleFlightRefresh collapses concurrent refreshes of the same
// refresh token into one call to the refresh endpoint.
func WithSingleFlightRefresh() Option {
	return func(c *Client) { c.refreshGroup = &singleflight.Group{} }
}

// WithUserAgent sets the User-Agent header on outbound requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for the API at baseURL backed by store.
func New(baseURL string, store session.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		store:     store,
		userAgent: "uniboard",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Payload is a pre-encoded request body.
type Payload struct {
	ContentType string
	Data        []byte
}

// request describes one API call. It is never modified once built.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	requestID   string
	noRefresh   bool
	progress    io.Writer
}

// Request sends method to path with an optional body and query and returns
// the response body. A body that is not a Payload is encoded as JSON.
func (c *Client) Request(ctx context.Context, method, path string, body any, query url.Values) ([]byte, error) {
	req, err := newRequest(method, path, body, query)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req)
}

func newRequest(method, path string, body any, query url.Values) (request, error) {
	req := request{
		method:    method,
		path:      path,
		query:     query,
		requestID: uuid.NewString(),
	}
	switch b := body.(type) {
	case nil:
	case Payload:
		req.body, req.contentType = b.Data, b.ContentType
	case *Payload:
		req.body, req.contentType = b.Data, b.ContentType
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return request{}, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.body, req.contentType = data, "application/json"
	}
	return req, nil
}

// send runs the request and applies the refresh-and-retry policy.
func (c *Client) send(ctx context.Context, req request) ([]byte, error) {
	body, apiErr := c.do(ctx, req, 0)
	if apiErr == nil {
		return body, nil
	}
	if apiErr.Status != http.StatusUnauthorized || req.noRefresh {
		return nil, apiErr
	}

	refreshToken, ok, err := c.store.Get(ctx, session.KeyRefreshToken)
	if err != nil {
		return nil, c.expire(ctx, apiErr, fmt.Errorf("failed to read refresh token: %w", err))
	}
	if !ok || refreshToken == "" {
		log.Info().Str("path", req.path).Msg("Request rejected and no refresh token is stored")
		return nil, c.expire(ctx, apiErr, nil)
	}

	if _, err := c.refreshAccessToken(ctx, refreshToken); err != nil {
		log.Warn().Err(err).Msg("Access token refresh failed")
		return nil, c.expire(ctx, apiErr, err)
	}

	// The retried request is final: a second 401 is returned as is.
	body, apiErr = c.do(ctx, req, 1)
	if apiErr != nil {
		return nil, apiErr
	}
	return body, nil
}

// do performs one HTTP exchange. attempt is 0 for the original call and 1 for the retry.
func (c *Client) do(ctx context.Context, req request, attempt int) ([]byte, *APIError) {
	httpReq, err := c.buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, &APIError{Kind: NetworkFailure, Err: err}
	}
	accessToken, ok, err := c.store.Get(ctx, session.KeyAccessToken)
	if err != nil {
		return nil, &APIError{Kind: NetworkFailure, Err: fmt.Errorf("failed to read access token: %w", err)}
	}
	if ok && accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	logger := log.Debug().Str("method", req.method).Str("path", req.path).
		Str("request_id", req.requestID).Int("attempt", attempt)
	logger.Msg("Sending API request")

	body, apiErr := c.exchange(httpReq)
	requestsTotal.WithLabelValues(req.method, outcomeLabel(apiErr)).Inc()
	if apiErr != nil {
		log.Debug().Str("method", req.method).Str("path", req.path).Int("status", apiErr.Status).
			Str("kind", string(apiErr.Kind)).Msg("API request failed")
	}
	return body, apiErr
}

func (c *Client) buildHTTPRequest(ctx context.Context, req request) (*http.Request, error) {
	u := c.resolve(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}
	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = wrapWithUploadRateLimiter(ctx, bytes.NewReader(req.body))
		if req.progress != nil {
			if r, ok := req.progress.(interface{ Reset() }); ok {
				r.Reset()
			}
			bodyReader = io.TeeReader(bodyReader, req.progress)
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	if req.body != nil {
		httpReq.ContentLength = int64(len(req.body))
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", req.requestID)
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	return httpReq, nil
}

// exchange sends httpReq and reads the whole response body.
func (c *Client) exchange(httpReq *http.Request) ([]byte, *APIError) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) resolve(path string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return &u
}

// refreshAccessToken exchanges refreshToken for a new access token and
// stores it. Only the access token key is written.
func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if c.refreshGroup == nil {
		return c.exchangeRefreshToken(ctx, refreshToken)
	}
	// The shared exchange outlives any single caller; the client timeout bounds it.
	ch := c.refreshGroup.DoChan(refreshToken, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
		defer cancel()
		return c.exchangeRefreshToken(sharedCtx, refreshToken)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			log.Debug().Msg("Joined an in-flight token refresh")
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) refreshTimeout() time.Duration {
	if c.httpClient.Timeout > 0 {
		return c.httpClient.Timeout
	}
	return DefaultTimeout
}

func (c *Client) exchangeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	data, err := json.Marshal(RefreshRequest{Refresh: refreshToken})
	if err != nil {
		return "", err
	}
	httpReq, err := c.buildHTTPRequest(ctx, request{
		method:      http.MethodPost,
		path:        RefreshPath,
		body:        data,
		contentType: "application/json",
		requestID:   uuid.NewString(),
	})
	if err != nil {
		tokenRefreshTotal.WithLabelValues("error").Inc()
		return "", err
	}
	body, apiErr := c.exchange(httpReq)
	if apiErr != nil {
		tokenRefreshTotal.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("refresh endpoint: %w", apiErr)
	}
	var resp RefreshResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Access == "" {
		tokenRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("refresh endpoint returned no access token")
	}
	// The exchange succeeded; keep its result even if the caller gave up meanwhile.
	if err := session.SetAccessToken(context.WithoutCancel(ctx), c.store, resp.Access); err != nil {
		tokenRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to save refreshed access token: %w", err)
	}
	tokenRefreshTotal.WithLabelValues("ok").Inc()
	log.Info().Str("token", session.Mask(resp.Access)).Msg("Access token refreshed")
	return resp.Access, nil
}

// expire clears the session, notifies subscribers and returns the error
// handed to the caller of the failed request. The clear runs even when ctx
// is already cancelled, since that is often why the refresh failed.
// Subscribers are only notified when the session was actually cleared.
func (c *Client) expire(ctx context.Context, original *APIError, cause error) *APIError {
	clearErr := c.store.Clear(context.WithoutCancel(ctx))
	if clearErr != nil {
		log.Error().Err(clearErr).Msg("Failed to clear session")
	}

	result := &APIError{
		Kind:           Unauthenticated,
		Status:         original.Status,
		Message:        original.Message,
		Body:           original.Body,
		SessionCleared: clearErr == nil,
		Err:            cause,
	}
	if result.Err == nil {
		result.Err = original
	}
	if clearErr != nil {
		return result
	}
	sessionExpiredTotal.Inc()
	for _, fn := range c.onExpired {
		fn(result)
	}
	return result
}
