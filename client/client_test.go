package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/habedi/uniboard/client"
	"github.com/habedi/uniboard/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_AddsBearerToken(t *testing.T) {
	backend := newFakeBackend(t)
	store := storeWith(t, "t2", "r1")
	c := newTestClient(t, backend.URL(), store)

	body, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/summary/", nil, nil)

	require.NoError(t, err)
	assert.Contains(t, string(body), `"ok":true`)
	assert.Equal(t, []string{"Bearer t2"}, backend.headers())
	assert.EqualValues(t, 0, backend.refreshCalls.Load())
}

// Anonymous requests go out without credentials.
func TestRequest_NoTokenSendsNoAuthorization(t *testing.T) {
	var gotAuth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Values("Authorization")
		writeJSON(w, http.StatusOK, map[string]string{"status": "public"})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, session.NewMemoryStore())
	body, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/filters/", nil, nil)

	require.NoError(t, err)
	assert.Contains(t, string(body), "public")
	assert.Empty(t, gotAuth)
}

func TestRequest_EncodesQueryAndBody(t *testing.T) {
	var gotQuery, gotType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		writeJSON(w, http.StatusCreated, map[string]int{"id": 3})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/", session.NewMemoryStore())
	_, err := c.Request(context.Background(), http.MethodPost, "api/users/create/",
		map[string]string{"username": "kim"}, url.Values{"year": {"2024"}})

	require.NoError(t, err)
	assert.Equal(t, "year=2024", gotQuery)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"username":"kim"}`, gotBody)
}

// A single 401 triggers one refresh and one retry with the new token.
func TestRequest_RefreshesOnceAndRetries(t *testing.T) {
	backend := newFakeBackend(t)
	store := storeWith(t, "t1", "r1")
	before := store.Snapshot()
	c := newTestClient(t, backend.URL(), store)

	body, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/kpi/", nil, nil)

	require.NoError(t, err)
	assert.Contains(t, string(body), "/api/dashboard/kpi/")
	assert.EqualValues(t, 1, backend.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer t1", "Bearer t2"}, backend.headers())

	after := store.Snapshot()
	assert.Equal(t, "t2", after[session.KeyAccessToken])
	assert.Equal(t, before[session.KeyRefreshToken], after[session.KeyRefreshToken])
	assert.Equal(t, before[session.KeyUserInfo], after[session.KeyUserInfo])
}

func TestRequest_RetryReusesRequestID(t *testing.T) {
	backend := newFakeBackend(t)
	c := newTestClient(t, backend.URL(), storeWith(t, "t1", "r1"))

	_, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/kpi/", nil, nil)
	require.NoError(t, err)

	backend.mu.Lock()
	ids := append([]string(nil), backend.requestIDs...)
	backend.mu.Unlock()
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[1])
}

// A second 401 is returned, not retried.
func TestRequest_SecondUnauthorizedIsNotRetried(t *testing.T) {
	backend := newFakeBackend(t)
	// The refresh succeeds but hands out a token the resource still rejects.
	backend.nextAccess = "t3"
	backend.handle("/api/dashboard/students/", func(w http.ResponseWriter, r *http.Request) {
		backend.protected.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "still not valid"})
	})
	store := storeWith(t, "t1", "r1")
	c := newTestClient(t, backend.URL(), store)

	_, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/students/", nil, nil)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "still not valid", apiErr.Message)
	assert.False(t, apiErr.SessionCleared)
	assert.EqualValues(t, 1, backend.refreshCalls.Load())
	assert.EqualValues(t, 2, backend.protected.Load())
	assert.Equal(t, "t3", store.Snapshot()[session.KeyAccessToken])
}

// A rejected refresh clears the whole session.
func TestRequest_RefreshRejectedClearsSession(t *testing.T) {
	backend := newFakeBackend(t)
	backend.refreshCode = http.StatusUnauthorized
	store := storeWith(t, "t1", "r1")

	var expired []error
	c := newTestClient(t, backend.URL(), store, client.WithSessionExpiredHandler(func(cause error) {
		expired = append(expired, cause)
	}))

	_, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/research/", nil, nil)

	require.Error(t, err)
	assert.True(t, client.IsKind(err, client.Unauthenticated))
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.SessionCleared)
	assert.Empty(t, store.Snapshot(), "all session keys should be removed")
	assert.Len(t, expired, 1)
	assert.EqualValues(t, 1, backend.refreshCalls.Load())
	assert.EqualValues(t, 1, backend.protected.Load(), "original request must not be retried")
}

// No refresh token stored.
func TestRequest_NoRefreshTokenClearsSession(t *testing.T) {
	backend := newFakeBackend(t)
	store := storeWith(t, "t1", "")
	expired := 0
	c := newTestClient(t, backend.URL(), store, client.WithSessionExpiredHandler(func(error) { expired++ }))

	_, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/kpi/", nil, nil)

	assert.True(t, client.IsKind(err, client.Unauthenticated))
	assert.Empty(t, store.Snapshot())
	assert.Equal(t, 1, expired)
	assert.EqualValues(t, 0, backend.refreshCalls.Load())
}

func TestRequest_RefreshTransportFailureClearsSession(t *testing.T) {
	// The protected resource answers 401; the refresh endpoint is unreachable
	// because the handler aborts the connection.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == client.RefreshPath {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
	}))
	defer server.Close()

	store := storeWith(t, "t1", "r1")
	c := newTestClient(t, server.URL, store)

	_, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/kpi/", nil, nil)

	assert.True(t, client.IsKind(err, client.Unauthenticated))
	assert.Empty(t, store.Snapshot())
}

func TestRequest_ErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    client.Kind
		message string
	}{
		{"validation detail", http.StatusBadRequest, `{"detail":"bad year"}`, client.ValidationFailure, "bad year"},
		{"error envelope", http.StatusForbidden, `{"error":true,"code":"permission_denied","message":"admins only"}`, client.ValidationFailure, "admins only"},
		{"field errors", http.StatusBadRequest, `{"username":["already exists"],"role":["invalid"]}`, client.ValidationFailure, "role: invalid; username: already exists"},
		{"not found", http.StatusNotFound, ``, client.ValidationFailure, "Not Found"},
		{"server failure", http.StatusInternalServerError, `<html>oops</html>`, client.ServerFailure, "Internal Server Error"},
		{"bad gateway", http.StatusBadGateway, `{"detail":"upstream"}`, client.ServerFailure, "upstream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			store := storeWith(t, "t1", "r1")
			before := store.Snapshot()
			c := newTestClient(t, server.URL, store)

			_, err := c.Request(context.Background(), http.MethodGet, "/api/x/", nil, nil)

			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, before, store.Snapshot(), "non-401 errors must not touch the session")
		})
	}
}

func TestRequest_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, server.URL, session.NewMemoryStore(), client.WithTimeout(50*time.Millisecond))

	_, err := c.Request(context.Background(), http.MethodGet, "/api/slow/", nil, nil)

	assert.True(t, client.IsKind(err, client.Timeout), "got %v", err)
}

func TestRequest_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := server.URL
	server.Close()

	c := newTestClient(t, addr, session.NewMemoryStore())
	_, err := c.Request(context.Background(), http.MethodGet, "/api/x/", nil, nil)

	assert.True(t, client.IsKind(err, client.NetworkFailure), "got %v", err)
}

// Concurrent failures refresh independently by default.
func TestRequest_ConcurrentFailuresRefreshIndependently(t *testing.T) {
	backend := newFakeBackend(t)
	store := storeWith(t, "t1", "r1")
	c := newTestClient(t, backend.URL(), store)

	runConcurrently(t, c, 5)

	assert.GreaterOrEqual(t, backend.refreshCalls.Load(), int32(1))
	assert.Equal(t, "t2", store.Snapshot()[session.KeyAccessToken])
}

func TestRequest_SingleFlightRefresh(t *testing.T) {
	const callers = 5
	backend := newFakeBackend(t)
	store := storeWith(t, "t1", "r1")

	// Hold the refresh until every caller has seen its 401.
	var rejected atomic.Int32
	gate := make(chan struct{})
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == client.RefreshPath {
			<-gate
			time.Sleep(50 * time.Millisecond)
			return http.DefaultTransport.RoundTrip(r)
		}
		resp, err := http.DefaultTransport.RoundTrip(r)
		if err == nil && resp.StatusCode == http.StatusUnauthorized && rejected.Add(1) == callers {
			close(gate)
		}
		return resp, err
	})
	c := newTestClient(t, backend.URL(), store,
		client.WithSingleFlightRefresh(),
		client.WithHTTPClient(&http.Client{Timeout: 5 * time.Second, Transport: transport}),
	)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/summary/", nil, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, backend.refreshCalls.Load())
	assert.Equal(t, "t2", store.Snapshot()[session.KeyAccessToken])
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := client.New("http://localhost:8000", nil)
	assert.Error(t, err)

	_, err = client.New("localhost:8000", session.NewMemoryStore())
	assert.Error(t, err)

	c, err := client.New("https://api.example.edu/", session.NewMemoryStore())
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.edu", c.BaseURL())
}

func TestAPIError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &client.APIError{Kind: client.NetworkFailure, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "network: dial tcp: refused", err.Error())

	err = &client.APIError{Kind: client.ValidationFailure, Status: 400, Message: "bad"}
	assert.Equal(t, "validation (HTTP 400): bad", err.Error())
	assert.False(t, client.IsKind(errors.New("plain"), client.ValidationFailure))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func runConcurrently(t *testing.T, c *client.Client, n int) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/kpi/", nil, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

// clearFailingStore refuses to clear so callers can see a failed expiry.
type clearFailingStore struct {
	*session.MemoryStore
}

func (s clearFailingStore) Clear(context.Context) error {
	return errors.New("store is read-only")
}

func TestRequest_FailedClearIsNotReportedAsCleared(t *testing.T) {
	backend := newFakeBackend(t)
	backend.refreshCode = http.StatusUnauthorized
	store := clearFailingStore{storeWith(t, "t1", "r1")}

	expired := 0
	c := newTestClient(t, backend.URL(), store, client.WithSessionExpiredHandler(func(error) { expired++ }))

	_, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/kpi/", nil, nil)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, client.Unauthenticated, apiErr.Kind)
	assert.False(t, apiErr.SessionCleared)
	assert.Zero(t, expired, "subscribers must not hear about a session that is still stored")
	assert.Equal(t, "r1", store.Snapshot()[session.KeyRefreshToken])
}

func TestRequest_SingleFlightSurvivesFirstCallerCancel(t *testing.T) {
	var refreshes atomic.Int32
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == client.RefreshPath {
			if refreshes.Add(1) == 1 {
				close(started)
			}
			time.Sleep(400 * time.Millisecond)
			writeJSON(w, http.StatusOK, client.RefreshResponse{Access: "t2"})
			return
		}
		if r.Header.Get("Authorization") != "Bearer t2" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}))
	defer server.Close()

	store := storeWith(t, "t1", "r1")
	c := newTestClient(t, server.URL, store, client.WithSingleFlightRefresh())

	firstCtx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Request(firstCtx, http.MethodGet, "/api/dashboard/kpi/", nil, nil)
		firstErr <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never started")
	}

	// Joins the exchange the first caller started, then outlives that caller.
	body, err := c.Request(context.Background(), http.MethodGet, "/api/dashboard/kpi/", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"ok":true`)
	assert.Error(t, <-firstErr)
	assert.EqualValues(t, 1, refreshes.Load())
	assert.Equal(t, "t2", store.Snapshot()[session.KeyAccessToken])
}
