package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rotatingProvider swaps its token on refresh, mimicking credential
// rotation.
type rotatingProvider struct {
	current      atomic.Value
	refreshCalls atomic.Int64
}

func newRotatingProvider(initial string) *rotatingProvider {
	p := &rotatingProvider{}
	p.current.Store(initial)
	return p
}

func (p *rotatingProvider) AccessToken(ctx context.Context) (string, error) {
	return p.current.Load().(string), nil
}

func (p *rotatingProvider) Refresh(ctx context.Context) error {
	p.refreshCalls.Add(1)
	p.current.Store("refreshed-token")
	return nil
}

func newTestClient(baseURL string, tokens *rotatingProvider) *Client {
	return NewClient(Config{
		BaseURL:           baseURL,
		Timeout:           5 * time.Second,
		MaxRetries:        3,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     2 * time.Millisecond,
		RequestsPerSecond: 1000,
	}, tokens, nil)
}

func TestFetchSuccess(t *testing.T) {
	var gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"candles": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, newRotatingProvider("tok-1"))
	body, err := client.Fetch(context.Background(), "marketdata/v1/pricehistory",
		map[string]string{"symbol": "NWL", "frequency": "30"})

	require.NoError(t, err)
	assert.Equal(t, `{"candles": []}`, string(body))
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Contains(t, gotQuery, "symbol=NWL")
	assert.Contains(t, gotQuery, "frequency=30")
}

func TestFetchRefreshesTokenOnceOn401(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	tokens := newRotatingProvider("expired-token")
	client := newTestClient(server.URL, tokens)

	body, err := client.Fetch(context.Background(), "endpoint", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int64(1), tokens.refreshCalls.Load())
	assert.Equal(t, int64(2), calls.Load())
}

func TestFetchPersistentAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := newRotatingProvider("bad-token")
	client := newTestClient(server.URL, tokens)

	_, err := client.Fetch(context.Background(), "endpoint", nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, int64(1), tokens.refreshCalls.Load(), "refresh is attempted exactly once")
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, newRotatingProvider("tok"))
	body, err := client.Fetch(context.Background(), "endpoint", nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int64(3), calls.Load())
}

func TestFetchExhaustedRetries(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, newRotatingProvider("tok"))
	_, err := client.Fetch(context.Background(), "endpoint", nil)

	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, int64(4), calls.Load(), "initial attempt plus max retries")
}

func TestFetchClientErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL, newRotatingProvider("tok"))
	_, err := client.Fetch(context.Background(), "endpoint", nil)

	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int64(1), calls.Load())
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(server.URL, newRotatingProvider("tok"))
	_, err := client.Fetch(ctx, "endpoint", nil)
	require.Error(t, err)
}
