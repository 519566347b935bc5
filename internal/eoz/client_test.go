package eoz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerhouse-kz/powerhouse/internal/common"
	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// fastDelays keeps retry tests quick.
var fastDelays = []time.Duration{time.Millisecond, time.Millisecond}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
		MaxConcurrent:     10,
		Timeout:           5 * time.Second,
		RetryDelays:       fastDelays,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, srv
}

func TestFetchPage(t *testing.T) {
	var gotPayload pagePayload
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get/page", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte(`{"content":[{"id":"a"},{"id":"b"}],"totalPages":3,"totalElements":2500}`))
	}))

	resp, err := client.FetchPage(context.Background(), model.KindLot, 2)
	require.NoError(t, err)

	assert.Equal(t, "_Lot", gotPayload.Entity)
	assert.Equal(t, 2, gotPayload.Page)
	assert.Equal(t, DefaultPageLength, gotPayload.Length)
	assert.Len(t, resp.Content, 2)
	assert.Equal(t, 3, resp.TotalPages)
	assert.Equal(t, 2500, resp.TotalElements)
}

func TestFetchPageRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"content":[],"totalPages":0,"totalElements":0}`))
	}))

	resp, err := client.FetchPage(context.Background(), model.KindPlan, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPagePermanentNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.FetchPage(context.Background(), model.KindPlan, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPermanent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPageMalformedBodyIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>gateway error</html>`))
	}))

	_, err := client.FetchPage(context.Background(), model.KindPlan, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMalformedBody)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPageRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))

	_, err := client.FetchPage(context.Background(), model.KindPlan, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMaxRetries)
	assert.Equal(t, int32(len(fastDelays)+1), calls.Load())
}

func TestFetchObject(t *testing.T) {
	var gotPayload objectPayload
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get/object", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte(`{"id":"abc","sum":150000}`))
	}))

	raw, err := client.FetchObject(context.Background(), model.KindContract, "abc")
	require.NoError(t, err)

	assert.Equal(t, "OrderDetail", gotPayload.Entity)
	assert.Equal(t, "abc", gotPayload.UUID)
	assert.JSONEq(t, `{"id":"abc","sum":150000}`, string(raw))
}

func TestFetchObjectNotFound(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "json null", body: "null"},
		{name: "empty object", body: "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := client.FetchObject(context.Background(), model.KindContract, "missing")
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrNotFound)
		})
	}
}

func TestSessionCookieAttachedPerKind(t *testing.T) {
	var mu sync.Mutex
	cookies := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload pagePayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		cookies[payload.Entity] = r.Header.Get("Cookie")
		mu.Unlock()
		_, _ = w.Write([]byte(`{"content":[],"totalPages":0,"totalElements":0}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL:       srv.URL,
		SessionCookie: "JSESSIONID=secret",
		RetryDelays:   fastDelays,
	})
	require.NoError(t, err)
	defer client.Close()

	for _, kind := range model.AllKinds {
		_, err := client.FetchPage(context.Background(), kind, 0)
		require.NoError(t, err)
	}

	assert.Equal(t, "JSESSIONID=secret", cookies["_Lot"])
	assert.Empty(t, cookies["Plan"])
	assert.Empty(t, cookies["OrderDetail"])
}

func TestConcurrencyCeiling(t *testing.T) {
	const limit = 3

	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(`{"content":[],"totalPages":0,"totalElements":0}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL:           srv.URL,
		MaxConcurrent:     limit,
		RequestsPerSecond: 1000,
		RetryDelays:       fastDelays,
	})
	require.NoError(t, err)
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.FetchPage(context.Background(), model.KindPlan, 0)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		want   error
		name   string
		status int
	}{
		{name: "ok", status: 200, want: nil},
		{name: "rate limit transient", status: 429, want: common.ErrRateLimit},
		{name: "bad gateway transient", status: 502, want: common.ErrTransient},
		{name: "gateway timeout transient", status: 504, want: common.ErrTransient},
		{name: "request timeout transient", status: 408, want: common.ErrTransient},
		{name: "bad request permanent", status: 400, want: common.ErrPermanent},
		{name: "not found permanent", status: 404, want: common.ErrPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStatus(tt.status)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
