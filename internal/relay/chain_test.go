package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"asset-tracker-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestChain(paths []Path, timeout time.Duration) *Chain {
	return NewChain(resty.New(), paths, timeout, nil, zap.NewNop())
}

func TestChain_FallsThroughToRelay(t *testing.T) {
	// Arrange
	var upstreamHits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&upstreamHits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, upstream.URL+"/quote?s=AAPL", r.URL.Query().Get("url"))
		_, _ = w.Write([]byte(`{"price": 150.5}`))
	}))
	defer relay.Close()

	chain := newTestChain([]Path{Direct{}, Prefix{Label: "relay", URL: relay.URL + "/raw?url="}}, time.Second)

	// Act
	body, err := chain.Fetch(context.Background(), Request{URL: upstream.URL + "/quote?s=AAPL"}, nil)

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"price": 150.5}`, string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&upstreamHits))
}

func TestChain_UnwrapsContents(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"contents": `{"price": 42}`})
	}))
	defer relay.Close()

	chain := newTestChain([]Path{Prefix{Label: "allorigins", URL: relay.URL + "/get?url="}}, time.Second)

	body, err := chain.Fetch(context.Background(), Request{URL: "https://example.com/x"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price": 42}`, string(body))
}

func TestChain_RejectedBodyTriesNextPath(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>captcha</html>`))
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer second.Close()

	chain := newTestChain([]Path{
		Prefix{Label: "first", URL: first.URL + "/?"},
		Prefix{Label: "second", URL: second.URL + "/?"},
	}, time.Second)

	accept := func(b []byte) bool { return json.Valid(b) }
	body, err := chain.Fetch(context.Background(), Request{URL: "https://example.com"}, accept)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(body))
}

func TestChain_AttemptTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer fast.Close()

	chain := newTestChain([]Path{
		Prefix{Label: "slow", URL: slow.URL + "/?"},
		Prefix{Label: "fast", URL: fast.URL + "/?"},
	}, 100*time.Millisecond)

	start := time.Now()
	_, err := chain.Fetch(context.Background(), Request{URL: "https://example.com"}, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestChain_Exhausted(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	chain := newTestChain([]Path{
		Prefix{Label: "a", URL: down.URL + "/?"},
		Prefix{Label: "b", URL: down.URL + "/?"},
	}, time.Second)

	_, err := chain.Fetch(context.Background(), Request{URL: "https://example.com"}, nil)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Contains(t, err.Error(), "502")
}

func TestWorker_PostsEnvelope(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "k", r.Header.Get("X-Key"))

		var body workerBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://api.example.com/balances", body.URL)
		assert.Equal(t, http.MethodGet, body.Method)
		assert.Equal(t, "k", body.Headers["X-Key"])

		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer worker.Close()

	chain := newTestChain([]Path{Worker{Label: "worker", URL: worker.URL + "/proxy"}}, time.Second)
	body, err := chain.Fetch(context.Background(), Request{
		URL:    "https://api.example.com/balances",
		Header: map[string]string{"X-Key": "k"},
	}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data": []}`, string(body))
}

func TestGet_ParsesFirstAcceptedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price": 7}`))
	}))
	defer srv.Close()

	chain := newTestChain([]Path{Direct{}}, time.Second)
	price, err := Get(context.Background(), chain, Request{URL: srv.URL}, func(b []byte) (float64, bool) {
		var v struct{ Price float64 }
		if json.Unmarshal(b, &v) != nil {
			return 0, false
		}
		return v.Price, v.Price > 0
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, price)
}

func TestPathsFromConfig(t *testing.T) {
	paths, err := PathsFromConfig([]config.Proxy{
		{Name: "direct", Kind: "direct"},
		{Name: "corsproxy", Kind: "prefix", URL: "https://corsproxy.io/?"},
		{Name: "worker", Kind: "worker", URL: "https://w.example/proxy"},
	})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "direct", paths[0].Name())
	assert.Equal(t, "corsproxy", paths[1].Name())
	assert.IsType(t, Worker{}, paths[2])

	_, err = PathsFromConfig([]config.Proxy{{Name: "x", Kind: "socks"}})
	assert.Error(t, err)
}
