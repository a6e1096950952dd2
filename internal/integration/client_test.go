package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/support-integrations/pkg/logging"
)

type recordingObserver struct {
	calls    int
	statuses []int
}

func (o *recordingObserver) ObserveCall(service string, status int, seconds float64) {
	o.calls++
	o.statuses = append(o.statuses, status)
}

func TestCall_PostsJSONAndReturnsBody(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"text":"hi"}]`))
	}))
	defer ts.Close()

	obs := &recordingObserver{}
	c := New("bot", WithObserver(obs), WithLogger(logging.Discard()))
	resp, err := c.Call(context.Background(), http.MethodPost, ts.URL, map[string]string{"message": "hello"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, `[{"text":"hi"}]`, string(resp.Body))
	assert.Equal(t, "hello", got["message"])
	assert.Equal(t, 1, obs.calls)
}

func TestCall_Non200IsResponseNotError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer ts.Close()

	c := New("identity")
	resp, err := c.Call(context.Background(), http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCall_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c := New("bot", WithTimeout(50*time.Millisecond))
	resp, err := c.Call(context.Background(), http.MethodPost, ts.URL, map[string]string{})
	require.Error(t, err)
	assert.Nil(t, resp)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Timeout())
	assert.True(t, IsTransport(err))
}

func TestCall_ConnectionRefusedIsTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := New("identity")
	_, err := c.Call(context.Background(), http.MethodGet, url, nil)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestCall_RetriesServerErrorsWhenEnabled(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := New("identity", WithMaxRetries(2), WithBackoff(time.Millisecond), WithLogger(logging.Discard()))
	resp, err := c.Call(context.Background(), http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestCall_NoRetryByDefault(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := New("bot")
	resp, err := c.Call(context.Background(), http.MethodPost, ts.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCall_UnencodablePayload(t *testing.T) {
	c := New("bot")
	_, err := c.Call(context.Background(), http.MethodPost, "http://example.invalid", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.False(t, IsTransport(err))
}
