package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func closeBody(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp == nil || resp.Body == nil {
		return
	}
	if err := resp.Body.Close(); err != nil {
		t.Logf("failed to close response body: %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	c := New(nil)
	assert.Equal(t, DefaultTimeout, c.defaultTimeout)
	assert.Equal(t, defaultUserAgent, c.userAgent)

	c = New(&Config{DefaultTimeout: time.Second, UserAgent: "probe/1.0"})
	assert.Equal(t, time.Second, c.defaultTimeout)
	assert.Equal(t, "probe/1.0", c.userAgent)
}

func TestGetSetsUserAgentAndReadsBody(t *testing.T) {
	t.Parallel()

	var gotUA string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	})

	c := New(nil)
	t.Cleanup(c.Close)

	resp, err := c.Get(t.Context(), server.URL)
	require.NoError(t, err)
	defer closeBody(t, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, defaultUserAgent, gotUA)
}

func TestDefaultTimeoutApplied(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c := New(&Config{DefaultTimeout: 50 * time.Millisecond})
	t.Cleanup(c.Close)

	start := time.Now()
	resp, err := c.Get(context.Background(), server.URL)
	closeBody(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCallerDeadlineWins(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	})

	c := New(&Config{DefaultTimeout: 10 * time.Millisecond})
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	resp, err := c.Get(ctx, server.URL)
	require.NoError(t, err)
	defer closeBody(t, resp)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPostJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		AlertID string `json:"alert_id"`
	}
	var got payload
	var gotSecret, gotType string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Webhook-Secret")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	})

	c := New(nil)
	t.Cleanup(c.Close)

	resp, err := c.PostJSON(t.Context(), server.URL, payload{AlertID: "a1"}, map[string]string{"X-Webhook-Secret": "s3cret"})
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "a1", got.AlertID)
	assert.Equal(t, "s3cret", gotSecret)
	assert.Equal(t, "application/json", gotType)
}

func TestPostJSONMarshalError(t *testing.T) {
	t.Parallel()

	c := New(nil)
	_, err := c.PostJSON(t.Context(), "http://127.0.0.1:0", map[string]any{"bad": make(chan int)}, nil)
	require.Error(t, err)
}
