package monitor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tphakala/healthmon/internal/httpclient"
)

// HTTPLatencyProbe times a GET against a health endpoint. Any 5xx answer
// counts as a failure.
type HTTPLatencyProbe struct {
	url    string
	client *httpclient.Client
}

// NewHTTPLatencyProbe creates a probe whose requests give up after timeout
func NewHTTPLatencyProbe(url string, timeout time.Duration) *HTTPLatencyProbe {
	return &HTTPLatencyProbe{
		url:    url,
		client: httpclient.New(&httpclient.Config{DefaultTimeout: timeout}),
	}
}

func (p *HTTPLatencyProbe) Measure(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	resp, err := p.client.Get(ctx, p.url)
	if err != nil {
		return time.Since(start), fmt.Errorf("latency probe %s: %w", p.url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode >= http.StatusInternalServerError {
		return elapsed, fmt.Errorf("latency probe %s: status %d", p.url, resp.StatusCode)
	}
	return elapsed, nil
}
