package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/httpclient"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	webhookSecretHeader   = "X-Webhook-Secret"

	// maxErrorBodySize limits how much of a failed response is read into the error
	maxErrorBodySize = 1024
)

// WebhookChannel POSTs alerts as JSON. Non-2xx answers are failures and
// are not retried.
type WebhookChannel struct {
	name    string
	enabled bool
	url     string
	secret  string
	timeout time.Duration
	client  *httpclient.Client
}

// NewWebhookChannel creates a webhook channel; a zero timeout means 10s.
// client may be nil.
func NewWebhookChannel(enabled bool, endpoint, secret string, timeout time.Duration, client *httpclient.Client) *WebhookChannel {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if client == nil {
		client = httpclient.New(&httpclient.Config{DefaultTimeout: timeout})
	}
	return &WebhookChannel{
		name:    "webhook",
		enabled: enabled,
		url:     endpoint,
		secret:  secret,
		timeout: timeout,
		client:  client,
	}
}

// GetName returns the configured webhook name
func (w *WebhookChannel) GetName() string { return w.name }

// Kind returns KindWebhook
func (w *WebhookChannel) Kind() ChannelKind { return KindWebhook }

// IsEnabled reports whether the webhook is on
func (w *WebhookChannel) IsEnabled() bool { return w.enabled }

// ValidateConfig requires an absolute http or https URL.
func (w *WebhookChannel) ValidateConfig() error {
	if !w.enabled {
		return nil
	}
	if w.url == "" {
		return fmt.Errorf("webhook url is required")
	}
	u, err := url.Parse(w.url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url has no host")
	}
	return nil
}

// Send POSTs the alert as JSON. Non-2xx responses are returned as errors and
// not retried.
func (w *WebhookChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var headers map[string]string
	if w.secret != "" {
		headers = map[string]string{webhookSecretHeader: w.secret}
	}

	start := time.Now()
	resp, err := w.client.PostJSON(ctx, w.url, newWebhookPayload(alert), headers)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryNetwork).
			Context("channel", w.name).
			Timing("webhook_post", time.Since(start)).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return errors.Newf("webhook returned status %d: %s", resp.StatusCode, string(body)).
			Component("notification").
			Category(errors.CategoryHTTP).
			Context("channel", w.name).
			Context("status_code", resp.StatusCode).
			Build()
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
