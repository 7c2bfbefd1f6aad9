package notification

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/healthmon/internal/alerting"
	"github.com/tphakala/healthmon/internal/errors"
)

// WebhookPayload is the JSON body POSTed to webhook endpoints
type WebhookPayload struct {
	AlertID   string             `json:"alert_id"`
	AlertType alerting.AlertType `json:"alert_type"`
	Severity  alerting.Severity  `json:"severity"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Timestamp string             `json:"timestamp"`
	Context   map[string]any     `json:"context"`
}

func newWebhookPayload(a *alerting.Alert) WebhookPayload {
	ctx := a.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	return WebhookPayload{
		AlertID:   a.ID,
		AlertType: a.Type,
		Severity:  a.Severity,
		Title:     a.Title,
		Message:   a.Message,
		Timestamp: a.CreatedAt.UTC().Format(time.RFC3339Nano),
		Context:   ctx,
	}
}

// emailSubject prefixes the alert title with the service name
func emailSubject(a *alerting.Alert) string {
	return "[healthmon] " + a.Title
}

// emailBody renders the plaintext body shared by email and chat channels
func emailBody(a *alerting.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", a.Title)
	fmt.Fprintf(&b, "Alert Type: %s\n", a.Type)
	fmt.Fprintf(&b, "Severity: %s\n", strings.ToUpper(string(a.Severity)))
	fmt.Fprintf(&b, "Message: %s\n", a.Message)
	fmt.Fprintf(&b, "Time: %s\n", a.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Alert ID: %s\n", a.ID)
	if a.Count > 1 {
		fmt.Fprintf(&b, "Occurrences: %d\n", a.Count)
	}
	if a.EscalationLevel > 0 {
		fmt.Fprintf(&b, "Escalation Level: %d\n", a.EscalationLevel)
	}
	if len(a.Context) > 0 {
		data, err := json.MarshalIndent(a.Context, "", "  ")
		if err == nil {
			fmt.Fprintf(&b, "\nContext:\n%s\n", data)
		}
	}
	return b.String()
}

// sanitizeError strips credentials from errors raised by URL based senders
func sanitizeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.NewStd(errors.ScrubMessage(err.Error()))
}
