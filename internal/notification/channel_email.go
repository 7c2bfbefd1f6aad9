package notification

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"strconv"
	"strings"

	"github.com/tphakala/healthmon/internal/alerting"
)

// EmailSettings holds SMTP parameters for the email channel
type EmailSettings struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	UseTLS     bool
}

// EmailChannel sends plaintext alert mail to the configured admin
// addresses through shoutrrr's smtp service.
type EmailChannel struct {
	settings EmailSettings
	enabled  bool
	inner    *ShoutrrrChannel
}

// NewEmailChannel creates an email channel
func NewEmailChannel(enabled bool, settings EmailSettings) *EmailChannel {
	return &EmailChannel{settings: settings, enabled: enabled}
}

// GetName returns "email"
func (e *EmailChannel) GetName() string { return "email" }

// Kind returns KindEmail
func (e *EmailChannel) Kind() ChannelKind { return KindEmail }

// IsEnabled reports whether the channel is switched on in settings
func (e *EmailChannel) IsEnabled() bool { return e.enabled }

// ValidateConfig checks the SMTP settings and builds the underlying sender.
func (e *EmailChannel) ValidateConfig() error {
	if !e.enabled {
		return nil
	}
	s := e.settings
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("smtp host is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("smtp port %d out of range", s.Port)
	}
	if _, err := mail.ParseAddress(s.From); err != nil {
		return fmt.Errorf("invalid from address %q: %w", s.From, err)
	}
	for _, r := range s.Recipients {
		if _, err := mail.ParseAddress(r); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", r, err)
		}
	}
	if len(s.Recipients) == 0 {
		// Valid, but every send will be skipped
		return nil
	}

	e.inner = NewShoutrrrChannel("email", true, []string{e.smtpURL()}, 0)
	e.inner.kind = KindEmail
	return e.inner.ValidateConfig()
}

// Send mails the alert to every recipient. No recipients is not a failure.
func (e *EmailChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	if len(e.settings.Recipients) == 0 {
		return ErrNothingToSend
	}
	if e.inner == nil {
		return fmt.Errorf("email sender not initialized")
	}
	return e.inner.Send(ctx, alert)
}

// smtpURL renders the settings as a shoutrrr smtp service URL
func (e *EmailChannel) smtpURL() string {
	s := e.settings
	u := url.URL{
		Scheme: "smtp",
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:   "/",
	}
	if s.Username != "" {
		u.User = url.UserPassword(s.Username, s.Password)
	}

	q := url.Values{}
	q.Set("from", s.From)
	q.Set("to", strings.Join(s.Recipients, ","))
	if s.UseTLS {
		q.Set("encryption", "ExplicitTLS")
	} else {
		q.Set("encryption", "None")
	}
	if s.Username != "" {
		q.Set("auth", "Plain")
	} else {
		q.Set("auth", "None")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
