package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/tphakala/healthmon/internal/alerting"
)

const defaultShoutrrrTimeout = 10 * time.Second

// ShoutrrrChannel sends alerts to any shoutrrr service URL (slack,
// telegram, discord, smtp, ...) through one router.
type ShoutrrrChannel struct {
	name    string
	kind    ChannelKind
	enabled bool
	urls    []string
	timeout time.Duration
	sender  *router.ServiceRouter
}

// NewShoutrrrChannel creates a channel for the given service URLs
func NewShoutrrrChannel(name string, enabled bool, urls []string, timeout time.Duration) *ShoutrrrChannel {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "shoutrrr"
	}
	if timeout <= 0 {
		timeout = defaultShoutrrrTimeout
	}
	return &ShoutrrrChannel{
		name:    name,
		kind:    KindShoutrrr,
		enabled: enabled,
		urls:    slices.Clone(urls),
		timeout: timeout,
	}
}

// GetName returns the configured channel name
func (s *ShoutrrrChannel) GetName() string { return s.name }

// Kind returns the kind this channel was built for, such as slack
func (s *ShoutrrrChannel) Kind() ChannelKind { return s.kind }

// IsEnabled reports whether the channel is on
func (s *ShoutrrrChannel) IsEnabled() bool { return s.enabled }

// ValidateConfig parses the URLs and builds the sender
func (s *ShoutrrrChannel) ValidateConfig() error {
	if !s.enabled {
		return nil
	}
	if len(s.urls) == 0 {
		return fmt.Errorf("at least one URL is required")
	}
	sender, err := shoutrrr.CreateSender(s.urls...)
	if err != nil {
		return sanitizeError(err)
	}
	sender.Timeout = s.timeout
	sender.SetLogger(log.New(io.Discard, "", 0))
	s.sender = sender
	return nil
}

// Send delivers the plaintext alert body. The router enforces its own timeout.
func (s *ShoutrrrChannel) Send(_ context.Context, alert *alerting.Alert) error {
	if s.sender == nil {
		return fmt.Errorf("%s sender not initialized", s.name)
	}

	params := stypes.Params{}
	params.SetTitle(emailSubject(alert))
	for _, err := range s.sender.Send(emailBody(alert), &params) {
		if err != nil {
			return sanitizeError(err)
		}
	}
	return nil
}
