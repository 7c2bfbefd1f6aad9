package alerting

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/logger"
	"github.com/tphakala/healthmon/internal/observability/metrics"
)

const (
	DefaultCooldown          = 5 * time.Minute
	DefaultHistorySize       = 10000
	DefaultEscalationTimeout = 15 * time.Minute
	DefaultRetentionDays     = 30
)

// EngineConfig holds the engine tunables
type EngineConfig struct {
	Cooldown          time.Duration   // identical alerts within this window are folded
	HistorySize       int             // history ring capacity
	EscalationTimeout time.Duration   // unacknowledged critical alerts escalate after this
	Thresholds        AlertThresholds // limits used by EvaluateMetrics
}

// DefaultEngineConfig returns the built-in engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Cooldown:          DefaultCooldown,
		HistorySize:       DefaultHistorySize,
		EscalationTimeout: DefaultEscalationTimeout,
		Thresholds:        DefaultThresholds(),
	}
}

// ConfigFromSettings converts loaded settings into an EngineConfig
func ConfigFromSettings(s *conf.AlertingSettings) EngineConfig {
	return EngineConfig{
		Cooldown:          time.Duration(s.Cooldown) * time.Second,
		HistorySize:       s.HistorySize,
		EscalationTimeout: time.Duration(s.EscalationTimeout) * time.Second,
		Thresholds:        s.Thresholds,
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *metrics.AlertMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger overrides the module logger
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine creates and tracks alerts. All state is guarded by mu; notification
// dispatch and handlers always run outside the lock.
type Engine struct {
	mu         sync.Mutex
	cfg        EngineConfig
	active     map[string]*Alert    // every alert not yet removed by cleanup
	history    *alertHistory        // bounded, shares pointers with active
	lastSent   map[string]time.Time // dedup key -> first send time
	dedupIndex map[string]string    // dedup key -> alert id
	handlers   map[AlertType][]Handler

	notifier Notifier
	metrics  *metrics.AlertMetrics
	logger   logger.Logger
	now      func() time.Time
}

// NewEngine creates an alert engine. notifier may be nil, in which case
// alerts are only logged.
func NewEngine(cfg EngineConfig, notifier Notifier, opts ...Option) (*Engine, error) {
	if cfg.Cooldown < 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.EscalationTimeout <= 0 {
		cfg.EscalationTimeout = DefaultEscalationTimeout
	}
	if err := conf.ValidateAlertThresholds(&cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("invalid alert thresholds: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		active:     make(map[string]*Alert),
		history:    newAlertHistory(cfg.HistorySize),
		lastSent:   make(map[string]time.Time),
		dedupIndex: make(map[string]string),
		handlers:   make(map[AlertType][]Handler),
		notifier:   notifier,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = GetLogger()
	}
	return e, nil
}

// SendAlert raises an alert and returns its id. An identical alert (same
// type and message) sent within the cooldown while the earlier one is still
// active is folded into it: its count goes up and no notification is sent.
// An empty id means the alert could not be created.
func (e *Engine) SendAlert(ctx context.Context, alertType AlertType, message string, severity Severity, alertCtx map[string]any) (id string) {
	log := e.logger.WithContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Error("alert creation failed",
				logger.String("alert_type", string(alertType)),
				logger.Any("panic", r))
			id = ""
		}
	}()

	if !alertType.IsValid() || !severity.IsValid() {
		log.Error("rejected alert with unknown type or severity",
			logger.String("alert_type", string(alertType)),
			logger.String("severity", string(severity)))
		return ""
	}

	alert, folded := e.createOrFold(alertType, message, severity, alertCtx)
	if folded {
		log.Debug("alert deduplicated",
			logger.String("alert_id", alert.ID),
			logger.String("alert_type", string(alertType)),
			logger.Int("count", alert.Count))
		if e.metrics != nil {
			e.metrics.RecordDeduplicated(string(alertType))
		}
		return alert.ID
	}

	fields := []logger.Field{
		logger.String("alert_id", alert.ID),
		logger.String("alert_type", string(alertType)),
		logger.String("severity", string(severity)),
		logger.String("message", message),
	}
	if severity == SeverityCritical {
		log.Error("alert raised", fields...)
	} else {
		log.Warn("alert raised", fields...)
	}
	if e.metrics != nil {
		e.metrics.RecordCreated(string(alertType), string(severity))
	}

	e.dispatch(alert)
	e.runHandlers(alert)

	return alert.ID
}

// createOrFold returns a copy of the new or folded alert
func (e *Engine) createOrFold(alertType AlertType, message string, severity Severity, alertCtx map[string]any) (*Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	key := dedupKey(alertType, message)

	if sentAt, ok := e.lastSent[key]; ok && now.Sub(sentAt) < e.cfg.Cooldown {
		// escalated alerts are still unresolved, so repeats fold into them too
		if existing, ok := e.active[e.dedupIndex[key]]; ok &&
			(existing.Status == StatusActive || existing.Status == StatusEscalated) {
			existing.Count++
			existing.UpdatedAt = now
			return existing.Clone(), true
		}
	}

	alert := &Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severity,
		Status:    StatusActive,
		Title:     buildTitle(alertType, severity),
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
		Context:   maps.Clone(alertCtx),
		Count:     1,
	}
	e.active[alert.ID] = alert
	e.history.push(alert)
	e.lastSent[key] = now
	e.dedupIndex[key] = alert.ID
	e.updateActiveGaugeLocked()

	return alert.Clone(), false
}

func (e *Engine) dispatch(alert *Alert) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("notification dispatch panicked",
				logger.String("alert_id", alert.ID),
				logger.Any("panic", r))
		}
	}()
	e.notifier.DispatchAsync(alert)
}

func (e *Engine) runHandlers(alert *Alert) {
	e.mu.Lock()
	handlers := slices.Clone(e.handlers[alert.Type])
	e.mu.Unlock()

	for _, h := range handlers {
		e.safeCall(h, *alert.Clone())
	}
}

func (e *Engine) safeCall(h Handler, alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("alert handler panicked",
				logger.String("alert_id", alert.ID),
				logger.String("alert_type", string(alert.Type)),
				logger.Any("panic", r))
			if e.metrics != nil {
				e.metrics.RecordHandlerPanic()
			}
		}
	}()
	h(alert)
}

// RegisterHandler adds a callback invoked for every new alert of the given type
func (e *Engine) RegisterHandler(alertType AlertType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[alertType] = append(e.handlers[alertType], h)
}

// AcknowledgeAlert moves an active alert to acknowledged. It returns false
// when the alert does not exist or is not active.
func (e *Engine) AcknowledgeAlert(adminID, alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.active[alertID]
	if !ok || alert.Status != StatusActive {
		return false
	}
	now := e.now()
	alert.Status = StatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = adminID
	alert.UpdatedAt = now
	e.updateActiveGaugeLocked()

	e.logger.Info("alert acknowledged",
		logger.String("alert_id", alertID),
		logger.String("admin_id", adminID))
	if e.metrics != nil {
		e.metrics.RecordTransition(string(StatusAcknowledged))
	}
	return true
}

// ResolveAlert resolves any alert that is not already resolved
func (e *Engine) ResolveAlert(adminID, alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.active[alertID]
	if !ok || alert.Status == StatusResolved {
		return false
	}
	now := e.now()
	alert.Status = StatusResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = adminID
	alert.UpdatedAt = now
	e.updateActiveGaugeLocked()

	e.logger.Info("alert resolved",
		logger.String("alert_id", alertID),
		logger.String("admin_id", adminID),
		logger.Duration("open_for", now.Sub(alert.CreatedAt)))
	if e.metrics != nil {
		e.metrics.RecordTransition(string(StatusResolved))
	}
	return true
}

// GetActiveAlerts returns copies of all open alerts, critical first and
// oldest first within a severity. A nil filter returns every severity.
func (e *Engine) GetActiveAlerts(severity *Severity) []Alert {
	e.mu.Lock()
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		if !a.Status.IsOpen() {
			continue
		}
		if severity != nil && a.Severity != *severity {
			continue
		}
		out = append(out, *a.Clone())
	}
	e.mu.Unlock()

	slices.SortFunc(out, func(a, b Alert) int {
		if c := cmp.Compare(a.Severity.Rank(), b.Severity.Rank()); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// GetAlert returns a copy of the alert with the given id
func (e *Engine) GetAlert(alertID string) (Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.active[alertID]
	if !ok {
		return Alert{}, false
	}
	return *a.Clone(), true
}

// GetAlertHistory returns up to limit alerts from history, newest first
func (e *Engine) GetAlertHistory(limit int) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	recent := e.history.newest(limit)
	out := make([]Alert, len(recent))
	for i, a := range recent {
		out[i] = *a.Clone()
	}
	return out
}

// CleanupOldAlerts removes resolved alerts whose resolution predates the
// retention window. History is not touched. It returns the number removed.
func (e *Engine) CleanupOldAlerts(retentionDays int) int {
	if retentionDays < 0 {
		retentionDays = DefaultRetentionDays
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	removed := 0
	for id, a := range e.active {
		if a.Status == StatusResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(e.active, id)
			removed++
		}
	}

	for key, sentAt := range e.lastSent {
		if now.Sub(sentAt) >= e.cfg.Cooldown {
			delete(e.lastSent, key)
		}
	}
	for key, id := range e.dedupIndex {
		if _, ok := e.active[id]; !ok {
			delete(e.dedupIndex, key)
		}
	}

	if removed > 0 {
		e.logger.Info("removed old resolved alerts",
			logger.Int("removed", removed),
			logger.Int("retention_days", retentionDays))
	}
	return removed
}

// Thresholds returns the current alert thresholds
func (e *Engine) Thresholds() AlertThresholds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Thresholds
}

// UpdateThresholds replaces the alert thresholds. Invalid values are rejected
// as a whole with an error listing every invalid field.
func (e *Engine) UpdateThresholds(t AlertThresholds) error {
	if err := conf.ValidateAlertThresholds(&t); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg.Thresholds = t
	e.mu.Unlock()

	e.logger.Info("alert thresholds updated",
		logger.Float64("job_failure_rate", t.JobFailureRate),
		logger.Int("queue_backup_threshold", t.QueueBackupThreshold))
	return nil
}

func (e *Engine) updateActiveGaugeLocked() {
	if e.metrics == nil {
		return
	}
	bySeverity := make(map[string]int)
	for _, a := range e.active {
		if a.Status.IsOpen() {
			bySeverity[string(a.Severity)]++
		}
	}
	e.metrics.SetActive(bySeverity)
}
