package alerting

import (
	"context"

	"github.com/tphakala/healthmon/internal/logger"
)

// CheckEscalations escalates critical alerts that are still active, that is
// nobody acknowledged them, once they are older than the escalation timeout.
// Escalated alerts are dispatched again with escalated=true in their context.
// It returns the ids of the alerts escalated by this call.
func (e *Engine) CheckEscalations(ctx context.Context) []string {
	escalated := e.escalateDue()
	if len(escalated) == 0 {
		return nil
	}

	log := e.logger.WithContext(ctx)
	ids := make([]string, 0, len(escalated))
	for _, alert := range escalated {
		log.Error("alert escalated",
			logger.String("alert_id", alert.ID),
			logger.String("alert_type", string(alert.Type)),
			logger.Int("escalation_level", alert.EscalationLevel))
		if e.metrics != nil {
			e.metrics.RecordTransition(string(StatusEscalated))
		}
		e.dispatch(alert)
		ids = append(ids, alert.ID)
	}
	return ids
}

// escalateDue transitions due alerts and returns copies for dispatch
func (e *Engine) escalateDue() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var due []*Alert
	for _, a := range e.active {
		if a.Severity != SeverityCritical || a.Status != StatusActive {
			continue
		}
		if now.Sub(a.CreatedAt) < e.cfg.EscalationTimeout {
			continue
		}
		a.Status = StatusEscalated
		a.EscalatedAt = &now
		a.EscalationLevel++
		a.UpdatedAt = now
		if a.Context == nil {
			a.Context = make(map[string]any)
		}
		a.Context["escalated"] = true
		a.Context["escalation_level"] = a.EscalationLevel
		due = append(due, a.Clone())
	}
	if len(due) > 0 {
		e.updateActiveGaugeLocked()
	}
	return due
}
