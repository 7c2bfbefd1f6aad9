package alerting

import "time"

// GetAlertStatistics summarizes tracked alerts. Status, severity and type
// counts cover the tracked set; the 24 hour count and mean resolution time
// are computed over history.
func (e *Engine) GetAlertStatistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		TotalActive: len(e.active),
		ByStatus:    make(map[Status]int),
		BySeverity:  make(map[Severity]int),
		ByType:      make(map[AlertType]int),
		HistorySize: e.history.len(),
	}

	for _, a := range e.active {
		stats.ByStatus[a.Status]++
		stats.BySeverity[a.Severity]++
		stats.ByType[a.Type]++
		if a.Status == StatusEscalated {
			stats.EscalatedOpen++
		}
	}

	since := e.now().Add(-24 * time.Hour)
	var resolvedCount int
	var resolvedTotal time.Duration
	e.history.each(func(a *Alert) bool {
		if a.CreatedAt.After(since) {
			stats.Last24Hours++
		}
		if a.Status == StatusResolved && a.ResolvedAt != nil {
			resolvedCount++
			resolvedTotal += a.ResolvedAt.Sub(a.CreatedAt)
		}
		return true
	})
	if resolvedCount > 0 {
		stats.AvgResolutionSeconds = resolvedTotal.Seconds() / float64(resolvedCount)
	}

	return stats
}
