package alerting

// alertHistory is a fixed capacity ring of alerts, oldest evicted first.
// It holds the same pointers as the active map so lifecycle changes are
// visible in both. Callers hold the engine lock.
type alertHistory struct {
	buf   []*Alert
	start int
	size  int
}

func newAlertHistory(capacity int) *alertHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &alertHistory{buf: make([]*Alert, capacity)}
}

// push appends a and returns the evicted alert, if any
func (h *alertHistory) push(a *Alert) (evicted *Alert) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = a
		h.size++
		return nil
	}
	evicted = h.buf[h.start]
	h.buf[h.start] = a
	h.start = (h.start + 1) % len(h.buf)
	return evicted
}

func (h *alertHistory) len() int {
	return h.size
}

// each calls fn from oldest to newest until fn returns false
func (h *alertHistory) each(fn func(a *Alert) bool) {
	for i := range h.size {
		if !fn(h.buf[(h.start+i)%len(h.buf)]) {
			return
		}
	}
}

// newest returns up to limit alerts, newest first. limit <= 0 returns all.
func (h *alertHistory) newest(limit int) []*Alert {
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]*Alert, 0, limit)
	for i := h.size - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}
