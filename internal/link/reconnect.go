package link

import "time"

// ReconnectTimer gates reconnect attempts to one per Interval, and stops them
// altogether after MaxAttempts consecutive failures (if MaxAttempts > 0).
type ReconnectTimer struct {
	Interval    time.Duration
	MaxAttempts int

	last     time.Time
	attempts int
}

// Due reports whether an attempt may be made at now.
func (t *ReconnectTimer) Due(now time.Time) bool {
	if t.Exhausted() {
		return false
	}
	return t.last.IsZero() || now.Sub(t.last) >= t.Interval
}

// Record an attempt made at now, successful or not.
func (t *ReconnectTimer) Record(now time.Time) {
	t.last = now
	t.attempts++
}

// Lost restarts the interval from the moment the connection dropped.
func (t *ReconnectTimer) Lost(now time.Time) {
	t.last = now
}

// Reset after a successful connect.
func (t *ReconnectTimer) Reset() {
	t.last = time.Time{}
	t.attempts = 0
}

func (t *ReconnectTimer) Exhausted() bool {
	return t.MaxAttempts > 0 && t.attempts >= t.MaxAttempts
}

func (t *ReconnectTimer) Attempts() int {
	return t.attempts
}

func (t *ReconnectTimer) Last() time.Time {
	return t.last
}
