package session

import "time"

// throttle enforces the minimum interval between accepted sends in
// one session. The mark only advances on acceptance, so a burst of
// rejected sends never pushes the window further out.
type throttle struct {
	min  time.Duration
	last time.Time
}

// allow reports whether a send at now is far enough from the last
// accepted one.
func (t *throttle) allow(now time.Time) bool {
	return now.Sub(t.last) >= t.min
}

// accept records now as the last accepted send.
func (t *throttle) accept(now time.Time) {
	t.last = now
}
