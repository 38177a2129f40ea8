package puller

import "time"

// Tracker decides when the resume token is worth persisting: every N events
// or once per interval, whichever comes first.
type Tracker struct {
	interval       time.Duration
	eventCount     int
	now            func() time.Time
	lastCheckpoint time.Time
	eventsSince    int
	lastToken      []byte
	dirty          bool
}

// NewTracker creates a Tracker.
func NewTracker(interval time.Duration, eventCount int) *Tracker {
	t := &Tracker{interval: interval, eventCount: eventCount, now: time.Now}
	t.lastCheckpoint = t.now()
	return t
}

// RecordEvent records token and returns true if a checkpoint should be saved.
func (t *Tracker) RecordEvent(token []byte) bool {
	t.lastToken = token
	t.eventsSince++
	t.dirty = true
	return t.eventsSince >= t.eventCount || t.now().Sub(t.lastCheckpoint) >= t.interval
}

// MarkCheckpointed marks that the last token was saved.
func (t *Tracker) MarkCheckpointed() {
	t.lastCheckpoint = t.now()
	t.eventsSince = 0
	t.dirty = false
}

// LastToken returns the last recorded token.
func (t *Tracker) LastToken() []byte {
	return t.lastToken
}

// Pending reports whether a recorded token has not been saved yet.
func (t *Tracker) Pending() bool {
	return t.dirty && t.lastToken != nil
}
