package dispatch

import "sync/atomic"

// Counters tracks one counter per error-taxonomy bucket. Failures are
// counted, logged, and swallowed; nothing here ever reaches the webhook
// acknowledgment.
type Counters struct {
	malformedUnits   atomic.Int64
	duplicateEvents  atomic.Int64
	deliveryFailures atomic.Int64
	mediaFailures    atomic.Int64
	fallbackReplies  atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

// Snapshot returns the current counter values keyed by bucket name.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"malformed_units":   c.malformedUnits.Load(),
		"duplicate_events":  c.duplicateEvents.Load(),
		"delivery_failures": c.deliveryFailures.Load(),
		"media_failures":    c.mediaFailures.Load(),
		"fallback_replies":  c.fallbackReplies.Load(),
	}
}
