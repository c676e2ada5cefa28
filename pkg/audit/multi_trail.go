package audit

import (
	"context"
)

// MultiTrail fans entries out to several sinks. Each sink is attempted even
// when an earlier one fails; the first error is returned.
type MultiTrail struct {
	trails []Trail
}

// NewMultiTrail creates a fan-out trail over the given sinks
func NewMultiTrail(trails ...Trail) *MultiTrail {
	return &MultiTrail{trails: trails}
}

// Record appends the entry to every sink
func (m *MultiTrail) Record(ctx context.Context, entry *Entry) error {
	var firstErr error
	for _, trail := range m.trails {
		if err := trail.Record(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink, returning the first error
func (m *MultiTrail) Close() error {
	var firstErr error
	for _, trail := range m.trails {
		if err := trail.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
