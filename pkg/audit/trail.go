package audit

import (
	"context"
)

// Trail is the append-only audit sink consumed by the core. Callers treat it
// as fire-and-forget: a Record failure must never fail the operation that
// produced the entry.
type Trail interface {
	// Record appends one entry
	Record(ctx context.Context, entry *Entry) error

	// Close flushes and closes the sink
	Close() error
}

// NopTrail discards all entries (used when auditing is not configured)
type NopTrail struct{}

func (NopTrail) Record(ctx context.Context, entry *Entry) error { return nil }
func (NopTrail) Close() error                                   { return nil }

type contextKey string

const trailKey contextKey = "audit_trail"

// WithTrail attaches a trail to the context
func WithTrail(ctx context.Context, trail Trail) context.Context {
	return context.WithValue(ctx, trailKey, trail)
}

// FromContext retrieves the trail from context, or a NopTrail if none is set
func FromContext(ctx context.Context) Trail {
	if trail, ok := ctx.Value(trailKey).(Trail); ok {
		return trail
	}
	return NopTrail{}
}
