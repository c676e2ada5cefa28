package async

import (
	"context"
	"log"
	"runtime/debug"
	"time"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` for background work that must not
// crash the process or leak.
//
// Example:
//
//	SafeGo(ctx, 5*time.Second, "audit record", func(ctx context.Context) error {
//	    return trail.Record(ctx, entry)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			// Log and move on; the caller already decided this work is
			// non-critical by detaching it.
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// Detached is like SafeGo but survives cancellation of the parent context.
// Used for fire-and-forget work (audit records) that should still complete
// when the triggering request is cancelled; only the timeout bounds it.
func Detached(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	SafeGo(context.WithoutCancel(parentCtx), timeout, taskName, fn)
}
