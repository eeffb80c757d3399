package cmn

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times with exponential backoff (base,
// doubling, capped at max), stopping early if fn's error is not transient
// per isTransient, or if ctx is cancelled. Used by the CAS client, registry
// client, and uploader per spec.md §4.6/§4.7/§7.
func Retry(ctx context.Context, attempts int, base, max time.Duration, isTransient func(error) bool, fn func() error) error {
	var err error
	delay := base
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if delay > max {
				delay = max
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if isTransient != nil && !isTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
