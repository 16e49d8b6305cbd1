package collector

import (
	"context"
	"time"
)

// Pacer is the clock behind batch cooldowns.
type Pacer interface {
	Now() time.Time
	// Wait blocks until d has elapsed since start, or ctx is done.
	Wait(ctx context.Context, start time.Time, d time.Duration) error
}

// WallPacer uses the system clock.
type WallPacer struct{}

func (WallPacer) Now() time.Time { return time.Now() }

func (WallPacer) Wait(ctx context.Context, start time.Time, d time.Duration) error {
	remaining := time.Until(start.Add(d))
	if remaining <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
