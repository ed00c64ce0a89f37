package probe

import (
	"context"
	"time"
)

// Clock paces the scheduler. Sleep must return ctx.Err() when ctx ends
// before d elapses.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
