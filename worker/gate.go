package worker

import (
	"context"
	"sync"
	"time"
)

// SendGate enforces the minimum gap between consecutive sends to the external
// channel. Sleep is swappable so tests run with a zero-delay clock.
type SendGate struct {
	Interval time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	last time.Time
}

func NewSendGate(interval time.Duration) *SendGate {
	return &SendGate{
		Interval: interval,
		Sleep:    sleepContext,
	}
}

// Wait blocks until the interval since the previous send has elapsed, then
// claims the slot. Returns early with the context error on cancellation.
func (g *SendGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	wait := g.Interval - time.Since(g.last)
	g.mu.Unlock()

	if wait > 0 {
		if err := g.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.last = time.Now()
	g.mu.Unlock()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
