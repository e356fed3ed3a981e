package engine

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer draws a random delay from [lo, hi] before every request but the
// first.
type Pacer struct {
	lo, hi  time.Duration
	started bool

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer returns a pacer; a zero interval disables waiting.
func NewPacer(lo, hi time.Duration) *Pacer {
	return &Pacer{lo: lo, hi: hi, sleep: sleepCtx}
}

// Wait blocks for the next delay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if !p.started {
		p.started = true
		return ctx.Err()
	}
	if p.hi <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, p.next())
}

func (p *Pacer) next() time.Duration {
	if p.hi <= p.lo {
		return p.lo
	}
	return p.lo + rand.N(p.hi-p.lo+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
