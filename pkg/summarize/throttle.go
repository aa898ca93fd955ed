package summarize

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Clock lets tests drive the throttle without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock uses wall time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Throttle is a token bucket (burst 1) spacing summarization calls at
// least interval apart.
type Throttle struct {
	limiter *rate.Limiter
	clock   Clock
}

// NewThrottle builds a throttle. A non-positive interval disables it.
func NewThrottle(interval time.Duration, clock Clock) *Throttle {
	if clock == nil {
		clock = RealClock{}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1), clock: clock}
}

// Wait blocks until the next call may go out or ctx ends.
func (t *Throttle) Wait(ctx context.Context) error {
	now := t.clock.Now()
	r := t.limiter.ReserveN(now, 1)
	if !r.OK() {
		return errors.New("throttle: reservation exceeds burst")
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return ctx.Err()
	}
	if err := t.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(t.clock.Now())
		return err
	}
	return nil
}

// Throttled wraps a Summarizer so every call first waits on the throttle
// and runs under its own timeout.
type Throttled struct {
	next     Summarizer
	throttle *Throttle
	timeout  time.Duration
}

// NewThrottled wraps next. timeout bounds each call; zero means none.
func NewThrottled(next Summarizer, throttle *Throttle, timeout time.Duration) *Throttled {
	return &Throttled{next: next, throttle: throttle, timeout: timeout}
}

func (t *Throttled) Summarize(ctx context.Context, title, body string) (string, error) {
	if err := t.throttle.Wait(ctx); err != nil {
		return "", err
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.next.Summarize(ctx, title, body)
}
