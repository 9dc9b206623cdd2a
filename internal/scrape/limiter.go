package scrape

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/kozaktomas/face-finder/internal/constants"
)

// Limiter combines a global token-bucket rate limit with a bound on the
// number of requests in flight. Both waits block cooperatively on the
// context.
type Limiter struct {
	bucket *rate.Limiter
	slots  chan struct{}
}

// NewLimiter creates a limiter allowing perSecond requests per second and at
// most inFlight concurrent requests.
func NewLimiter(perSecond, inFlight int) *Limiter {
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		slots:  make(chan struct{}, inFlight),
	}
}

// NewDefaultLimiter creates a limiter with the site-fetch defaults.
func NewDefaultLimiter() *Limiter {
	return NewLimiter(constants.SiteRequestsPerSecond, constants.SiteMaxInFlight)
}

// Acquire blocks until both an in-flight slot and a rate token are
// available, or the context is cancelled. Callers must Release the slot.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := l.bucket.Wait(ctx); err != nil {
		<-l.slots
		return err
	}
	return nil
}

// Release frees an in-flight slot acquired with Acquire.
func (l *Limiter) Release() {
	<-l.slots
}

// InFlight returns the number of currently held slots.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}
