package scrape

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_BoundsInFlight(t *testing.T) {
	limiter := NewLimiter(100, 3) // high rate so only slots constrain

	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			limiter.Release()
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("expected at most 3 in flight, observed %d", peak)
	}
}

func TestLimiter_RespectsRate(t *testing.T) {
	limiter := NewLimiter(2, 10)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		limiter.Release()
	}
	elapsed := time.Since(start)

	// 5 acquisitions at 2/s with burst 2: the last must wait at least ~1s.
	if elapsed < time.Second {
		t.Errorf("expected rate limiting to take >= 1s, finished in %s", elapsed)
	}
}

func TestLimiter_CancelledContext(t *testing.T) {
	limiter := NewLimiter(1, 1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := limiter.Acquire(ctx); err == nil {
		t.Error("expected Acquire to fail on cancelled context")
		limiter.Release()
	}
	limiter.Release()

	if limiter.InFlight() != 0 {
		t.Errorf("expected no leaked slots, got %d", limiter.InFlight())
	}
}
