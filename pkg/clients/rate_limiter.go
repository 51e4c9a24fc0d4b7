package clients

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outgoing requests. It combines an optional token bucket
// with a server-driven pause: after a 429 every caller waits until the
// Retry-After deadline has passed.
type Limiter struct {
	mu sync.Mutex
	// nil when requests are not rate limited
	bucket *rate.Limiter
	until  time.Time
	now    func() time.Time

	waited int64
	paused int64
}

// NewLimiter creates a limiter admitting r requests per second with the
// given burst. A non-positive r disables the bucket; pauses still apply.
func NewLimiter(r float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{now: time.Now}
	if r > 0 {
		l.bucket = rate.NewLimiter(rate.Limit(r), burst)
	}
	return l
}

// Wait blocks until the next request may go out or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		d, res := l.reserve()
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
			if res != nil {
				return nil
			}
		case <-ctx.Done():
			timer.Stop()
			if res != nil {
				res.Cancel()
			}
			return ctx.Err()
		}
	}
}

// reserve returns how long to wait. A token taken from the bucket comes
// with its reservation; a pause returns none and must be rechecked.
func (l *Limiter) reserve() (time.Duration, *rate.Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.until) {
		l.waited++
		return l.until.Sub(now), nil
	}
	if l.bucket == nil {
		return 0, nil
	}
	res := l.bucket.ReserveN(now, 1)
	d := res.DelayFrom(now)
	if d > 0 {
		l.waited++
	}
	return d, res
}

// Pause holds every request for d. Overlapping pauses keep the later end.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if end := l.now().Add(d); end.After(l.until) {
		l.until = end
	}
	l.paused++
}

// Stats returns how many Wait rounds had to sleep and how many pauses
// were applied.
func (l *Limiter) Stats() (waited, paused int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waited, l.paused
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP
// date. Missing or malformed values give zero; the result is capped at max.
func RetryAfter(h http.Header, now time.Time, max time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = t.Sub(now)
	}
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
