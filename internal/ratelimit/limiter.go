// Package ratelimit implements fixed-window per-client request
// limiting. Counters are the only mutable state shared across requests;
// each client's window is guarded by its own lock so unrelated clients
// never serialize on each other.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the result of an admission check.
type Decision struct {
	Admitted bool

	// RetryAfter is the remaining window time when admission is
	// denied, rounded up to a whole positive second. Zero when admitted.
	RetryAfter time.Duration

	// Remaining is the number of requests left in the current window.
	Remaining int
}

// Limiter admits or rejects requests per client over a fixed window.
type Limiter struct {
	enabled bool
	limit   int
	window  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*clientWindow
}

// clientWindow is one client's live counting window. Its own mutex
// serializes concurrent admissions from the same client.
type clientWindow struct {
	mu    sync.Mutex
	start time.Time
	count int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter admitting up to limit requests per client per
// window. A disabled limiter admits unconditionally.
func New(enabled bool, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		enabled: enabled,
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*clientWindow),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit checks whether the client may issue a request now, counting it
// if so. The first request of a fresh (or expired) window always admits.
func (l *Limiter) Admit(clientID string) Decision {
	if !l.enabled {
		return Decision{Admitted: true, Remaining: l.limit}
	}

	cw := l.client(clientID)

	cw.mu.Lock()
	defer cw.mu.Unlock()

	now := l.now()

	// Expired window: reset and count this request as the first.
	if now.Sub(cw.start) >= l.window {
		cw.start = now
		cw.count = 1
		return Decision{Admitted: true, Remaining: l.limit - 1}
	}

	if cw.count >= l.limit {
		retry := l.window - now.Sub(cw.start)
		return Decision{Admitted: false, RetryAfter: ceilSecond(retry)}
	}

	cw.count++
	return Decision{Admitted: true, Remaining: l.limit - cw.count}
}

// client returns the window for clientID, creating it if needed.
func (l *Limiter) client(clientID string) *clientWindow {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw, ok := l.clients[clientID]
	if !ok {
		// Zero start time predates any window, so the first Admit
		// resets it.
		cw = &clientWindow{}
		l.clients[clientID] = cw
	}
	return cw
}

// Sweep removes windows that expired before the cutoff. Called
// periodically so one-off clients do not accumulate forever.
func (l *Limiter) Sweep() int {
	if !l.enabled {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, cw := range l.clients {
		cw.mu.Lock()
		expired := now.Sub(cw.start) >= l.window
		cw.mu.Unlock()
		if expired {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps expired windows every interval until stop is closed.
func (l *Limiter) RunSweeper(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func ceilSecond(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	secs := (d + time.Second - 1) / time.Second
	return secs * time.Second
}
