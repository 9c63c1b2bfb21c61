// Package ratelimit enforces per-user sliding-window message limits that
// depend on the user's tier.
package ratelimit

import (
	"sync"
	"time"
)

// Limit is the allowance of one tier.
type Limit struct {
	MessagesPerMinute    int `mapstructure:"messagesPerMinute" json:"messages_per_minute"`
	CharactersPerMessage int `mapstructure:"charactersPerMessage" json:"characters_per_message"`
}

// Limiter keeps one window of accepted timestamps per user. Calls for the
// same user serialize on that user's window; other users are unaffected.
type Limiter struct {
	limits map[string]Limit
	window time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	users map[string]*userWindow
	swept time.Time
}

type userWindow struct {
	mu     sync.Mutex
	stamps []time.Time
	// dead windows were swept from the map and must not record stamps
	dead bool
}

func (w *userWindow) idle(cutoff time.Time) bool {
	return len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(cutoff)
}

type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithWindow overrides the 60 second window.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

func New(limits map[string]Limit, opts ...Option) *Limiter {
	l := &Limiter{
		limits: make(map[string]Limit, len(limits)),
		window: time.Minute,
		now:    time.Now,
		users:  make(map[string]*userWindow),
	}
	for k, v := range limits {
		l.limits[k] = v
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow reports whether userID, in the given tier, may send a message of
// length characters now. An accepted call is recorded; a rejected one is not.
// Tiers missing from the table are always rejected.
func (l *Limiter) Allow(userID, tier string, length int) bool {
	limit, ok := l.limits[tier]
	if !ok {
		return false
	}

	var w *userWindow
	for {
		w = l.windowFor(userID)
		w.mu.Lock()
		if !w.dead {
			break
		}
		w.mu.Unlock()
	}
	defer w.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := w.stamps[:0]
	for _, t := range w.stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= limit.MessagesPerMinute {
		return false
	}
	if length > limit.CharactersPerMessage {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

func (l *Limiter) windowFor(userID string) *userWindow {
	l.mu.RLock()
	w, ok := l.users[userID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(l.now())
	if w, ok = l.users[userID]; !ok {
		w = &userWindow{}
		l.users[userID] = w
	}
	return w
}

// sweepLocked drops windows with no stamp inside the window. It runs at most
// once per window length, on the path that adds a new user. l.mu is held.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.swept) < l.window {
		return
	}
	l.swept = now
	cutoff := now.Add(-l.window)
	for id, w := range l.users {
		w.mu.Lock()
		if w.idle(cutoff) {
			w.dead = true
			delete(l.users, id)
		}
		w.mu.Unlock()
	}
}
