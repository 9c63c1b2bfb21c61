package ratelimit

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var testLimits = map[string]Limit{
	"guest":     {MessagesPerMinute: 5, CharactersPerMessage: 500},
	"user":      {MessagesPerMinute: 10, CharactersPerMessage: 1000},
	"creator":   {MessagesPerMinute: 20, CharactersPerMessage: 2000},
	"founder":   {MessagesPerMinute: 50, CharactersPerMessage: 5000},
	"moderator": {MessagesPerMinute: 100, CharactersPerMessage: 10000},
	"admin":     {MessagesPerMinute: 1000, CharactersPerMessage: 50000},
}

func TestLimiter_RejectsOnlyTheMessageOverTheLimit(t *testing.T) {
	for tier, limit := range testLimits {
		t.Run(tier, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
			l := New(testLimits, WithClock(clock.Now))

			rejected := 0
			for i := 0; i < limit.MessagesPerMinute+1; i++ {
				if !l.Allow("u1", tier, 10) {
					rejected++
					assert.Equal(t, limit.MessagesPerMinute, i, "only the last send should be rejected")
				}
				clock.Advance(10 * time.Millisecond)
			}
			assert.Equal(t, 1, rejected)
		})
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(testLimits, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("g", "guest", 1))
		clock.Advance(time.Second)
	}
	assert.False(t, l.Allow("g", "guest", 1))

	// the first stamp is now exactly 60s old and falls out of the window
	clock.Advance(55 * time.Second)
	assert.True(t, l.Allow("g", "guest", 1))
	assert.False(t, l.Allow("g", "guest", 1))
}

func TestLimiter_MessageLength(t *testing.T) {
	l := New(testLimits)

	assert.True(t, l.Allow("g", "guest", 500))
	assert.False(t, l.Allow("g", "guest", 501))
	assert.True(t, l.Allow("a", "admin", len(strings.Repeat("x", 50000))))
}

func TestLimiter_RejectionHasNoSideEffects(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(testLimits, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		assert.False(t, l.Allow("g", "guest", 9999))
	}
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("g", "guest", 1))
	}
}

func TestLimiter_UsersAreIndependent(t *testing.T) {
	l := New(testLimits)
	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("a", "guest", 1))
	}
	assert.False(t, l.Allow("a", "guest", 1))
	assert.True(t, l.Allow("b", "guest", 1))
}

func TestLimiter_UnknownTier(t *testing.T) {
	l := New(testLimits)
	assert.False(t, l.Allow("x", "superuser", 1))
}

func TestLimiter_ConcurrentSameUser(t *testing.T) {
	l := New(testLimits)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("u", "user", 1) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, accepted)
}

func TestLimiter_DropsIdleWindows(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(testLimits, WithClock(clock.Now))

	require.True(t, l.Allow("idle", "guest", 1))
	clock.Advance(30 * time.Second)
	require.True(t, l.Allow("active", "guest", 1))
	clock.Advance(45 * time.Second)

	// a new user triggers the sweep; "idle" last sent 75s ago, "active" 45s ago
	require.True(t, l.Allow("newcomer", "guest", 1))
	l.mu.RLock()
	assert.Len(t, l.users, 2)
	assert.NotContains(t, l.users, "idle")
	l.mu.RUnlock()

	// the surviving window still counts its stamps
	for i := 0; i < 4; i++ {
		require.True(t, l.Allow("active", "guest", 1))
	}
	assert.False(t, l.Allow("active", "guest", 1))

	// a swept user starts over with a fresh window
	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("idle", "guest", 1))
	}
	assert.False(t, l.Allow("idle", "guest", 1))
}
