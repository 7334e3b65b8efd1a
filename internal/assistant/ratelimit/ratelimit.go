// Package ratelimit enforces the per-space daily request quota for the
// assistant. Counters are keyed by (space, UTC calendar day) and reset
// implicitly when the day key rolls over.
//
// The limiter is best-effort and held in memory: a process restart forgets
// today's counts. That is an accepted tradeoff, not a correctness concern —
// quota protects cost, not invariants.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultDailyQuota is the number of assistant turns allowed per space per
// UTC day when no explicit quota is configured.
const DefaultDailyQuota = 200

// QuotaExceededMessage is the reply surfaced to callers in a space that has
// exhausted today's allowance.
const QuotaExceededMessage = "Alcancé el límite diario de solicitudes para este espacio. Inténtalo de nuevo mañana."

// Limiter counts assistant turns per space per UTC day. Safe for concurrent
// use. The in-memory map is replaceable by a distributed counter behind the
// engine's RateLimiter interface.
type Limiter struct {
	mu    sync.Mutex
	quota int
	used  map[string]*spaceDailyCount
	now   func() time.Time
}

// spaceDailyCount tracks one space's consumption within the current UTC day.
type spaceDailyCount struct {
	count   int
	resetAt time.Time // next midnight UTC
}

// New returns a Limiter allowing at most quota calls per space per UTC day.
// quota ≤ 0 uses DefaultDailyQuota.
func New(quota int) *Limiter {
	if quota <= 0 {
		quota = DefaultDailyQuota
	}
	return &Limiter{
		quota: quota,
		used:  make(map[string]*spaceDailyCount),
		now:   time.Now,
	}
}

// Allow records one call for the space and reports whether it fit inside
// today's quota. Once false, every further call that day is also false.
func (l *Limiter) Allow(spaceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover(spaceID)

	u := l.used[spaceID]
	if u == nil {
		u = &spaceDailyCount{resetAt: l.nextMidnightUTC()}
		l.used[spaceID] = u
	}
	if u.count >= l.quota {
		return false
	}
	u.count++
	return true
}

// Remaining returns how many calls the space can still make today.
func (l *Limiter) Remaining(spaceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover(spaceID)

	u := l.used[spaceID]
	if u == nil {
		return l.quota
	}
	if rem := l.quota - u.count; rem > 0 {
		return rem
	}
	return 0
}

// rollover drops the space's counter when the UTC day has changed.
// Must be called with l.mu held.
func (l *Limiter) rollover(spaceID string) {
	u := l.used[spaceID]
	if u == nil {
		return
	}
	if l.now().UTC().After(u.resetAt) {
		delete(l.used, spaceID)
	}
}

// nextMidnightUTC returns the start of the next UTC calendar day.
func (l *Limiter) nextMidnightUTC() time.Time {
	now := l.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
