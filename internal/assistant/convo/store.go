// Package convo holds the ephemeral dialogue state for in-flight assistant
// conversations, plus the shorter-lived voice context used to prime follow-up
// model calls.
//
// Both stores are best-effort caches: they may be lost on process restart and
// must never be consulted for authorization or idempotency decisions — the
// persisted intent log is the single source of truth for execution state.
package convo

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	// StatusIdle means no dialogue is in progress.
	StatusIdle Status = "idle"
	// StatusCollectingParams means the assistant is slot-filling required
	// parameters one at a time.
	StatusCollectingParams Status = "collecting_params"
	// StatusWaitingConfirmation means all parameters are present and the
	// assistant is waiting for a yes/no reply.
	StatusWaitingConfirmation Status = "waiting_confirmation"
)

// DefaultTTL is how long a conversation survives without interaction.
const DefaultTTL = 5 * time.Minute

// State is the in-flight dialogue state for one (user, space) pair. Exactly
// one State exists per pair; starting a new dialogue overwrites the old one.
type State struct {
	SpaceID string
	UserID  string

	// ActiveIntent is the intent being slot-filled, empty when none.
	ActiveIntent string

	// Params grows monotonically as slots fill; keys are parameter names.
	Params map[string]string

	// Missing is the derived list of still-unfilled required parameters.
	// It is advisory only — the resolver recomputes it from the registry.
	Missing []string

	Status          Status
	ExpiresAt       time.Time
	LastInteraction time.Time

	// PendingLogID is the governance proposal created when the dialogue
	// reached confirmation, so an affirmation can be executed directly.
	PendingLogID string
}

// Store keeps conversation states keyed by (user, space).
//
// Contract: Save refreshes the expiry to now+TTL and stamps the
// last-interaction time; Get performs lazy expiry, evicting and reporting
// absent when the entry's deadline has passed. No background sweep runs.
//
// Store is the single-process in-memory implementation; a distributed cache
// can replace it as long as it keeps the same Get/Save/Delete contract.
type Store struct {
	mu     sync.Mutex
	ttl    time.Duration
	states map[string]*State
	now    func() time.Time
}

// NewStore returns an in-memory conversation store. ttl ≤ 0 uses DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:    ttl,
		states: make(map[string]*State),
		now:    time.Now,
	}
}

// Get returns a copy of the active state for the pair, or (nil, false) when
// absent or expired. Expired entries are evicted on read.
func (s *Store) Get(userID, spaceID string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(userID, spaceID)
	st, ok := s.states[k]
	if !ok {
		return nil, false
	}
	if s.now().After(st.ExpiresAt) {
		delete(s.states, k)
		return nil, false
	}
	return snapshot(st), true
}

// Save stores the state, refreshing its expiry and last-interaction stamps.
func (s *Store) Save(st *State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cp := snapshot(st)
	cp.ExpiresAt = now.Add(s.ttl)
	cp.LastInteraction = now
	s.states[key(cp.UserID, cp.SpaceID)] = cp
}

// Delete removes any state for the pair. Deleting an absent pair is a no-op.
func (s *Store) Delete(userID, spaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key(userID, spaceID))
}

// snapshot deep-copies a state so callers never share the stored maps.
func snapshot(st *State) *State {
	cp := *st
	cp.Params = make(map[string]string, len(st.Params))
	for k, v := range st.Params {
		cp.Params[k] = v
	}
	cp.Missing = append([]string(nil), st.Missing...)
	return &cp
}

// key produces the map key for a user+space pair.
func key(userID, spaceID string) string {
	return userID + ":" + spaceID
}
