package convo

import (
	"sync"
	"time"
)

// DefaultVoiceTTL is deliberately shorter than the conversation TTL: voice
// context primes the next model call and should not outlive the exchange
// that produced it.
const DefaultVoiceTTL = 2 * time.Minute

// VoiceContext remembers the last intent, referenced entity, and executed
// action for a (user, space) pair. It is never authoritative for execution —
// only for wording follow-up model prompts.
type VoiceContext struct {
	SpaceID    string
	UserID     string
	LastIntent string
	LastEntity string
	LastAction string
	ExpiresAt  time.Time
}

// VoiceStore keeps voice contexts keyed by (user, space) with lazy expiry,
// same contract as Store but with a shorter default TTL.
type VoiceStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	contexts map[string]*VoiceContext
	now      func() time.Time
}

// NewVoiceStore returns an in-memory voice-context store. ttl ≤ 0 uses
// DefaultVoiceTTL.
func NewVoiceStore(ttl time.Duration) *VoiceStore {
	if ttl <= 0 {
		ttl = DefaultVoiceTTL
	}
	return &VoiceStore{
		ttl:      ttl,
		contexts: make(map[string]*VoiceContext),
		now:      time.Now,
	}
}

// Get returns a copy of the voice context for the pair, or (nil, false) when
// absent or expired.
func (s *VoiceStore) Get(userID, spaceID string) (*VoiceContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(userID, spaceID)
	vc, ok := s.contexts[k]
	if !ok {
		return nil, false
	}
	if s.now().After(vc.ExpiresAt) {
		delete(s.contexts, k)
		return nil, false
	}
	cp := *vc
	return &cp, true
}

// Save stores the context, refreshing its expiry.
func (s *VoiceStore) Save(vc *VoiceContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *vc
	cp.ExpiresAt = s.now().Add(s.ttl)
	s.contexts[key(cp.UserID, cp.SpaceID)] = &cp
}

// Delete removes any voice context for the pair.
func (s *VoiceStore) Delete(userID, spaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, key(userID, spaceID))
}
