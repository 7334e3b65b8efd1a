// Package model provides the pluggable language-model layer for the
// assistant.
//
// The model layer sits between the normalized user turn and the intent
// resolver. Its sole responsibility is suggestion: convert a free-form
// sentence into a Response that optionally names a governed intent. Models
// only propose; validation, confirmation, and execution stay with the
// governance layer regardless of what an adapter returns.
package model

import (
	"context"
	"errors"
)

// ErrRateLimit is returned by an adapter when the upstream API reports a
// rate-limiting condition (e.g. HTTP 429). Callers surface a user-visible
// message instead of silently falling back, because the request was
// understood but cannot be served right now.
var ErrRateLimit = errors.New("model: upstream rate limit exceeded")

// ErrMalformedOutput is returned when the backend answers with a body that
// cannot be interpreted as a Response.
var ErrMalformedOutput = errors.New("model: malformed response from backend")

// Input is one request to an adapter. The caller populates the context
// fields fresh on every call; nothing is cached inside adapters.
type Input struct {
	// Message is the normalized user text.
	Message string

	// SpaceID and OrganizationID scope the request to one tenant. Adapters
	// never mix context across spaces.
	SpaceID        string
	OrganizationID string

	// UserIntent optionally carries the last intent from the short-term
	// voice context, priming follow-up turns.
	UserIntent string

	// AllowedActions is the set of intent ids the caller may run. Adapters
	// must not suggest anything outside this list.
	AllowedActions []string

	// KnowledgeRefs optionally names documents the backend may draw on.
	KnowledgeRefs []string
}

// SuggestedAction is an actionable hint extracted from the user's message.
type SuggestedAction struct {
	// Type is the suggested intent id.
	Type string `json:"type"`
	// Payload holds parameter values already recognizable in the message.
	Payload map[string]string `json:"payload,omitempty"`
}

// Response is the structured output of one adapter call.
type Response struct {
	// Text is the conversational reply shown when no action applies.
	Text string `json:"text"`
	// Confidence is a 0-1 certainty score.
	Confidence float64 `json:"confidence"`
	// SuggestedAction is set when the message maps to a governed intent.
	SuggestedAction *SuggestedAction `json:"suggested_action,omitempty"`
}

// Adapter is one language-model backend.
//
// Implementations must be safe for concurrent use. When a backend is
// unavailable they should return a descriptive error; the registry degrades
// to the deterministic default adapter.
type Adapter interface {
	// ID identifies the adapter for feature-flag gating.
	ID() string

	// GenerateResponse interprets the message. It must respect the context
	// deadline; the registry races it against a hard timeout.
	GenerateResponse(ctx context.Context, input Input) (*Response, error)
}
