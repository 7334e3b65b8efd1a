package model

import (
	"context"
	"log/slog"
	"time"
)

// DefaultCallTimeout is the hard deadline for one remote model call. The
// fallback adapter answers instead when the deadline passes.
const DefaultCallTimeout = 8 * time.Second

// Allowed reports whether spaceID may use the adapter identified by
// adapterID, given the adapter's allow-list. An empty allow-list means the
// adapter is open to every space. Pure function, kept separate from the
// adapters themselves.
func Allowed(allowList []string, spaceID string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, id := range allowList {
		if id == spaceID {
			return true
		}
	}
	return false
}

// Registry resolves adapters by id and space feature flags, and shields
// callers from slow or failing backends. Populated at startup; reads are
// concurrency-safe because the maps are never mutated afterwards.
type Registry struct {
	adapters   map[string]Adapter
	allowLists map[string][]string
	fallback   Adapter
	timeout    time.Duration
	logger     *slog.Logger
}

// NewRegistry builds a registry around the deterministic fallback adapter.
// Pass 0 for timeout to use DefaultCallTimeout.
func NewRegistry(fallback Adapter, timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		adapters:   make(map[string]Adapter),
		allowLists: make(map[string][]string),
		fallback:   fallback,
		timeout:    timeout,
		logger:     logger,
	}
}

// Register adds an adapter gated by spaceAllowList. A nil or empty list
// opens the adapter to all spaces.
func (r *Registry) Register(adapter Adapter, spaceAllowList []string) {
	r.adapters[adapter.ID()] = adapter
	r.allowLists[adapter.ID()] = spaceAllowList
}

// GetModel resolves the adapter for (modelID, spaceID). A requested id is
// honored only when the space is on that adapter's allow-list; anything else
// silently falls back to the default adapter.
func (r *Registry) GetModel(modelID, spaceID string) Adapter {
	adapter, ok := r.adapters[modelID]
	if !ok {
		return r.fallback
	}
	if !Allowed(r.allowLists[modelID], spaceID) {
		return r.fallback
	}
	return adapter
}

// generateOutcome carries one adapter call result across the race.
type generateOutcome struct {
	response *Response
	err      error
}

// Generate resolves an adapter and races its call against the registry
// timeout. The fallback answer wins on timeout or error, the real result
// wins on completion, and the caller never blocks past the deadline. A call
// that loses the race may still finish in the background; its result is
// discarded.
func (r *Registry) Generate(ctx context.Context, modelID, spaceID string, input Input) *Response {
	adapter := r.GetModel(modelID, spaceID)
	if adapter.ID() == r.fallback.ID() {
		return r.generateFallback(ctx, input)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	outcome := make(chan generateOutcome, 1)
	go func() {
		response, err := adapter.GenerateResponse(callCtx, input)
		outcome <- generateOutcome{response: response, err: err}
	}()

	select {
	case result := <-outcome:
		if result.err != nil {
			r.logger.Warn("model call failed, using fallback",
				"adapter", adapter.ID(), "space_id", spaceID, "error", result.err)
			return r.generateFallback(ctx, input)
		}
		return result.response
	case <-callCtx.Done():
		r.logger.Warn("model call timed out, using fallback",
			"adapter", adapter.ID(), "space_id", spaceID, "timeout", r.timeout)
		return r.generateFallback(ctx, input)
	}
}

// generateFallback runs the deterministic adapter, which never errs.
func (r *Registry) generateFallback(ctx context.Context, input Input) *Response {
	response, err := r.fallback.GenerateResponse(ctx, input)
	if err != nil || response == nil {
		// The fallback contract is to always answer; guard anyway so the
		// engine never sees a nil response.
		return &Response{Text: "No pude procesar tu mensaje. Inténtalo de nuevo.", Confidence: 0}
	}
	return response
}
