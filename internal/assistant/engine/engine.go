// Package engine hosts the conversation orchestrator: the top-level turn
// handler that wires normalization, interrupt handling, model invocation,
// governance and state persistence into one request/response cycle.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ChristianGroove/agency-manager-sub002/common/trace"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/action"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/convo"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/governance"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/guard"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/intent"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/model"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/nl"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/ratelimit"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/store"
)

// Input channels. They double as kill-switch channel keys, so voice and
// text toggle independently.
const (
	ModeText  = "text"
	ModeVoice = "voice"
)

// User-facing messages for the turn fast paths.
const (
	SessionInvalidMessage = "Tu sesión no es válida. Vuelve a iniciar sesión para usar el asistente."
	DisabledMessage       = "El asistente está desactivado en este espacio por el momento."
	CancelledMessage      = "Listo, lo cancelo. ¿Te ayudo con algo más?"
	GenericErrorMessage   = "Algo salió mal de mi lado. Inténtalo de nuevo en un momento."
)

// TurnInput is one inbound user turn.
type TurnInput struct {
	Text      string `json:"text"`
	InputMode string `json:"input_mode"`
}

// TurnResult is what the caller gets back for a turn.
type TurnResult struct {
	Success      bool           `json:"success"`
	NarrativeLog string         `json:"narrative_log"`
	Data         map[string]any `json:"data,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Config wires the engine's collaborators.
type Config struct {
	Intents  *intent.Registry
	Actions  *action.Registry
	Models   *model.Registry
	Guard    *guard.Guard
	Service  *governance.Service
	Executor *governance.Executor
	Store    *store.Store
	Limiter  *ratelimit.Limiter

	// TextModelID and VoiceModelID select the adapter per input channel.
	// Empty ids resolve to the deterministic default adapter.
	TextModelID  string
	VoiceModelID string

	Logger *slog.Logger
}

// Engine is the conversation orchestrator. One instance serves all spaces;
// per-conversation state lives in the convo stores.
type Engine struct {
	cfg    Config
	convos *convo.Store
	voice  *convo.VoiceStore
	logger *slog.Logger
}

// New builds an engine with fresh in-memory conversation stores.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		convos: convo.NewStore(convo.DefaultTTL),
		voice:  convo.NewVoiceStore(convo.DefaultVoiceTTL),
		logger: logger,
	}
}

// Turn processes one user turn end to end. It never propagates a panic or a
// raw error to the caller: anything unexpected becomes a generic apology and
// the conversation state is cleared so the user is not stuck mid-dialogue.
func (e *Engine) Turn(ctx context.Context, caller identity.Context, input TurnInput) (result *TurnResult) {
	ctx, traceID := trace.Ensure(ctx)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("turn panicked", "trace_id", traceID, "panic", r)
			e.convos.Delete(caller.UserID, caller.SpaceID)
			result = &TurnResult{Success: false, NarrativeLog: GenericErrorMessage}
		}
	}()

	if caller.UserID == "" || !caller.HasWorkspace() {
		return &TurnResult{Success: false, NarrativeLog: SessionInvalidMessage}
	}

	mode := input.InputMode
	if mode != ModeVoice {
		mode = ModeText
	}

	// The kill-switch runs before any model call and before the quota is
	// touched, so a disabled space costs nothing.
	disabled, err := e.cfg.Store.IsChannelDisabled(ctx, caller.SpaceID, mode)
	if err != nil {
		e.logger.Error("kill-switch lookup failed", "trace_id", traceID, "space_id", caller.SpaceID, "error", err)
	}
	if disabled {
		if err := e.cfg.Store.WriteAudit(ctx, traceID, caller.UserID, caller.SpaceID,
			"assistant.blocked", mode, "blocked",
			store.AuditPayload{"reason": "kill_switch"}, ""); err != nil {
			e.logger.Warn("audit write failed", "trace_id", traceID, "error", err)
		}
		return &TurnResult{Success: false, NarrativeLog: DisabledMessage}
	}

	if !e.cfg.Limiter.Allow(caller.SpaceID) {
		if err := e.cfg.Store.WriteAudit(ctx, traceID, caller.UserID, caller.SpaceID,
			"assistant.blocked", mode, "blocked",
			store.AuditPayload{"reason": "quota_exceeded"}, ""); err != nil {
			e.logger.Warn("audit write failed", "trace_id", traceID, "error", err)
		}
		return &TurnResult{Success: false, NarrativeLog: ratelimit.QuotaExceededMessage}
	}

	normalized := nl.Normalize(input.Text)
	state, hasState := e.convos.Get(caller.UserID, caller.SpaceID)

	// Interrupt handling for a pending confirmation. An affirmation runs
	// the proposal, a negation drops it, and anything else is treated as a
	// correction: the dialogue re-enters parameter collection.
	if hasState && state.Status == convo.StatusWaitingConfirmation {
		if nl.IsAffirmation(normalized) {
			return e.executePending(ctx, caller, state)
		}
		if nl.IsNegation(normalized) {
			return e.cancelPending(ctx, caller, state)
		}
		if state.PendingLogID != "" {
			if err := e.cfg.Executor.Cancel(ctx, state.PendingLogID, caller); err != nil {
				e.logger.Warn("cancel failed", "log_id", state.PendingLogID, "error", err)
			}
		}
		state.Status = convo.StatusCollectingParams
		state.PendingLogID = ""
	}

	// A bare cancellation phrase wins over everything else.
	if nl.IsCancellation(normalized) {
		if hasState {
			e.cancelPending(ctx, caller, state)
		}
		e.convos.Delete(caller.UserID, caller.SpaceID)
		return &TurnResult{Success: true, NarrativeLog: CancelledMessage}
	}

	if hasState {
		// The turn's text answers the slot asked for last turn, when one
		// is outstanding.
		if state.Status == convo.StatusCollectingParams && len(state.Missing) > 0 {
			if value := strings.TrimSpace(input.Text); value != "" {
				state.Params[state.Missing[0]] = value
			}
		}
		return e.advance(ctx, caller, state)
	}

	// No active dialogue: ask a model what the user wants.
	modelID := e.cfg.TextModelID
	if mode == ModeVoice {
		modelID = e.cfg.VoiceModelID
	}

	modelInput := model.Input{
		Message:        normalized,
		SpaceID:        caller.SpaceID,
		OrganizationID: caller.TenantID,
		AllowedActions: e.cfg.Intents.AllowedFor(caller),
	}
	if vc, ok := e.voice.Get(caller.UserID, caller.SpaceID); ok {
		modelInput.UserIntent = vc.LastIntent
	}

	response := e.cfg.Models.Generate(ctx, modelID, caller.SpaceID, modelInput)
	if response.SuggestedAction == nil {
		return &TurnResult{Success: true, NarrativeLog: response.Text}
	}

	suggestion := response.SuggestedAction
	if validation := e.cfg.Intents.Validate(suggestion.Type, caller); !validation.Valid {
		return &TurnResult{Success: false, NarrativeLog: validation.Reason}
	}

	params := make(map[string]string, len(suggestion.Payload))
	for k, v := range suggestion.Payload {
		params[k] = v
	}
	state = &convo.State{
		SpaceID:      caller.SpaceID,
		UserID:       caller.UserID,
		ActiveIntent: suggestion.Type,
		Params:       params,
		Status:       convo.StatusCollectingParams,
	}
	e.voice.Save(&convo.VoiceContext{
		SpaceID:    caller.SpaceID,
		UserID:     caller.UserID,
		LastIntent: suggestion.Type,
	})

	return e.advance(ctx, caller, state)
}

// advance re-runs the resolver over the dialogue state and persists the
// outcome: another question, a confirmation request, or execution.
func (e *Engine) advance(ctx context.Context, caller identity.Context, state *convo.State) *TurnResult {
	resolution := e.cfg.Intents.Resolve(state)

	switch {
	case resolution.MissingParam != "":
		state.Missing = []string{resolution.MissingParam}
		state.Status = convo.StatusCollectingParams
		e.convos.Save(state)
		return &TurnResult{Success: true, NarrativeLog: resolution.Question}

	case resolution.ShouldConfirmNow:
		proposal, err := e.cfg.Service.ProposeIntent(ctx, state.ActiveIntent, state.Params, caller)
		if err != nil {
			e.logger.Error("proposal failed", "intent", state.ActiveIntent, "error", err)
			e.convos.Delete(caller.UserID, caller.SpaceID)
			return &TurnResult{Success: false, NarrativeLog: GenericErrorMessage}
		}
		if proposal.Status == governance.StatusRejected {
			e.convos.Delete(caller.UserID, caller.SpaceID)
			return &TurnResult{Success: false, NarrativeLog: proposal.Message}
		}
		state.PendingLogID = proposal.LogID
		state.Missing = nil
		state.Status = convo.StatusWaitingConfirmation
		e.convos.Save(state)
		return &TurnResult{Success: true, NarrativeLog: resolution.Question}

	case resolution.IsReady:
		return e.executeReady(ctx, caller, state)

	case resolution.Question != "":
		// Unknown active intent (catalog changed underneath the dialogue).
		e.convos.Delete(caller.UserID, caller.SpaceID)
		return &TurnResult{Success: false, NarrativeLog: resolution.Question}

	default:
		e.convos.Delete(caller.UserID, caller.SpaceID)
		return &TurnResult{Success: false, NarrativeLog: GenericErrorMessage}
	}
}

// executeReady runs a fully-resolved intent that needs no pending
// confirmation: it is proposed (auto-confirming for low-risk intents) and
// executed in one turn.
func (e *Engine) executeReady(ctx context.Context, caller identity.Context, state *convo.State) *TurnResult {
	if denied := e.checkGuard(caller, state.ActiveIntent); denied != nil {
		e.convos.Delete(caller.UserID, caller.SpaceID)
		return denied
	}

	proposal, err := e.cfg.Service.ProposeIntent(ctx, state.ActiveIntent, state.Params, caller)
	if err != nil {
		e.logger.Error("proposal failed", "intent", state.ActiveIntent, "error", err)
		e.convos.Delete(caller.UserID, caller.SpaceID)
		return &TurnResult{Success: false, NarrativeLog: GenericErrorMessage}
	}
	if proposal.Status == governance.StatusRejected {
		e.convos.Delete(caller.UserID, caller.SpaceID)
		return &TurnResult{Success: false, NarrativeLog: proposal.Message}
	}

	result, err := e.cfg.Executor.Confirm(ctx, proposal.LogID, caller)
	return e.finishExecution(caller, state, result, err)
}

// executePending runs the proposal behind a waiting confirmation after the
// user affirmed.
func (e *Engine) executePending(ctx context.Context, caller identity.Context, state *convo.State) *TurnResult {
	if denied := e.checkGuard(caller, state.ActiveIntent); denied != nil {
		e.convos.Delete(caller.UserID, caller.SpaceID)
		return denied
	}

	result, err := e.cfg.Executor.Confirm(ctx, state.PendingLogID, caller)
	return e.finishExecution(caller, state, result, err)
}

// finishExecution clears the dialogue and shapes the user-facing result.
func (e *Engine) finishExecution(caller identity.Context, state *convo.State, result *action.Result, err error) *TurnResult {
	e.convos.Delete(caller.UserID, caller.SpaceID)

	if err != nil {
		e.logger.Error("execution failed", "intent", state.ActiveIntent, "error", err)
		return &TurnResult{Success: false, NarrativeLog: GenericErrorMessage}
	}

	e.voice.Save(&convo.VoiceContext{
		SpaceID:    caller.SpaceID,
		UserID:     caller.UserID,
		LastIntent: state.ActiveIntent,
		LastAction: state.ActiveIntent,
	})

	return &TurnResult{
		Success:      result.Success,
		NarrativeLog: result.NarrativeLog,
		Data:         result.Data,
		Metadata:     map[string]any{"intent": state.ActiveIntent},
	}
}

// cancelPending withdraws a pending proposal, when one exists, and drops
// the dialogue.
func (e *Engine) cancelPending(ctx context.Context, caller identity.Context, state *convo.State) *TurnResult {
	if state.PendingLogID != "" {
		if err := e.cfg.Executor.Cancel(ctx, state.PendingLogID, caller); err != nil {
			e.logger.Warn("cancel failed", "log_id", state.PendingLogID, "error", err)
		}
	}
	e.convos.Delete(caller.UserID, caller.SpaceID)
	return &TurnResult{Success: true, NarrativeLog: CancelledMessage}
}

// checkGuard authorizes the resolved action against the caller's
// capabilities. A nil return means allowed.
func (e *Engine) checkGuard(caller identity.Context, intentID string) *TurnResult {
	def, ok := e.cfg.Intents.Get(intentID)
	if !ok {
		return &TurnResult{Success: false, NarrativeLog: GenericErrorMessage}
	}
	reg, ok := e.cfg.Actions.Get(def.Action)
	if !ok {
		e.logger.Error("no action registered", "intent", intentID, "action", def.Action)
		return &TurnResult{Success: false, NarrativeLog: GenericErrorMessage}
	}
	if decision := e.cfg.Guard.Check(caller, reg, intentID); !decision.Allowed {
		return &TurnResult{Success: false, NarrativeLog: decision.Reason}
	}
	return nil
}

// Conversations exposes the dialogue store for tests and diagnostics.
func (e *Engine) Conversations() *convo.Store {
	return e.convos
}

// RunExpiry starts the periodic sweep that cancels stale proposals. It
// returns when ctx is done.
func (e *Engine) RunExpiry(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.cfg.Service.ExpireStale(ctx, ttl); err != nil {
				e.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}
