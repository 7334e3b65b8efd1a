package governance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChristianGroove/agency-manager-sub002/common/trace"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/action"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/intent"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/store"
)

// Executor is the state-transition authority for intent proposals. It reads
// and mutates intent_log rows through the elevated store handle, but always
// runs the underlying business action with the caller's own scoped identity.
// That split keeps governance bookkeeping out of reach of row-level
// permissions without ever lending an action elevated access.
type Executor struct {
	intents *intent.Registry
	actions *action.Registry
	db      *store.Store
	logger  *slog.Logger
}

// NewExecutor wires the executor to its registries and store.
func NewExecutor(intents *intent.Registry, actions *action.Registry, db *store.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{intents: intents, actions: actions, db: db, logger: logger}
}

// Confirm moves a proposal to confirmed and immediately executes it. Calling
// it on a row that is already confirmed or executed skips the transition and
// proceeds to Execute, so a retried confirmation is harmless.
func (e *Executor) Confirm(ctx context.Context, logID string, caller identity.Context) (*action.Result, error) {
	ctx, traceID := trace.Ensure(ctx)

	row, err := e.db.GetIntentLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("confirm intent: %w", err)
	}
	if row.UserID != caller.UserID {
		return nil, &AuthorizationError{LogID: logID, Reason: "caller does not own this proposal"}
	}

	switch Status(row.Status) {
	case StatusProposed:
		ok, err := e.db.TransitionIntentStatus(ctx, logID, string(StatusProposed), string(StatusConfirmed),
			withMetadata(row.Metadata, map[string]any{
				"confirmed_by": caller.UserID,
				"confirmed_at": time.Now().UTC().Format(time.RFC3339),
			}))
		if err != nil {
			return nil, fmt.Errorf("confirm intent: %w", err)
		}
		if !ok {
			// Another caller raced the transition; re-read and fall through
			// to Execute, which enforces the status it finds.
			e.logger.Debug("confirmation raced", "trace_id", traceID, "log_id", logID)
		}
	case StatusConfirmed, StatusExecuted:
		// Already past confirmation; Execute handles both.
	default:
		return nil, &StateTransitionError{LogID: logID, Required: StatusProposed, Actual: Status(row.Status)}
	}

	return e.Execute(ctx, logID, caller)
}

// Execute runs the action behind a confirmed proposal exactly once.
// Re-executing an executed row returns the stored result without touching
// the action again. Any status other than confirmed is a hard error naming
// what the row actually is.
func (e *Executor) Execute(ctx context.Context, logID string, caller identity.Context) (*action.Result, error) {
	ctx, traceID := trace.Ensure(ctx)

	row, err := e.db.GetIntentLog(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("execute intent: %w", err)
	}
	if row.UserID != caller.UserID || row.SpaceID != caller.SpaceID {
		return nil, &AuthorizationError{LogID: logID, Reason: "caller identity does not match the proposal"}
	}

	if Status(row.Status) == StatusExecuted {
		return resultFromMetadata(row.Metadata), nil
	}
	if Status(row.Status) != StatusConfirmed {
		return nil, &StateTransitionError{LogID: logID, Required: StatusConfirmed, Actual: Status(row.Status)}
	}

	def, ok := e.intents.Get(row.IntentID)
	if !ok {
		return nil, &ValidationError{IntentID: row.IntentID, Reason: "intención desconocida"}
	}
	reg, ok := e.actions.Get(def.Action)
	if !ok {
		return nil, fmt.Errorf("execute intent %s: no action registered for %q", logID, def.Action)
	}

	// Claim the row before dispatching. The conditional update means two
	// concurrent executes cannot both run the action: exactly one sees the
	// row still confirmed.
	claimed, err := e.db.TransitionIntentStatus(ctx, logID, string(StatusConfirmed), string(StatusExecuted),
		withMetadata(row.Metadata, map[string]any{
			"executed_by": caller.UserID,
			"executed_at": time.Now().UTC().Format(time.RFC3339),
			"in_flight":   true,
		}))
	if err != nil {
		return nil, fmt.Errorf("execute intent: %w", err)
	}
	if !claimed {
		// Lost the race. Re-read; the winner either finished or failed.
		row, err = e.db.GetIntentLog(ctx, logID)
		if err != nil {
			return nil, fmt.Errorf("execute intent: %w", err)
		}
		if Status(row.Status) == StatusExecuted {
			return resultFromMetadata(row.Metadata), nil
		}
		return nil, &StateTransitionError{LogID: logID, Required: StatusConfirmed, Actual: Status(row.Status)}
	}

	result, execErr := reg.Handler.Execute(ctx, caller, row.Payload)
	if execErr != nil {
		if _, err := e.db.TransitionIntentStatus(ctx, logID, string(StatusExecuted), string(StatusFailed),
			withMetadata(row.Metadata, map[string]any{
				"error":     execErr.Error(),
				"failed_at": time.Now().UTC().Format(time.RFC3339),
			})); err != nil {
			e.logger.Error("failed to record action failure", "trace_id", traceID, "log_id", logID, "error", err)
		}
		e.audit(ctx, traceID, caller, row, "failure", execErr.Error())
		return nil, fmt.Errorf("execute intent %s: %w", row.IntentID, execErr)
	}

	if _, err := e.db.TransitionIntentStatus(ctx, logID, string(StatusExecuted), string(StatusExecuted),
		withMetadata(row.Metadata, map[string]any{
			"executed_by": caller.UserID,
			"executed_at": time.Now().UTC().Format(time.RFC3339),
			"result":      resultToMetadata(result),
		})); err != nil {
		e.logger.Error("failed to store execution result", "trace_id", traceID, "log_id", logID, "error", err)
	}
	e.audit(ctx, traceID, caller, row, "success", "")

	e.logger.Info("intent executed",
		"trace_id", traceID,
		"log_id", logID,
		"intent", row.IntentID,
		"space_id", row.SpaceID,
	)
	return result, nil
}

// Cancel withdraws a proposal. Only rows still in proposed can be cancelled;
// everything else is rejected with the current status named.
func (e *Executor) Cancel(ctx context.Context, logID string, caller identity.Context) error {
	ctx, traceID := trace.Ensure(ctx)

	row, err := e.db.GetIntentLog(ctx, logID)
	if err != nil {
		return fmt.Errorf("cancel intent: %w", err)
	}
	if row.UserID != caller.UserID {
		return &AuthorizationError{LogID: logID, Reason: "caller does not own this proposal"}
	}
	if Status(row.Status) != StatusProposed {
		return &StateTransitionError{LogID: logID, Required: StatusProposed, Actual: Status(row.Status)}
	}

	ok, err := e.db.TransitionIntentStatus(ctx, logID, string(StatusProposed), string(StatusCancelled),
		withMetadata(row.Metadata, map[string]any{
			"cancelled_by": caller.UserID,
			"cancelled_at": time.Now().UTC().Format(time.RFC3339),
		}))
	if err != nil {
		return fmt.Errorf("cancel intent: %w", err)
	}
	if !ok {
		row, err = e.db.GetIntentLog(ctx, logID)
		if err != nil {
			return fmt.Errorf("cancel intent: %w", err)
		}
		return &StateTransitionError{LogID: logID, Required: StatusProposed, Actual: Status(row.Status)}
	}

	e.audit(ctx, traceID, caller, row, "cancelled", "")
	e.logger.Info("intent cancelled", "trace_id", traceID, "log_id", logID, "intent", row.IntentID)
	return nil
}

func (e *Executor) audit(ctx context.Context, traceID string, caller identity.Context, row *store.IntentLog, result, errMsg string) {
	if err := e.db.WriteAudit(ctx, traceID, caller.UserID, row.SpaceID,
		"intent.execute", row.IntentID, result,
		store.AuditPayload{"log_id": row.ID}, errMsg,
	); err != nil {
		e.logger.Warn("audit write failed", "trace_id", traceID, "log_id", row.ID, "error", err)
	}
}

// withMetadata merges updates over the row's existing metadata without
// mutating the original map.
func withMetadata(existing map[string]any, updates map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// resultFromMetadata reconstructs the stored action result for idempotent
// replays. Rows executed before result storage existed degrade to a bare
// success.
func resultFromMetadata(metadata map[string]any) *action.Result {
	result := &action.Result{Success: true}
	stored, ok := metadata["result"].(map[string]any)
	if !ok {
		return result
	}
	if success, ok := stored["success"].(bool); ok {
		result.Success = success
	}
	if narrative, ok := stored["narrative_log"].(string); ok {
		result.NarrativeLog = narrative
	}
	if data, ok := stored["data"].(map[string]any); ok {
		result.Data = data
	}
	return result
}

func resultToMetadata(result *action.Result) map[string]any {
	m := map[string]any{
		"success":       result.Success,
		"narrative_log": result.NarrativeLog,
	}
	if result.Data != nil {
		m["data"] = result.Data
	}
	return m
}
