// Package governance implements the auditable propose → confirm → execute
// lifecycle for assistant intents. The intent_log row is the single source
// of truth for execution state; conversation state is never consulted here.
//
// Legal transitions: proposed → confirmed → executed, proposed → confirmed
// → failed, proposed → cancelled. Nothing else.
package governance

import (
	"fmt"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/intent"
)

// Status is the lifecycle state of an intent log row.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusConfirmed Status = "confirmed"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Proposal is the outcome of ProposeIntent, returned to governance API
// callers.
type Proposal struct {
	LogID                string           `json:"log_id"`
	Status               Status           `json:"status"`
	RiskLevel            intent.RiskLevel `json:"risk_level"`
	RequiresConfirmation bool             `json:"requires_confirmation"`
	Message              string           `json:"message"`
}

// StateTransitionError reports an operation attempted from an illegal
// status. Actual carries the row's current status so the caller can react.
type StateTransitionError struct {
	LogID    string
	Required Status
	Actual   Status
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("intent %s: required status '%s', actual status '%s'", e.LogID, e.Required, e.Actual)
}

// AuthorizationError reports a caller whose identity does not match the
// audit row. Security-relevant, always rejected.
type AuthorizationError struct {
	LogID  string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("intent %s: not authorized: %s", e.LogID, e.Reason)
}

// ValidationError reports a proposal refused before any side effect. Always
// user-facing, never a system fault.
type ValidationError struct {
	IntentID string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intent %s: %s", e.IntentID, e.Reason)
}
