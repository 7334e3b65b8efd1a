package intent

import (
	"fmt"
	"strings"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/convo"
)

// Resolution is the resolver's verdict for one conversation state.
type Resolution struct {
	// IsReady means every required parameter is filled and confirmation
	// (when required) has been requested already — the intent can execute.
	IsReady bool
	// MissingParam is the single parameter to ask for this turn, empty when
	// none is missing. Parameters are requested strictly in declared order,
	// one per turn.
	MissingParam string
	// Question is the narrative question to send to the user, when any.
	Question string
	// ShouldConfirmNow signals that all parameters are present and the
	// intent requires an explicit yes before it becomes ready.
	ShouldConfirmNow bool
}

// Resolve runs the slot-filling state machine over a conversation state.
// It is pure: no side effects, safe to call repeatedly with the same input.
func (r *Registry) Resolve(state *convo.State) Resolution {
	if state == nil || state.ActiveIntent == "" {
		return Resolution{}
	}

	def, ok := r.Get(state.ActiveIntent)
	if !ok {
		return Resolution{
			Question: fmt.Sprintf("Ya no reconozco la acción «%s»; empecemos de nuevo.", state.ActiveIntent),
		}
	}

	for _, param := range def.RequiredParams {
		if strings.TrimSpace(state.Params[param]) == "" {
			return Resolution{
				MissingParam: param,
				Question:     def.ParamQuestion(param),
			}
		}
	}

	if def.RequiresConfirmation && state.Status != convo.StatusWaitingConfirmation {
		return Resolution{
			ShouldConfirmNow: true,
			Question:         def.ConfirmationQuestion(),
		}
	}

	return Resolution{IsReady: true}
}
