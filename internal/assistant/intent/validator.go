package intent

import (
	"fmt"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
)

// ValidationResult is the outcome of checking an intent against a caller
// context. Reason is written for direct user display.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// agencyVertical is the vertical granted an implicit pass by the legacy
// fallback rule below.
const agencyVertical = "agency"

// Validate checks whether the caller's context may use the intent. Rules run
// in order and the first failure wins:
//
//  1. The intent must exist in the registry.
//  2. The context's vertical must appear in the intent's allowed-spaces
//     list. Exception: a caller whose vertical AND space id are both
//     "agency" passes even when "agency" is not literally listed. This
//     asymmetry is inherited behaviour, kept on purpose; see DESIGN.md for
//     the follow-up decision it is flagged under.
//  3. The caller's role must be in the intent's allowed-roles list, with
//     owner always implicitly authorised.
//
// Validate never fails with an error; any problem is reported in Reason.
func (r *Registry) Validate(intentID string, ctx identity.Context) ValidationResult {
	def, ok := r.Get(intentID)
	if !ok {
		return ValidationResult{
			Reason: fmt.Sprintf("No reconozco la acción «%s». Pídeme ver las acciones disponibles.", intentID),
		}
	}

	if !def.AllowsVertical(ctx.Vertical) {
		if !(ctx.Vertical == agencyVertical && ctx.SpaceID == agencyVertical) {
			return ValidationResult{
				Reason: fmt.Sprintf("La acción «%s» no está disponible para espacios de tipo «%s».", def.Name, ctx.Vertical),
			}
		}
	}

	if !def.AllowsRole(ctx.Role) {
		return ValidationResult{
			Reason: fmt.Sprintf("Tu rol «%s» no tiene permiso para «%s».", ctx.Role, def.Name),
		}
	}

	return ValidationResult{Valid: true}
}

// AllowedFor returns the ids of all intents the context passes validation
// for, in catalog order. Used to prime model calls with the caller's real
// action surface.
func (r *Registry) AllowedFor(ctx identity.Context) []string {
	var ids []string
	for _, id := range r.order {
		if r.Validate(id, ctx).Valid {
			ids = append(ids, id)
		}
	}
	return ids
}
