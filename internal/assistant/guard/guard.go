// Package guard authorizes resolved actions against the caller's capability
// set before anything side-effecting runs. It is the last gate between a
// ready intent and the action registry.
package guard

import (
	"fmt"
	"strings"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/action"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/intent"
)

// Decision is the guard's verdict. Reason is user-displayable.
type Decision struct {
	Allowed bool
	Reason  string
}

// Guard checks permissions for resolved actions.
type Guard struct {
	intents *intent.Registry
}

// New returns a Guard bound to the intent registry.
func New(intents *intent.Registry) *Guard {
	return &Guard{intents: intents}
}

// Check authorizes an action for the caller. Checks run in order:
//
//	(a) the context must carry both a tenant and a space — a caller without
//	    a workspace gets a dedicated message, not a generic denial;
//	(b) when intentName is given, the intent's vertical allow-list must
//	    include the context's vertical, with "general" as a catch-all;
//	(c) every permission the action declares must be present in the
//	    caller's capability set; shortfalls name the exact missing strings.
func (g *Guard) Check(ctx identity.Context, reg action.Registration, intentName string) Decision {
	if !ctx.HasWorkspace() {
		return Decision{Reason: "Necesitas un espacio de trabajo activo para usar el asistente."}
	}

	if intentName != "" {
		def, ok := g.intents.Get(intentName)
		if !ok {
			return Decision{Reason: fmt.Sprintf("No reconozco la acción «%s».", intentName)}
		}
		if !def.AllowsVertical(ctx.Vertical) && !def.AllowsVertical(identity.VerticalGeneral) {
			return Decision{Reason: fmt.Sprintf("La acción «%s» no aplica para espacios de tipo «%s».", def.Name, ctx.Vertical)}
		}
	}

	if missing := ctx.MissingCapabilities(reg.RequiredPermissions); len(missing) > 0 {
		return Decision{Reason: fmt.Sprintf("Te faltan permisos: %s.", strings.Join(missing, ", "))}
	}

	return Decision{Allowed: true}
}
