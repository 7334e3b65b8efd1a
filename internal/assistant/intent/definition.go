// Package intent defines the static catalog of governed assistant intents and
// the pure decision logic built on it: context validation and slot-filling
// resolution.
//
// Every intent referenced anywhere in the system — by an action, by a
// conversation state, by a model suggestion — must exist in the registry.
// An unknown id is a validation failure surfaced to the user, never a crash.
package intent

import (
	"fmt"
	"strings"
)

// RiskLevel classifies how dangerous an intent's side effects are. Low-risk
// intents that do not require confirmation are auto-confirmed on proposal.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Scope describes the blast radius of an intent.
type Scope string

const (
	ScopeReadOnly Scope = "read_only"
	ScopeAgency   Scope = "agency"
	ScopeSystem   Scope = "system"
)

// Definition is one entry in the intent catalog. Definitions are static:
// loaded once at startup and never mutated.
type Definition struct {
	// ID is the stable intent identifier, e.g. "create_quote".
	ID string `yaml:"id"`
	// Name is the human-facing name used in narrative prompts.
	Name string `yaml:"name"`
	// Risk is the declared risk level.
	Risk RiskLevel `yaml:"risk"`
	// Scope is the intent's blast radius.
	Scope Scope `yaml:"scope"`
	// Module is the product module owning the intent.
	Module string `yaml:"module"`
	// AllowedRoles lists roles permitted to use the intent. The owner role
	// is always implicitly allowed.
	AllowedRoles []string `yaml:"allowed_roles"`
	// AllowedSpaces lists the verticals the intent applies to. "general"
	// acts as a catch-all in the permission guard.
	AllowedSpaces []string `yaml:"allowed_spaces"`
	// RequiredParams are the parameter names the resolver collects, in
	// declared order, one at a time.
	RequiredParams []string `yaml:"required_params"`
	// Action is the name of the executable action linked to the intent.
	Action string `yaml:"action"`
	// RequiresConfirmation forces an explicit yes before execution.
	RequiresConfirmation bool `yaml:"requires_confirmation"`
	// ConfirmationPrompt is an optional bespoke confirmation question. When
	// empty a generic templated question is produced.
	ConfirmationPrompt string `yaml:"confirmation_prompt"`
	// ParamPrompts optionally maps a parameter name to the narrative
	// question asked for it; missing entries fall back to a generic one.
	ParamPrompts map[string]string `yaml:"param_prompts"`
}

// ConfirmationQuestion returns the bespoke confirmation prompt or a generic
// templated fallback.
func (d *Definition) ConfirmationQuestion() string {
	if d.ConfirmationPrompt != "" {
		return d.ConfirmationPrompt
	}
	return fmt.Sprintf("¿Confirmas que ejecute «%s»? Responde sí o no.", d.Name)
}

// ParamQuestion returns the narrative question for one required parameter.
func (d *Definition) ParamQuestion(param string) string {
	if q, ok := d.ParamPrompts[param]; ok && q != "" {
		return q
	}
	return fmt.Sprintf("Para continuar con «%s» necesito el dato «%s». ¿Me lo compartes?", d.Name, param)
}

// AllowsRole reports whether role may use the intent. The owner role is
// always implicitly authorised.
func (d *Definition) AllowsRole(role string) bool {
	if role == "owner" {
		return true
	}
	for _, r := range d.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// AllowsVertical reports whether vertical appears in the intent's
// allowed-spaces list.
func (d *Definition) AllowsVertical(vertical string) bool {
	for _, v := range d.AllowedSpaces {
		if v == vertical {
			return true
		}
	}
	return false
}

// validate checks a single definition for structural correctness.
func (d *Definition) validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("id must not be empty")
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	switch d.Risk {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("risk %q is not one of low, medium, high", d.Risk)
	}
	switch d.Scope {
	case ScopeReadOnly, ScopeAgency, ScopeSystem:
	default:
		return fmt.Errorf("scope %q is not one of read_only, agency, system", d.Scope)
	}
	if strings.TrimSpace(d.Action) == "" {
		return fmt.Errorf("action must not be empty")
	}
	if len(d.AllowedSpaces) == 0 {
		return fmt.Errorf("allowed_spaces must not be empty")
	}
	for i, p := range d.RequiredParams {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("required_params[%d] must not be empty", i)
		}
	}
	return nil
}
