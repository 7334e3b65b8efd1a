package model

import (
	"context"
	"strings"
)

// DefaultAdapterID identifies the deterministic keyword adapter.
const DefaultAdapterID = "keyword"

// keywordRule maps trigger phrases to an intent id.
type keywordRule struct {
	triggers   []string
	intentID   string
	confidence float64
}

// rules are scanned in order; first match wins. Triggers are matched against
// the already-normalized (lowercased, filler-stripped) message. The adapter
// only names the intent; parameter values are collected turn by turn through
// the dialogue, never guessed out of the trigger sentence.
var rules = []keywordRule{
	{
		triggers:   []string{"crear brief", "nuevo brief", "hacer un brief", "brief para"},
		intentID:   "create_brief",
		confidence: 0.9,
	},
	{
		triggers:   []string{"crear cotización", "crear cotizacion", "nueva cotización", "nueva cotizacion", "cotización para", "cotizacion para"},
		intentID:   "create_quote",
		confidence: 0.9,
	},
	{
		triggers:   []string{"enviar recordatorio", "mandar recordatorio", "recordatorio para", "recuérdale", "recuerdale"},
		intentID:   "send_reminder",
		confidence: 0.85,
	},
	{
		triggers:   []string{"pausar automatización", "pausar automatizacion", "detener automatización", "detener automatizacion"},
		intentID:   "pause_automation",
		confidence: 0.85,
	},
	{
		triggers:   []string{"activar flujo", "activa el flujo", "encender flujo"},
		intentID:   "activate_flow",
		confidence: 0.85,
	},
	{
		triggers:   []string{"tareas pendientes", "qué tengo pendiente", "que tengo pendiente", "mis pendientes"},
		intentID:   "list_pending_tasks",
		confidence: 0.8,
	},
}

// KeywordAdapter is the deterministic fallback model. It never errs, needs
// no network, and answers instantly, so it is always a safe last resort.
type KeywordAdapter struct{}

// NewKeywordAdapter returns the deterministic keyword adapter.
func NewKeywordAdapter() *KeywordAdapter {
	return &KeywordAdapter{}
}

// ID implements Adapter.
func (a *KeywordAdapter) ID() string { return DefaultAdapterID }

// GenerateResponse implements Adapter by scanning for known trigger phrases.
func (a *KeywordAdapter) GenerateResponse(_ context.Context, input Input) (*Response, error) {
	message := strings.ToLower(strings.TrimSpace(input.Message))
	if message == "" {
		return &Response{
			Text:       "¿En qué te ayudo? Puedo crear briefs, cotizaciones o enviar recordatorios.",
			Confidence: 1,
		}, nil
	}

	allowed := make(map[string]bool, len(input.AllowedActions))
	for _, id := range input.AllowedActions {
		allowed[id] = true
	}

	for _, rule := range rules {
		if len(input.AllowedActions) > 0 && !allowed[rule.intentID] {
			continue
		}
		for _, trigger := range rule.triggers {
			if strings.Contains(message, trigger) {
				return &Response{
					Confidence: rule.confidence,
					SuggestedAction: &SuggestedAction{
						Type:    rule.intentID,
						Payload: map[string]string{},
					},
				}, nil
			}
		}
	}

	return &Response{
		Text:       "No estoy segura de qué necesitas. Puedo crear briefs, cotizaciones, enviar recordatorios o mostrarte tus tareas pendientes.",
		Confidence: 0.3,
	}, nil
}
