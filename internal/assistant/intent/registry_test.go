package intent_test

import (
	"strings"
	"testing"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/intent"
)

func TestDefaultRegistry_Loads(t *testing.T) {
	r, err := intent.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}

	def, ok := r.Get("create_brief")
	if !ok {
		t.Fatal("expected create_brief in the default catalog")
	}
	if def.Action != "create_brief" {
		t.Errorf("action = %q", def.Action)
	}
	if !def.RequiresConfirmation {
		t.Error("create_brief must require confirmation")
	}
	if len(def.RequiredParams) == 0 || def.RequiredParams[0] != "client_id" {
		t.Errorf("required params = %v", def.RequiredParams)
	}

	if _, ok := r.Get("drop_database"); ok {
		t.Error("unknown intent must not resolve")
	}
}

func TestLoadCatalog_SchemaRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing version", "intents:\n  - id: a\n    name: A\n    risk: low\n    scope: agency\n    action: a\n    allowed_spaces: [agency]\n"},
		{"bad risk", "version: 1\nintents:\n  - id: a\n    name: A\n    risk: elevated\n    scope: agency\n    action: a\n    allowed_spaces: [agency]\n"},
		{"empty allowed_spaces", "version: 1\nintents:\n  - id: a\n    name: A\n    risk: low\n    scope: agency\n    action: a\n    allowed_spaces: []\n"},
		{"unknown field", "version: 1\nintents:\n  - id: a\n    name: A\n    risk: low\n    scope: agency\n    action: a\n    allowed_spaces: [agency]\n    blast_radius: full\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := intent.LoadCatalog([]byte(tt.doc)); err == nil {
				t.Errorf("expected schema validation to reject document")
			}
		})
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	defs := []intent.Definition{
		{ID: "a", Name: "A", Risk: intent.RiskLow, Scope: intent.ScopeAgency, Action: "a", AllowedSpaces: []string{"agency"}},
		{ID: "a", Name: "A again", Risk: intent.RiskLow, Scope: intent.ScopeAgency, Action: "a", AllowedSpaces: []string{"agency"}},
	}
	if _, err := intent.NewRegistry(defs); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate-id error, got %v", err)
	}
}

func TestRegistry_AllowedFor(t *testing.T) {
	r, err := intent.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}

	admin := identity.Context{TenantID: "t", SpaceID: "sp", UserID: "u", Role: "admin", Vertical: "agency"}
	viewer := identity.Context{TenantID: "t", SpaceID: "sp", UserID: "u", Role: "viewer", Vertical: "agency"}

	adminIDs := r.AllowedFor(admin)
	if len(adminIDs) == 0 {
		t.Fatal("admin should have allowed intents")
	}

	viewerIDs := r.AllowedFor(viewer)
	for _, id := range viewerIDs {
		if id == "pause_automation" {
			t.Error("viewer must not see admin-only intents")
		}
	}
}
