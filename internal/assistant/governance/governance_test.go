package governance_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/action"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/governance"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/intent"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/store"
)

// testEnv bundles the service, executor and counters for one test.
type testEnv struct {
	service  *governance.Service
	executor *governance.Executor
	db       *store.Store
	calls    *atomic.Int64
}

// newTestEnv wires a full governance stack over a temp database. Every
// catalog action is registered with a handler that counts invocations.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "governance-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	f.Close()

	db, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	intents, err := intent.DefaultRegistry()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	calls := &atomic.Int64{}
	actions := action.NewRegistry()
	for _, def := range intents.List() {
		name := def.Action
		err := actions.Register(action.Registration{
			Name: name,
			Handler: action.HandlerFunc(func(ctx context.Context, caller identity.Context, params map[string]string) (*action.Result, error) {
				calls.Add(1)
				return &action.Result{
					Success:      true,
					NarrativeLog: "hecho: " + name,
					Data:         map[string]any{"client_id": params["client_id"]},
				}, nil
			}),
		})
		if err != nil {
			t.Fatalf("register action %s: %v", name, err)
		}
	}

	return &testEnv{
		service:  governance.NewService(intents, db, nil),
		executor: governance.NewExecutor(intents, actions, db, nil),
		db:       db,
		calls:    calls,
	}
}

func memberContext() identity.Context {
	return identity.Context{
		TenantID: "org-1",
		SpaceID:  "space-1",
		UserID:   "user-1",
		Role:     identity.RoleMember,
		Vertical: "agency",
	}
}

// --- Proposal ---

func TestPropose_MediumRiskStaysProposed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.service.ProposeIntent(ctx, "create_brief", map[string]string{"client_id": "acme"}, memberContext())
	if err != nil {
		t.Fatalf("ProposeIntent: %v", err)
	}
	if p.Status != governance.StatusProposed {
		t.Errorf("expected proposed, got %q", p.Status)
	}
	if !p.RequiresConfirmation {
		t.Error("create_brief should require confirmation")
	}
	if p.LogID == "" {
		t.Error("expected a log id")
	}
}

func TestPropose_LowRiskAutoConfirms(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.service.ProposeIntent(context.Background(), "send_reminder", map[string]string{"client_id": "acme"}, memberContext())
	if err != nil {
		t.Fatalf("ProposeIntent: %v", err)
	}
	if p.Status != governance.StatusConfirmed {
		t.Errorf("low-risk non-confirming intent should start confirmed, got %q", p.Status)
	}
}

func TestPropose_WrongVerticalRejected(t *testing.T) {
	env := newTestEnv(t)
	caller := memberContext()
	caller.Vertical = "restaurant"
	caller.SpaceID = "space-rest"

	p, err := env.service.ProposeIntent(context.Background(), "create_brief", nil, caller)
	if err != nil {
		t.Fatalf("ProposeIntent: %v", err)
	}
	if p.Status != governance.StatusRejected {
		t.Errorf("expected rejected, got %q", p.Status)
	}
	if p.Message == "" {
		t.Error("rejection should carry a user-facing reason")
	}

	// The refusal itself is audited as a row.
	row, err := env.db.GetIntentLog(context.Background(), p.LogID)
	if err != nil {
		t.Fatalf("GetIntentLog: %v", err)
	}
	if row.Status != string(governance.StatusRejected) {
		t.Errorf("row status should be rejected, got %q", row.Status)
	}
}

func TestPropose_UnknownIntentRejected(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.service.ProposeIntent(context.Background(), "launch_rocket", nil, memberContext())
	if err != nil {
		t.Fatalf("ProposeIntent: %v", err)
	}
	if p.Status != governance.StatusRejected {
		t.Errorf("expected rejected, got %q", p.Status)
	}
}

func TestPropose_EachCallCreatesNewRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1, _ := env.service.ProposeIntent(ctx, "create_brief", nil, memberContext())
	p2, _ := env.service.ProposeIntent(ctx, "create_brief", nil, memberContext())
	if p1.LogID == p2.LogID {
		t.Error("each proposal call must create a distinct row")
	}
}

// --- Confirm / Execute ---

func TestConfirm_ExecutesImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	caller := memberContext()

	p, _ := env.service.ProposeIntent(ctx, "create_brief", map[string]string{"client_id": "acme"}, caller)
	result, err := env.executor.Confirm(ctx, p.LogID, caller)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if env.calls.Load() != 1 {
		t.Errorf("expected 1 action invocation, got %d", env.calls.Load())
	}

	row, _ := env.db.GetIntentLog(ctx, p.LogID)
	if row.Status != string(governance.StatusExecuted) {
		t.Errorf("expected executed, got %q", row.Status)
	}
}

func TestConfirm_WrongUserRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, _ := env.service.ProposeIntent(ctx, "create_brief", nil, memberContext())
	other := memberContext()
	other.UserID = "user-2"

	_, err := env.executor.Confirm(ctx, p.LogID, other)
	var authErr *governance.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
}

func TestExecute_RequiresConfirmedStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	caller := memberContext()

	p, _ := env.service.ProposeIntent(ctx, "create_brief", map[string]string{"client_id": "acme"}, caller)
	_, err := env.executor.Execute(ctx, p.LogID, caller)
	var stErr *governance.StateTransitionError
	if !errors.As(err, &stErr) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	if stErr.Required != governance.StatusConfirmed {
		t.Errorf("error should name confirmed as required, got %q", stErr.Required)
	}
	if stErr.Actual != governance.StatusProposed {
		t.Errorf("error should name the actual status, got %q", stErr.Actual)
	}
	if !strings.Contains(err.Error(), "confirmed") {
		t.Errorf("error text should mention confirmed: %v", err)
	}
	if env.calls.Load() != 0 {
		t.Error("action must not run before confirmation")
	}
}

func TestExecute_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	caller := memberContext()

	p, _ := env.service.ProposeIntent(ctx, "send_reminder", map[string]string{"client_id": "acme"}, caller)
	// Low risk: already confirmed, executable directly.
	first, err := env.executor.Execute(ctx, p.LogID, caller)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	second, err := env.executor.Execute(ctx, p.LogID, caller)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if env.calls.Load() != 1 {
		t.Errorf("action must run exactly once, ran %d times", env.calls.Load())
	}
	if first.Success != second.Success || first.NarrativeLog != second.NarrativeLog {
		t.Errorf("replay result differs: %+v vs %+v", first, second)
	}
	if fmt.Sprint(first.Data) != fmt.Sprint(second.Data) {
		t.Errorf("replay data differs: %v vs %v", first.Data, second.Data)
	}
}

func TestExecute_SpaceMismatchIsSecurityFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	caller := memberContext()

	p, _ := env.service.ProposeIntent(ctx, "send_reminder", map[string]string{"client_id": "acme"}, caller)
	intruder := caller
	intruder.SpaceID = "space-2"

	_, err := env.executor.Execute(ctx, p.LogID, intruder)
	var authErr *governance.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if env.calls.Load() != 0 {
		t.Error("action must not run for a mismatched caller")
	}
}

func TestExecute_ActionFailureRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	caller := memberContext()

	intents, err := intent.DefaultRegistry()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	actions := action.NewRegistry()
	actions.Register(action.Registration{
		Name: "send_reminder",
		Handler: action.HandlerFunc(func(ctx context.Context, caller identity.Context, params map[string]string) (*action.Result, error) {
			return nil, errors.New("smtp unreachable")
		}),
	})
	executor := governance.NewExecutor(intents, actions, env.db, nil)

	p, _ := env.service.ProposeIntent(ctx, "send_reminder", map[string]string{"client_id": "acme"}, caller)
	_, execErr := executor.Execute(ctx, p.LogID, caller)
	if execErr == nil {
		t.Fatal("expected action error to propagate")
	}

	row, _ := env.db.GetIntentLog(ctx, p.LogID)
	if row.Status != string(governance.StatusFailed) {
		t.Errorf("expected failed, got %q", row.Status)
	}
	if row.Metadata["error"] != "smtp unreachable" {
		t.Errorf("error not stored in metadata: %#v", row.Metadata)
	}
}

// --- Cancel ---

func TestCancel_ProposedRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	caller := memberContext()

	p, _ := env.service.ProposeIntent(ctx, "create_brief", nil, caller)
	if err := env.executor.Cancel(ctx, p.LogID, caller); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	row, _ := env.db.GetIntentLog(ctx, p.LogID)
	if row.Status != string(governance.StatusCancelled) {
		t.Errorf("expected cancelled, got %q", row.Status)
	}
	if row.Metadata["cancelled_by"] != caller.UserID {
		t.Errorf("cancellation should record who: %#v", row.Metadata)
	}

	// Executing a cancelled row names the cancelled status.
	_, err := env.executor.Execute(ctx, p.LogID, caller)
	var stErr *governance.StateTransitionError
	if !errors.As(err, &stErr) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	if stErr.Actual != governance.StatusCancelled {
		t.Errorf("error should reference cancelled, got %q", stErr.Actual)
	}
}

func TestCancel_NonProposedRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	caller := memberContext()

	p, _ := env.service.ProposeIntent(ctx, "send_reminder", map[string]string{"client_id": "acme"}, caller)
	if _, err := env.executor.Execute(ctx, p.LogID, caller); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	err := env.executor.Cancel(ctx, p.LogID, caller)
	var stErr *governance.StateTransitionError
	if !errors.As(err, &stErr) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	if stErr.Actual != governance.StatusExecuted {
		t.Errorf("error should name current status, got %q", stErr.Actual)
	}

	row, _ := env.db.GetIntentLog(ctx, p.LogID)
	if row.Status != string(governance.StatusExecuted) {
		t.Errorf("failed cancel must not mutate the row, got %q", row.Status)
	}
}

// --- Expiry ---

func TestExpireStale_CancelsOldProposals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := &store.IntentLog{
		ID:             "stale-1",
		IntentID:       "create_brief",
		UserID:         "user-1",
		SpaceID:        "space-1",
		OrganizationID: "org-1",
		Status:         string(governance.StatusProposed),
		RiskLevel:      "medium",
		CreatedAt:      time.Now().UTC().Add(-48 * time.Hour),
	}
	if err := env.db.CreateIntentLog(ctx, old); err != nil {
		t.Fatalf("CreateIntentLog: %v", err)
	}

	n, err := env.service.ExpireStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}

	row, _ := env.db.GetIntentLog(ctx, "stale-1")
	if row.Status != string(governance.StatusCancelled) {
		t.Errorf("expected cancelled, got %q", row.Status)
	}
}
