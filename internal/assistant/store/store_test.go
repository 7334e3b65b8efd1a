package store_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/store"
)

// newTestStore opens a temporary SQLite database with migrations applied.
// The DB is closed when the test ends.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "assistant-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newIntentRow(intentID, userID, spaceID, status string) *store.IntentLog {
	return &store.IntentLog{
		ID:             uuid.NewString(),
		IntentID:       intentID,
		UserID:         userID,
		SpaceID:        spaceID,
		OrganizationID: "org-1",
		Status:         status,
		Payload:        map[string]string{"client_id": "acme"},
		RiskLevel:      "medium",
		CreatedAt:      time.Now().UTC(),
	}
}

// --- Intent log ---

func TestIntentLog_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := newIntentRow("create_brief", "user-1", "space-1", "proposed")
	if err := s.CreateIntentLog(ctx, row); err != nil {
		t.Fatalf("CreateIntentLog: %v", err)
	}

	got, err := s.GetIntentLog(ctx, row.ID)
	if err != nil {
		t.Fatalf("GetIntentLog: %v", err)
	}
	if got.IntentID != "create_brief" {
		t.Errorf("expected intent create_brief, got %q", got.IntentID)
	}
	if got.Status != "proposed" {
		t.Errorf("expected status proposed, got %q", got.Status)
	}
	if got.Payload["client_id"] != "acme" {
		t.Errorf("payload not round-tripped: %#v", got.Payload)
	}
	if got.UpdatedAt != nil {
		t.Error("fresh row should have no updated_at")
	}
}

func TestIntentLog_GetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetIntentLog(context.Background(), "nonexistent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIntentLog_TransitionStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := newIntentRow("create_brief", "user-1", "space-1", "proposed")
	if err := s.CreateIntentLog(ctx, row); err != nil {
		t.Fatalf("CreateIntentLog: %v", err)
	}

	ok, err := s.TransitionIntentStatus(ctx, row.ID, "proposed", "confirmed", map[string]any{"confirmed_by": "user-1"})
	if err != nil {
		t.Fatalf("TransitionIntentStatus: %v", err)
	}
	if !ok {
		t.Fatal("expected transition to apply")
	}

	got, err := s.GetIntentLog(ctx, row.ID)
	if err != nil {
		t.Fatalf("GetIntentLog: %v", err)
	}
	if got.Status != "confirmed" {
		t.Errorf("expected status confirmed, got %q", got.Status)
	}
	if got.Metadata["confirmed_by"] != "user-1" {
		t.Errorf("metadata not stored: %#v", got.Metadata)
	}
	if got.UpdatedAt == nil {
		t.Error("expected updated_at to be stamped")
	}
}

func TestIntentLog_TransitionRequiresCurrentStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := newIntentRow("create_brief", "user-1", "space-1", "proposed")
	if err := s.CreateIntentLog(ctx, row); err != nil {
		t.Fatalf("CreateIntentLog: %v", err)
	}

	// Wrong fromStatus must not touch the row.
	ok, err := s.TransitionIntentStatus(ctx, row.ID, "confirmed", "executed", nil)
	if err != nil {
		t.Fatalf("TransitionIntentStatus: %v", err)
	}
	if ok {
		t.Fatal("transition from wrong status must not apply")
	}

	got, _ := s.GetIntentLog(ctx, row.ID)
	if got.Status != "proposed" {
		t.Errorf("row mutated despite failed precondition: %q", got.Status)
	}
}

func TestIntentLog_TransitionAppliesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := newIntentRow("pause_automation", "user-1", "space-1", "confirmed")
	if err := s.CreateIntentLog(ctx, row); err != nil {
		t.Fatalf("CreateIntentLog: %v", err)
	}

	first, err := s.TransitionIntentStatus(ctx, row.ID, "confirmed", "executed", nil)
	if err != nil {
		t.Fatalf("first transition: %v", err)
	}
	second, err := s.TransitionIntentStatus(ctx, row.ID, "confirmed", "executed", nil)
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if !first || second {
		t.Errorf("expected exactly one winner, got first=%v second=%v", first, second)
	}
}

func TestIntentLog_ExpireStaleProposals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := newIntentRow("create_brief", "user-1", "space-1", "proposed")
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	fresh := newIntentRow("create_quote", "user-1", "space-1", "proposed")
	executed := newIntentRow("send_reminder", "user-1", "space-1", "executed")
	executed.CreatedAt = old.CreatedAt
	for _, row := range []*store.IntentLog{old, fresh, executed} {
		if err := s.CreateIntentLog(ctx, row); err != nil {
			t.Fatalf("CreateIntentLog: %v", err)
		}
	}

	n, err := s.ExpireStaleProposals(ctx, "proposed", "cancelled", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ExpireStaleProposals: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired row, got %d", n)
	}

	got, _ := s.GetIntentLog(ctx, old.ID)
	if got.Status != "cancelled" {
		t.Errorf("old proposal should be cancelled, got %q", got.Status)
	}
	got, _ = s.GetIntentLog(ctx, fresh.ID)
	if got.Status != "proposed" {
		t.Errorf("fresh proposal should be untouched, got %q", got.Status)
	}
	got, _ = s.GetIntentLog(ctx, executed.ID)
	if got.Status != "executed" {
		t.Errorf("executed row should be untouched, got %q", got.Status)
	}
}

// --- Audit log ---

func TestAudit_WriteAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WriteAudit(ctx, "tr_abc", "user-1", "space-1", "intent.execute", "create_brief", "success",
		store.AuditPayload{"log_id": "il-1"}, "")
	if err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	err = s.WriteAudit(ctx, "tr_abc", "user-1", "space-1", "intent.execute", "create_brief", "failure",
		nil, "boom")
	if err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}

	entries, err := s.GetAuditLog(ctx, 10)
	if err != nil {
		t.Fatalf("GetAuditLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	byTrace, err := s.GetAuditByTrace(ctx, "tr_abc")
	if err != nil {
		t.Fatalf("GetAuditByTrace: %v", err)
	}
	if len(byTrace) != 2 {
		t.Fatalf("expected 2 entries for trace, got %d", len(byTrace))
	}
	// Oldest first per trace.
	if byTrace[0].Result != "success" || byTrace[1].Result != "failure" {
		t.Errorf("trace entries out of order: %q then %q", byTrace[0].Result, byTrace[1].Result)
	}
	if !byTrace[1].ErrorMessage.Valid || byTrace[1].ErrorMessage.String != "boom" {
		t.Errorf("error message not stored: %#v", byTrace[1].ErrorMessage)
	}
	if byTrace[0].ErrorMessage.Valid {
		t.Error("success entry should have NULL error message")
	}
}

// --- Settings ---

func TestSettings_SetGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "model:space-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetSetting(ctx, "model:space-1", "gpt-4o-mini"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	v, err := s.GetSetting(ctx, "model:space-1")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %q", v)
	}

	// Overwrite.
	if err := s.SetSetting(ctx, "model:space-1", "gpt-4o"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	v, _ = s.GetSetting(ctx, "model:space-1")
	if v != "gpt-4o" {
		t.Errorf("expected gpt-4o after overwrite, got %q", v)
	}

	if err := s.DeleteSetting(ctx, "model:space-1"); err != nil {
		t.Fatalf("DeleteSetting: %v", err)
	}
	if _, err := s.GetSetting(ctx, "model:space-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSettings_KillSwitch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	disabled, err := s.IsChannelDisabled(ctx, "space-1", "text")
	if err != nil {
		t.Fatalf("IsChannelDisabled: %v", err)
	}
	if disabled {
		t.Fatal("channel should start enabled")
	}

	if err := s.SetKillSwitch(ctx, "space-1", "text", true); err != nil {
		t.Fatalf("SetKillSwitch: %v", err)
	}
	disabled, _ = s.IsChannelDisabled(ctx, "space-1", "text")
	if !disabled {
		t.Fatal("text channel should be disabled")
	}

	// Channels toggle independently.
	if disabled, _ := s.IsChannelDisabled(ctx, "space-1", "voice"); disabled {
		t.Error("voice channel should remain enabled")
	}
	if disabled, _ := s.IsChannelDisabled(ctx, "space-2", "text"); disabled {
		t.Error("other spaces should remain enabled")
	}

	if err := s.SetKillSwitch(ctx, "space-1", "text", false); err != nil {
		t.Fatalf("SetKillSwitch re-enable: %v", err)
	}
	if disabled, _ := s.IsChannelDisabled(ctx, "space-1", "text"); disabled {
		t.Error("channel should be re-enabled")
	}
}
