package governance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ChristianGroove/agency-manager-sub002/common/trace"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/intent"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/store"
)

// DefaultProposalTTL is how long a proposal may sit unconfirmed before the
// expiry sweep cancels it.
const DefaultProposalTTL = 24 * time.Hour

// Service creates intent proposals. Every call writes exactly one audit row;
// idempotency is the Executor's concern, so re-proposing the same logical
// action intentionally produces a new row.
type Service struct {
	intents *intent.Registry
	db      *store.Store
	logger  *slog.Logger
}

// NewService builds a proposal service over the intent registry and the
// elevated store handle.
func NewService(intents *intent.Registry, db *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{intents: intents, db: db, logger: logger}
}

// ProposeIntent validates the intent against the caller and records the
// proposal. Validation failures still produce a rejected audit row so the
// refusal itself is on the record. Low-risk intents that need no
// confirmation start life confirmed and can be executed directly.
func (s *Service) ProposeIntent(ctx context.Context, intentID string, params map[string]string, caller identity.Context) (*Proposal, error) {
	ctx, traceID := trace.Ensure(ctx)
	logID := uuid.NewString()

	def, _ := s.intents.Get(intentID)
	result := s.intents.Validate(intentID, caller)

	status := StatusProposed
	var riskLevel intent.RiskLevel
	var requiresConfirmation bool
	if def != nil {
		riskLevel = def.Risk
		requiresConfirmation = def.RequiresConfirmation
	}

	message := ""
	if !result.Valid {
		status = StatusRejected
		message = result.Reason
	} else if def.Risk == intent.RiskLow && !def.RequiresConfirmation {
		status = StatusConfirmed
	}

	row := &store.IntentLog{
		ID:             logID,
		IntentID:       intentID,
		UserID:         caller.UserID,
		SpaceID:        caller.SpaceID,
		OrganizationID: caller.TenantID,
		Status:         string(status),
		Payload:        params,
		RiskLevel:      string(riskLevel),
		CreatedAt:      time.Now().UTC(),
	}
	if !result.Valid {
		row.Metadata = map[string]any{"rejection_reason": result.Reason}
	}
	if err := s.db.CreateIntentLog(ctx, row); err != nil {
		return nil, fmt.Errorf("propose intent %s: %w", intentID, err)
	}

	auditResult := "proposed"
	if status == StatusRejected {
		auditResult = "rejected"
	}
	if err := s.db.WriteAudit(ctx, traceID, caller.UserID, caller.SpaceID,
		"intent.propose", intentID, auditResult,
		store.AuditPayload{"log_id": logID, "status": string(status), "risk_level": string(riskLevel)},
		message,
	); err != nil {
		s.logger.Warn("audit write failed", "trace_id", traceID, "log_id", logID, "error", err)
	}

	s.logger.Info("intent proposed",
		"trace_id", traceID,
		"log_id", logID,
		"intent", intentID,
		"space_id", caller.SpaceID,
		"status", status,
	)

	return &Proposal{
		LogID:                logID,
		Status:               status,
		RiskLevel:            riskLevel,
		RequiresConfirmation: requiresConfirmation,
		Message:              message,
	}, nil
}

// ExpireStale cancels proposals that sat unconfirmed longer than ttl.
// Intended to run periodically from the daemon.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = DefaultProposalTTL
	}
	cutoff := time.Now().UTC().Add(-ttl)
	n, err := s.db.ExpireStaleProposals(ctx, string(StatusProposed), string(StatusCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire stale proposals: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired stale proposals", "count", n, "ttl", ttl)
	}
	return n, nil
}
