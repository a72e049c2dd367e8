// Package audit records administrative and provisioning actions. Audit is
// strictly best-effort: a failed write is logged and swallowed so it can
// never fail the operation being audited.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// Recorder writes append-only audit entries.
type Recorder struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(repo repositories.AuditRepository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger.Named("audit")}
}

// Record writes one entry. details is serialized as JSON; a nil map is
// stored as "{}". Errors are logged, never returned.
func (r *Recorder) Record(ctx context.Context, projectID, userID *uuid.UUID, action string, details map[string]any) {
	payload := "{}"
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			payload = string(raw)
		}
	}

	entry := &db.AuditEntry{
		ProjectID: projectID,
		UserID:    userID,
		Action:    action,
		Details:   payload,
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Warn("audit write failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
