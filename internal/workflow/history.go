package workflow

import (
	"context"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/repository"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// HistoryFailureRecorder counts history appends that did not make it
type HistoryFailureRecorder interface {
	RecordHistoryFailure(action string)
}

// HistoryRecorder appends request history entries. Record never reports an
// error: a failed append is logged and counted and the caller carries on.
type HistoryRecorder struct {
	repo    repository.HistoryRepositoryInterface
	metrics HistoryFailureRecorder
	logger  *logger.Logger
}

// NewHistoryRecorder creates a history recorder
func NewHistoryRecorder(repo repository.HistoryRepositoryInterface, metrics HistoryFailureRecorder, log *logger.Logger) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, metrics: metrics, logger: log}
}

// Record appends one entry, fire-and-forget
func (h *HistoryRecorder) Record(ctx context.Context, requestID, userID, action, note string) {
	entry := &types.HistoryEntry{
		RequestID: requestID,
		UserID:    userID,
		Action:    action,
		Note:      note,
	}

	// The primary change has already committed; write the entry even if the
	// caller has gone away.
	if err := h.repo.Append(context.WithoutCancel(ctx), entry); err != nil {
		h.metrics.RecordHistoryFailure(action)
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"request_id": requestID,
			"action":     action,
		}).Warn("Failed to append request history")
	}
}
