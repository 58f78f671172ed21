package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// HistoryRepository is the append-only request_history ledger. It exposes no
// update or delete.
type HistoryRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, log *logger.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: log,
	}
}

// Append writes one history entry
func (r *HistoryRepository) Append(ctx context.Context, entry *types.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO request_history (id, request_id, user_id, action, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID,
		entry.RequestID,
		nullIfEmpty(entry.UserID),
		entry.Action,
		entry.Note,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// ListForRequest returns up to limit entries of one request, newest first
func (r *HistoryRepository) ListForRequest(ctx context.Context, requestID string, limit int) ([]*types.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT h.id, h.request_id, COALESCE(h.user_id::text, ''), COALESCE(u.full_name, ''),
			   h.action, h.note, h.created_at
		FROM request_history h
		LEFT JOIN users u ON u.id = h.user_id
		WHERE h.request_id = $1
		ORDER BY h.created_at DESC, h.id DESC
		LIMIT $2`, requestID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// ListForRequests returns, for every given request, up to limit entries
// newest first. Requests without history are absent from the map.
func (r *HistoryRepository) ListForRequests(ctx context.Context, requestIDs []string, limit int) (map[string][]*types.HistoryEntry, error) {
	if len(requestIDs) == 0 {
		return map[string][]*types.HistoryEntry{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, user_id, user_name, action, note, created_at
		FROM (
			SELECT h.id, h.request_id, COALESCE(h.user_id::text, '') AS user_id,
				   COALESCE(u.full_name, '') AS user_name, h.action, h.note, h.created_at,
				   ROW_NUMBER() OVER (PARTITION BY h.request_id ORDER BY h.created_at DESC, h.id DESC) AS rn
			FROM request_history h
			LEFT JOIN users u ON u.id = h.user_id
			WHERE h.request_id = ANY($1)
		) ranked
		WHERE rn <= $2
		ORDER BY request_id, created_at DESC, id DESC`, pq.Array(requestIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries, err := scanHistory(rows)
	if err != nil {
		return nil, err
	}

	return lo.GroupBy(entries, func(e *types.HistoryEntry) string {
		return e.RequestID
	}), nil
}

func scanHistory(rows *sql.Rows) ([]*types.HistoryEntry, error) {
	entries := []*types.HistoryEntry{}
	for rows.Next() {
		entry := &types.HistoryEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.UserID,
			&entry.UserName,
			&entry.Action,
			&entry.Note,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}
