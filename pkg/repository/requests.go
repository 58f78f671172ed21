package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// likeEscaper makes search text match literally inside an ILIKE pattern
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// RequestRepository stores sample requests and their reports in Postgres
type RequestRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, log *logger.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: log,
	}
}

const requestSelect = `
		SELECT r.id, r.doctor_id, COALESCE(d.full_name, ''), r.centre_name, r.patient_id, r.eye,
			   r.sample, r.duration, r.on_meds, r.meds, r.impression, r.stain, r.image_key,
			   r.status, r.created_at
		FROM requests r
		LEFT JOIN users d ON d.id = r.doctor_id`

const reportColumns = `id, request_id, rc_code, lab_id, quality, sample_suitability, suitability_reason, report_text, comments, auth_by, created_at`

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, req *types.Request) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO requests (
			id, doctor_id, centre_name, patient_id, eye, sample, duration,
			on_meds, meds, impression, stain, image_key, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.DoctorID,
		req.CentreName,
		req.PatientID,
		req.Eye,
		req.Sample,
		req.Duration,
		req.OnMeds,
		req.Meds,
		req.Impression,
		req.Stain,
		req.ImageKey,
		req.Status,
		req.CreatedAt,
	)
	r.logger.DatabaseOperation(ctx, "insert", "requests", time.Since(start).Milliseconds(), 1, err == nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*types.Request, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, requestSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// ListByDoctor returns the doctor's requests, newest first
func (r *RequestRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*types.Request, error) {
	return r.list(ctx, requestSelect+` WHERE r.doctor_id = $1 ORDER BY r.created_at DESC, r.id DESC`, doctorID)
}

// ListPending returns the pending queue, oldest first
func (r *RequestRepository) ListPending(ctx context.Context) ([]*types.Request, error) {
	return r.list(ctx, requestSelect+` WHERE r.status = $1 ORDER BY r.created_at ASC, r.id ASC`, types.StatusPending)
}

// List returns requests matching the admin filters, newest first
func (r *RequestRepository) List(ctx context.Context, filters *types.RequestFilters) ([]*types.Request, error) {
	query := requestSelect + ` WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filters == nil {
		filters = &types.RequestFilters{}
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND r.status = $%d", argIndex)
		args = append(args, filters.Status)
		argIndex++
	}

	if filters.CentreName != "" {
		query += fmt.Sprintf(" AND r.centre_name = $%d", argIndex)
		args = append(args, filters.CentreName)
		argIndex++
	}

	if filters.Search != "" {
		query += fmt.Sprintf(` AND (r.patient_id ILIKE $%d ESCAPE '\' OR d.full_name ILIKE $%d ESCAPE '\')`, argIndex, argIndex)
		args = append(args, "%"+likeEscaper.Replace(filters.Search)+"%")
		argIndex++
	}

	query += " ORDER BY r.created_at DESC, r.id DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filters.Limit)
		argIndex++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filters.Offset)
	}

	return r.list(ctx, query, args...)
}

func (r *RequestRepository) list(ctx context.Context, query string, args ...interface{}) ([]*types.Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := []*types.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return requests, nil
}

// CompleteWithReport flips the request from Pending to Completed and inserts
// the report in one transaction. The status check is part of the UPDATE, so
// of two concurrent calls only one sees a row change.
func (r *RequestRepository) CompleteWithReport(ctx context.Context, report *types.Report) (err error) {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	defer func() {
		r.logger.DatabaseOperation(ctx, "complete", "requests", time.Since(start).Milliseconds(), 1, err == nil,
			map[string]interface{}{"request_id": report.RequestID})
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE requests SET status = $1 WHERE id = $2 AND status = $3`,
		types.StatusCompleted, report.RequestID, types.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotPending
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		report.ID,
		report.RequestID,
		report.RCCode,
		report.LabID,
		report.Quality,
		report.SampleSuitability,
		report.SuitabilityReason,
		report.ReportText,
		report.Comments,
		report.AuthBy,
		report.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNotPending
		}
		return fmt.Errorf("failed to create report: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// GetReport returns the report of a request, ErrNotFound when there is none
func (r *RequestRepository) GetReport(ctx context.Context, requestID string) (*types.Report, error) {
	report, err := scanReport(r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE request_id = $1`, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// GetReports returns the reports of the given requests keyed by request ID.
// Requests without a report are absent from the map.
func (r *RequestRepository) GetReports(ctx context.Context, requestIDs []string) (map[string]*types.Report, error) {
	reports := make(map[string]*types.Report, len(requestIDs))
	if len(requestIDs) == 0 {
		return reports, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE request_id = ANY($1)`, pq.Array(requestIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports[report.RequestID] = report
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

func scanRequest(row rowScanner) (*types.Request, error) {
	req := &types.Request{}
	err := row.Scan(
		&req.ID,
		&req.DoctorID,
		&req.DoctorName,
		&req.CentreName,
		&req.PatientID,
		&req.Eye,
		&req.Sample,
		&req.Duration,
		&req.OnMeds,
		&req.Meds,
		&req.Impression,
		&req.Stain,
		&req.ImageKey,
		&req.Status,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func scanReport(row rowScanner) (*types.Report, error) {
	report := &types.Report{}
	err := row.Scan(
		&report.ID,
		&report.RequestID,
		&report.RCCode,
		&report.LabID,
		&report.Quality,
		&report.SampleSuitability,
		&report.SuitabilityReason,
		&report.ReportText,
		&report.Comments,
		&report.AuthBy,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return report, nil
}
