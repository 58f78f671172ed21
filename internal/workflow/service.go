// Package workflow implements the sample request lifecycle: doctors submit
// requests, lab technicians turn pending requests into reports, and both
// download the finished report.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/satymtripathi/microbiology/internal/auth"
	"github.com/satymtripathi/microbiology/internal/document"
	"github.com/satymtripathi/microbiology/internal/storage"
	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/monitoring"
	"github.com/satymtripathi/microbiology/pkg/repository"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// adminHistoryLimit caps the full history listing of the admin API
const adminHistoryLimit = 500

// Metrics is the subset of the metrics collector the workflow reports to
type Metrics interface {
	HistoryFailureRecorder
	RecordRequestSubmitted(withImage bool)
	RecordReportCompleted()
	RecordProcessConflict()
	RecordDocumentRendered(image string)
	RecordImageStored(backend string, success bool)
	RecordSystemError(errorType, component string)
}

// Document is a rendered report ready to be sent
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
	Image       document.ImageStatus
}

// Service implements the request workflow
type Service struct {
	requests      repository.RequestRepositoryInterface
	history       repository.HistoryRepositoryInterface
	recorder      *HistoryRecorder
	images        storage.ImageStore
	renderer      *document.Renderer
	metrics       Metrics
	tracing       *monitoring.TracingManager
	logger        *logger.Logger
	maxImageBytes int64
}

// NewService creates a new workflow service
func NewService(
	requests repository.RequestRepositoryInterface,
	history repository.HistoryRepositoryInterface,
	images storage.ImageStore,
	renderer *document.Renderer,
	metrics Metrics,
	tracing *monitoring.TracingManager,
	log *logger.Logger,
	maxImageBytes int64,
) *Service {
	return &Service{
		requests:      requests,
		history:       history,
		recorder:      NewHistoryRecorder(history, metrics, log),
		images:        images,
		renderer:      renderer,
		metrics:       metrics,
		tracing:       tracing,
		logger:        log,
		maxImageBytes: maxImageBytes,
	}
}

// SubmitRequest validates a doctor's submission, stores the optional image
// and creates the request in Pending state
func (s *Service) SubmitRequest(ctx context.Context, caller *types.UserClaims, submission types.RequestSubmission, image *types.ImageUpload) (req *types.Request, err error) {
	if err := auth.Authorize(caller, types.RoleDoctor); err != nil {
		return nil, err
	}

	ctx, span := s.tracing.StartWorkflowSpan(ctx, "submit_request", "")
	defer s.endSpan(span, &err)

	normalized, fieldErrs := NormalizeSubmission(submission)

	contentType := ""
	if image != nil {
		detected, imgErr := storage.ValidateImage(image, s.maxImageBytes)
		if imgErr != nil {
			message := imgErr.Error()
			if pe, ok := types.AsPortalError(imgErr); ok {
				message = pe.Message
			}
			fieldErrs.add("image", message)
		}
		contentType = detected
	}

	if err := fieldErrs.Err(); err != nil {
		return nil, err
	}

	imageKey := ""
	if image != nil {
		imageKey, err = s.images.Save(ctx, image.Filename, contentType, image.Data)
		s.metrics.RecordImageStored(s.images.Backend(), err == nil)
		if err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to store image", err)
		}
	}

	req = &types.Request{
		DoctorID:   caller.UserID,
		DoctorName: caller.FullName,
		CentreName: normalized.CentreName,
		PatientID:  normalized.PatientID,
		Eye:        normalized.Eye,
		Sample:     normalized.Sample,
		Duration:   normalized.Duration,
		OnMeds:     normalized.OnMeds,
		Meds:       normalized.Meds,
		Impression: normalized.Impression,
		Stain:      normalized.Stain,
		ImageKey:   imageKey,
		Status:     types.StatusPending,
	}

	if err := s.requests.Create(ctx, req); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("image_key", imageKey).Error("Failed to create request")
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to create request", err)
	}
	span.SetAttributes(attribute.String("workflow.request_id", req.ID))

	s.recorder.Record(ctx, req.ID, caller.UserID, types.ActionSubmitted, "Submitted by Dr. "+caller.FullName)
	s.metrics.RecordRequestSubmitted(req.HasImage())

	s.logger.Audit(caller.UserID, "submit_request", req.ID, true, map[string]interface{}{
		"patient_id": req.PatientID,
		"with_image": req.HasImage(),
	})
	return req, nil
}

// ListDoctorRequests returns the caller's own requests newest first, each
// with its report and latest history
func (s *Service) ListDoctorRequests(ctx context.Context, caller *types.UserClaims) ([]*types.RequestView, error) {
	if err := auth.Authorize(caller, types.RoleDoctor); err != nil {
		return nil, err
	}

	requests, err := s.requests.ListByDoctor(ctx, caller.UserID)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to list requests", err)
	}
	return s.annotate(ctx, requests, true)
}

// ListPendingQueue returns every pending request oldest first with its
// latest history
func (s *Service) ListPendingQueue(ctx context.Context, caller *types.UserClaims) ([]*types.RequestView, error) {
	if err := auth.Authorize(caller, types.RoleLabTechnician); err != nil {
		return nil, err
	}

	requests, err := s.requests.ListPending(ctx)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to list pending requests", err)
	}
	return s.annotate(ctx, requests, false)
}

// GetPendingRequest returns one request for the processing screen. Anything
// that is not pending is not found.
func (s *Service) GetPendingRequest(ctx context.Context, caller *types.UserClaims, requestID string) (*types.RequestView, error) {
	if err := auth.Authorize(caller, types.RoleLabTechnician); err != nil {
		return nil, err
	}

	req, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	views, err := s.annotate(ctx, []*types.Request{req}, false)
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ProcessRequest stores the lab report for a pending request and marks it
// completed. The status flip and report insert happen in one transaction;
// a request that is not pending, including one completed by a concurrent
// call, is reported as not found.
func (s *Service) ProcessRequest(ctx context.Context, caller *types.UserClaims, requestID string, input types.ReportInput) (report *types.Report, err error) {
	if err := auth.Authorize(caller, types.RoleLabTechnician); err != nil {
		return nil, err
	}

	ctx, span := s.tracing.StartWorkflowSpan(ctx, "process_request", requestID)
	defer s.endSpan(span, &err)

	if _, err := s.pendingRequest(ctx, requestID); err != nil {
		return nil, err
	}

	report, fieldErrs := NormalizeReport(input)
	if err := fieldErrs.Err(); err != nil {
		return nil, err
	}
	report.RequestID = requestID

	if err := s.requests.CompleteWithReport(ctx, report); err != nil {
		if errors.Is(err, repository.ErrNotPending) {
			s.metrics.RecordProcessConflict()
			s.logger.WithContext(ctx).WithField("request_id", requestID).Warn("Request was completed by another caller")
			return nil, notPending()
		}
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to save report", err)
	}

	s.recorder.Record(ctx, requestID, caller.UserID, types.ActionReportCompleted, "Report authored by "+report.AuthBy)
	s.metrics.RecordReportCompleted()

	s.logger.Audit(caller.UserID, "process_request", requestID, true, map[string]interface{}{
		"report_id": report.ID,
		"lab_id":    report.LabID,
	})
	return report, nil
}

// RenderReport produces the PDF of a completed request for its owning
// doctor or any lab technician
func (s *Service) RenderReport(ctx context.Context, caller *types.UserClaims, requestID string) (doc *Document, err error) {
	if err := auth.Authorize(caller, types.RoleDoctor, types.RoleLabTechnician); err != nil {
		return nil, err
	}

	ctx, span := s.tracing.StartWorkflowSpan(ctx, "render_report", requestID)
	defer s.endSpan(span, &err)

	req, err := s.visibleRequest(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}

	report, err := s.requests.GetReport(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, types.NewReportNotReadyError(listViewFor(caller.Role))
		}
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to load report", err)
	}

	var image io.Reader
	if req.HasImage() {
		rc, openErr := s.images.Open(ctx, req.ImageKey)
		if openErr != nil {
			s.logger.WithContext(ctx).WithError(openErr).WithField("image_key", req.ImageKey).
				Warn("Clinical image unavailable, rendering without it")
		} else {
			defer rc.Close()
			image = rc
		}
	}

	var buf bytes.Buffer
	status, err := s.renderer.Render(&buf, req, report, image)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to render report", err)
	}
	s.metrics.RecordDocumentRendered(string(status))
	if status == document.ImageFallback {
		s.logger.WithContext(ctx).WithField("request_id", requestID).Warn("Report rendered with image placeholder")
	}

	return &Document{
		Filename:    document.Filename(req),
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
		Image:       status,
	}, nil
}

// OpenImage returns the stored clinical image of a request. The caller
// closes the reader.
func (s *Service) OpenImage(ctx context.Context, caller *types.UserClaims, requestID string) (io.ReadCloser, error) {
	if err := auth.Authorize(caller, types.RoleDoctor, types.RoleLabTechnician); err != nil {
		return nil, err
	}

	req, err := s.visibleRequest(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	if !req.HasImage() {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "No image was uploaded with this request")
	}

	rc, err := s.images.Open(ctx, req.ImageKey)
	if err != nil {
		if errors.Is(err, storage.ErrImageNotFound) {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, "Image not found")
		}
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to open image", err)
	}
	return rc, nil
}

// ListRequests is the admin listing across all doctors
func (s *Service) ListRequests(ctx context.Context, caller *types.UserClaims, filters *types.RequestFilters) ([]*types.RequestView, error) {
	if err := auth.Authorize(caller, types.RoleAdmin); err != nil {
		return nil, err
	}

	if filters != nil && filters.Status != "" && !lo.Contains([]types.RequestStatus{types.StatusPending, types.StatusCompleted}, filters.Status) {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "Unknown status filter",
			map[string]interface{}{"status": string(filters.Status)})
	}

	requests, err := s.requests.List(ctx, filters)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to list requests", err)
	}
	return s.annotate(ctx, requests, true)
}

// RequestHistory returns the full history of one request, newest first
func (s *Service) RequestHistory(ctx context.Context, caller *types.UserClaims, requestID string) ([]*types.HistoryEntry, error) {
	if err := auth.Authorize(caller, types.RoleAdmin); err != nil {
		return nil, err
	}

	if !storedID(requestID) {
		return nil, requestNotFound()
	}
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, requestNotFound()
		}
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to load request", err)
	}

	entries, err := s.history.ListForRequest(ctx, requestID, adminHistoryLimit)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to load history", err)
	}
	return entries, nil
}

// annotate attaches history, and reports when withReports is set, using one
// query per relation
func (s *Service) annotate(ctx context.Context, requests []*types.Request, withReports bool) ([]*types.RequestView, error) {
	ids := lo.Map(requests, func(r *types.Request, _ int) string { return r.ID })

	history, err := s.history.ListForRequests(ctx, ids, types.HistoryLimit)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to load history", err)
	}

	reports := map[string]*types.Report{}
	if withReports {
		reports, err = s.requests.GetReports(ctx, ids)
		if err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to load reports", err)
		}
	}

	return lo.Map(requests, func(r *types.Request, _ int) *types.RequestView {
		entries := history[r.ID]
		if entries == nil {
			entries = []*types.HistoryEntry{}
		}
		return &types.RequestView{Request: r, Report: reports[r.ID], History: entries}
	}), nil
}

func (s *Service) pendingRequest(ctx context.Context, requestID string) (*types.Request, error) {
	if !storedID(requestID) {
		return nil, notPending()
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notPending()
		}
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to load request", err)
	}
	if req.Status != types.StatusPending {
		return nil, notPending()
	}
	return req, nil
}

// visibleRequest loads a request the caller may see. Doctors only see their
// own; someone else's request looks the same as a missing one.
func (s *Service) visibleRequest(ctx context.Context, caller *types.UserClaims, requestID string) (*types.Request, error) {
	if !storedID(requestID) {
		return nil, requestNotFound()
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, requestNotFound()
		}
		return nil, types.NewInternalError(types.ErrCodeInternalError, "Failed to load request", err)
	}
	if caller.Role == types.RoleDoctor && req.DoctorID != caller.UserID {
		s.logger.Security("foreign_request_access", caller.UserID, map[string]interface{}{"request_id": requestID})
		return nil, requestNotFound()
	}
	return req, nil
}

// storedID reports whether id is in the hyphenated UUID form the requests
// table keys on. Anything else cannot name a request.
func storedID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// endSpan closes a workflow span. Only server-side failures mark the span
// and count as system errors.
func (s *Service) endSpan(span trace.Span, err *error) {
	if *err != nil && types.StatusCode(*err) >= 500 {
		s.tracing.RecordError(span, *err)
		code := types.ErrCodeInternalError
		if pe, ok := types.AsPortalError(*err); ok {
			code = pe.Code
		}
		s.metrics.RecordSystemError(code, "workflow")
	}
	span.End()
}

func listViewFor(role types.UserRole) string {
	if role == types.RoleDoctor {
		return "/doctor/reports"
	}
	return types.RoleLabTechnician.LandingPath()
}

func notPending() error {
	return types.NewNotFoundError(types.ErrCodeRequestNotPending, "Request not found or already processed")
}

func requestNotFound() error {
	return types.NewNotFoundError(types.ErrCodeNotFound, "Request not found")
}
