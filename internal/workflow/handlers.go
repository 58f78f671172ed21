package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/satymtripathi/microbiology/internal/auth"
	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/types"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200

	// multipartOverhead is room for the text fields next to the image
	multipartOverhead = 1 << 20
)

// WorkflowService is what the HTTP layer needs from the workflow
type WorkflowService interface {
	SubmitRequest(ctx context.Context, caller *types.UserClaims, submission types.RequestSubmission, image *types.ImageUpload) (*types.Request, error)
	ListDoctorRequests(ctx context.Context, caller *types.UserClaims) ([]*types.RequestView, error)
	ListPendingQueue(ctx context.Context, caller *types.UserClaims) ([]*types.RequestView, error)
	GetPendingRequest(ctx context.Context, caller *types.UserClaims, requestID string) (*types.RequestView, error)
	ProcessRequest(ctx context.Context, caller *types.UserClaims, requestID string, input types.ReportInput) (*types.Report, error)
	RenderReport(ctx context.Context, caller *types.UserClaims, requestID string) (*Document, error)
	OpenImage(ctx context.Context, caller *types.UserClaims, requestID string) (io.ReadCloser, error)
	ListRequests(ctx context.Context, caller *types.UserClaims, filters *types.RequestFilters) ([]*types.RequestView, error)
	RequestHistory(ctx context.Context, caller *types.UserClaims, requestID string) ([]*types.HistoryEntry, error)
}

// Handlers serves the request workflow over HTTP
type Handlers struct {
	service       WorkflowService
	maxImageBytes int64
	logger        *logger.Logger
}

// NewHandlers creates the workflow HTTP handlers
func NewHandlers(service WorkflowService, maxImageBytes int64, log *logger.Logger) *Handlers {
	return &Handlers{service: service, maxImageBytes: maxImageBytes, logger: log}
}

// RegisterRoutes mounts the workflow on an authenticated /api/v1 subrouter
func (h *Handlers) RegisterRoutes(api *mux.Router) {
	api.HandleFunc("/requests", h.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/report.pdf", h.handleReportPDF).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/image", h.handleImage).Methods(http.MethodGet)

	api.HandleFunc("/doctor/requests", h.handleDoctorRequests).Methods(http.MethodGet)

	api.HandleFunc("/lab/queue", h.handleLabQueue).Methods(http.MethodGet)
	api.HandleFunc("/lab/requests/{id}", h.handlePendingRequest).Methods(http.MethodGet)
	api.HandleFunc("/lab/requests/{id}/report", h.handleProcess).Methods(http.MethodPost)

	api.HandleFunc("/admin/requests", h.handleAdminRequests).Methods(http.MethodGet)
	api.HandleFunc("/admin/requests/{id}/history", h.handleAdminHistory).Methods(http.MethodGet)
}

func (h *Handlers) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(auth.ClaimsFromContext(r.Context()), types.RoleDoctor); err != nil {
		h.fail(w, r, err)
		return
	}

	submission, image, err := h.readSubmission(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	req, err := h.service.SubmitRequest(r.Context(), auth.ClaimsFromContext(r.Context()), submission, image)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Request submitted successfully!",
		"request": req,
	})
}

func (h *Handlers) handleDoctorRequests(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListDoctorRequests(r.Context(), auth.ClaimsFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": views, "count": len(views)})
}

func (h *Handlers) handleLabQueue(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListPendingQueue(r.Context(), auth.ClaimsFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": views, "count": len(views)})
}

func (h *Handlers) handlePendingRequest(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetPendingRequest(r.Context(), auth.ClaimsFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) handleProcess(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(auth.ClaimsFromContext(r.Context()), types.RoleLabTechnician); err != nil {
		h.fail(w, r, err)
		return
	}

	input, err := readReportInput(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	requestID := mux.Vars(r)["id"]
	report, err := h.service.ProcessRequest(r.Context(), auth.ClaimsFromContext(r.Context()), requestID, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Report completed",
		"report":  report,
	})
}

func (h *Handlers) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.RenderReport(r.Context(), auth.ClaimsFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Data)
}

func (h *Handlers) handleImage(w http.ResponseWriter, r *http.Request) {
	rc, err := h.service.OpenImage(r.Context(), auth.ClaimsFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		h.fail(w, r, types.NewInternalError(types.ErrCodeInternalError, "Failed to read image", err))
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handlers) handleAdminRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := &types.RequestFilters{
		Status:     types.RequestStatus(query.Get("status")),
		CentreName: strings.TrimSpace(query.Get("centre")),
		Search:     strings.TrimSpace(query.Get("q")),
		Limit:      defaultPageSize,
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.fail(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "Invalid limit", map[string]interface{}{"limit": raw}))
			return
		}
		filters.Limit = min(limit, maxPageSize)
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			h.fail(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "Invalid offset", map[string]interface{}{"offset": raw}))
			return
		}
		filters.Offset = offset
	}

	views, err := h.service.ListRequests(r.Context(), auth.ClaimsFromContext(r.Context()), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": views,
		"count":    len(views),
		"limit":    filters.Limit,
		"offset":   filters.Offset,
	})
}

func (h *Handlers) handleAdminHistory(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]
	entries, err := h.service.RequestHistory(r.Context(), auth.ClaimsFromContext(r.Context()), requestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"request_id": requestID, "history": entries})
}

// readSubmission accepts the doctor form as multipart (with the optional
// image field), urlencoded, or JSON without an image
func (h *Handlers) readSubmission(w http.ResponseWriter, r *http.Request) (types.RequestSubmission, *types.ImageUpload, error) {
	var submission types.RequestSubmission

	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			return submission, nil, types.NewValidationError(types.ErrCodeInvalidInput, "Invalid request format", nil)
		}
		return submission, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return submission, nil, tooLargeOr(err, "Invalid form data")
		}
		if err := r.ParseForm(); err != nil {
			return submission, nil, tooLargeOr(err, "Invalid form data")
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	submission = types.RequestSubmission{
		CentreName:    r.FormValue("centre_name"),
		PatientID:     r.FormValue("patient_id"),
		Eye:           r.FormValue("eye"),
		Sample:        r.FormValue("sample"),
		SampleOther:   r.FormValue("sample_other"),
		DurationValue: r.FormValue("duration_value"),
		DurationUnit:  r.FormValue("duration_unit"),
		OnMeds:        checkbox(r.FormValue("on_meds")),
		Meds:          r.Form["meds"],
		MedsOther:     r.FormValue("meds_other"),
		Impression:    r.FormValue("impression"),
		Stain:         r.Form["stain"],
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return submission, nil, nil
		}
		return submission, nil, types.NewValidationError(types.ErrCodeImageRejected, "Could not read the uploaded image", nil)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return submission, nil, types.NewValidationError(types.ErrCodeImageRejected, "Could not read the uploaded image", nil)
	}

	return submission, &types.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readReportInput(r *http.Request) (types.ReportInput, error) {
	var input types.ReportInput

	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return input, types.NewValidationError(types.ErrCodeInvalidInput, "Invalid request format", nil)
		}
		return input, nil
	}

	if err := r.ParseForm(); err != nil {
		return input, types.NewValidationError(types.ErrCodeInvalidInput, "Invalid form data", nil)
	}
	return types.ReportInput{
		RCCode:            r.PostFormValue("rc_code"),
		LabID:             r.PostFormValue("lab_id"),
		Quality:           r.PostFormValue("quality"),
		SampleSuitability: checkbox(r.PostFormValue("sample_suitability")),
		SuitabilityReason: r.PostFormValue("suitability_reason"),
		ReportText:        r.PostFormValue("report_text"),
		Comments:          r.PostFormValue("comments"),
		AuthBy:            r.PostFormValue("auth_by"),
	}, nil
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := types.StatusCode(err)
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.WithContext(r.Context()).WithError(err).Error("Request failed")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		userID := ""
		if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
			userID = claims.UserID
		}
		h.logger.Security("access_denied", userID, map[string]interface{}{
			"path":   r.URL.Path,
			"method": r.Method,
		})
	}
	writeError(w, err)
}

func isJSON(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/json"
}

// checkbox reads an HTML checkbox or boolean form value
func checkbox(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "yes":
		return true
	}
	b, _ := strconv.ParseBool(value)
	return b
}

func tooLargeOr(err error, message string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return types.NewValidationError(types.ErrCodeImageRejected,
			fmt.Sprintf("Upload exceeds the %d byte limit", maxErr.Limit), nil)
	}
	return types.NewValidationError(types.ErrCodeInvalidInput, message, nil)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, types.StatusCode(err), types.PublicError(err))
}
