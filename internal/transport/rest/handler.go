package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ahrav/go-affinity/infrastructure/export"
	"github.com/ahrav/go-affinity/infrastructure/units"
	"github.com/ahrav/go-affinity/internal/application"
	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

// AffinityService is the subset of application.AffinityService the
// handlers use.
type AffinityService interface {
	ComputeAffinity(ctx context.Context, formID string) (*domain.AffinityResult, error)
	ActiveResult(ctx context.Context, formID string) (domain.AffinityResult, error)
	ActiveGroup(ctx context.Context, formID, profileID string) (domain.AffinityGroup, error)
	ExportResult(ctx context.Context, result domain.AffinityResult, w io.Writer, format string) error
}

var _ AffinityService = (*application.AffinityService)(nil)

// AffinityHandler handles affinity endpoints.
type AffinityHandler struct {
	svc AffinityService
}

// NewAffinityHandler creates a new affinity handler.
func NewAffinityHandler(svc AffinityService) *AffinityHandler {
	return &AffinityHandler{svc: svc}
}

// Compute handles POST /v1/forms/{formID}/affinity.
func (h *AffinityHandler) Compute(w http.ResponseWriter, r *http.Request) {
	formID := mux.Vars(r)["formID"]

	result, err := h.svc.ComputeAffinity(r.Context(), formID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeResult(w, r, *result, export.FormatJSON)
}

// Active handles GET /v1/forms/{formID}/affinity.
func (h *AffinityHandler) Active(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ActiveResult(r.Context(), mux.Vars(r)["formID"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeResult(w, r, result, export.FormatJSON)
}

// Export handles GET /v1/forms/{formID}/affinity/export?format=json|yaml.
func (h *AffinityHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatJSON
	}

	result, err := h.svc.ActiveResult(r.Context(), mux.Vars(r)["formID"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeResult(w, r, result, format)
}

// Group handles GET /v1/forms/{formID}/respondents/{profileID}/group.
func (h *AffinityHandler) Group(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	group, err := h.svc.ActiveGroup(r.Context(), vars["formID"], vars["profileID"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// writeResult buffers the export so a failure still produces a clean
// error response.
func (h *AffinityHandler) writeResult(w http.ResponseWriter, r *http.Request, result domain.AffinityResult, format string) {
	var buf bytes.Buffer
	if err := h.svc.ExportResult(r.Context(), result, &buf, format); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func contentType(format string) string {
	if format == export.FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrFormNotFound),
		errors.Is(err, application.ErrNoActiveResult),
		errors.Is(err, application.ErrNotRespondent):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoAnswers), errors.Is(err, units.ErrTooManyRespondents):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrScoringTypeMismatch), errors.Is(err, domain.ErrInvalidAnswer):
		return http.StatusConflict
	case errors.Is(err, ports.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrInvalidThreshold),
		errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
