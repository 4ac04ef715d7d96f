package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/legalops/caseledger/internal/auth"
	"github.com/legalops/caseledger/internal/domain"
	"github.com/legalops/caseledger/internal/repository"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/files/"):
		h.handleDownload(w, r)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
		return
	case r.Method == http.MethodPost:
		h.handleQueue(w, r)
		return
	case r.Method == http.MethodGet:
		h.handleListJobs(w, r)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

type queueExportPayload struct {
	CaseID      string  `json:"caseId"`
	Entity      *string `json:"entity"`
	Format      string  `json:"format"`
	RequestedBy string  `json:"requestedBy"`
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload queueExportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	requestedBy := strings.TrimSpace(payload.RequestedBy)
	if requestedBy == "" {
		if actor, ok := auth.ActorFromContext(r.Context()); ok {
			requestedBy = actor
		}
	}
	req := Request{
		CaseID:      strings.TrimSpace(payload.CaseID),
		Entity:      payload.Entity,
		Format:      domain.AuditExportFormat(strings.ToLower(strings.TrimSpace(payload.Format))),
		RequestedBy: requestedBy,
	}
	job, err := h.service.Queue(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(strings.TrimSuffix(r.URL.Path, "/cancel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, err := h.service.CancelJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrExportJobNotFound) {
			http.Error(w, fmt.Sprintf("job not found: %v", err), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var caseID *string
	if raw := strings.TrimSpace(query.Get("caseId")); raw != "" {
		caseID = &raw
	}
	statuses := parseStatuses(query["status"])
	limit := 20
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be zero or positive", http.StatusBadRequest)
			return
		}
		offset = parsed
	}
	jobs, err := h.service.ListJobs(r.Context(), caseID, statuses, limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("list jobs: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, fmt.Sprintf("job not found: %v", err), http.StatusNotFound)
		return
	}
	file, err := h.service.OpenJobFile(job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer file.Close()

	filename := filepath.Base(strings.TrimSpace(*job.FilePath))
	contentType := "text/csv"
	if job.Format == domain.AuditExportFormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := io.Copy(w, file); err != nil {
		return
	}
}

func parseJobID(path string) (uuid.UUID, error) {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx == -1 || idx == len(trimmed)-1 {
		return uuid.Nil, errors.New("missing export identifier")
	}
	jobID, err := uuid.Parse(trimmed[idx+1:])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid export identifier: %w", err)
	}
	return jobID, nil
}

func parseStatuses(values []string) []domain.AuditExportJobStatus {
	if len(values) == 0 {
		return nil
	}
	result := make([]domain.AuditExportJobStatus, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			switch domain.AuditExportJobStatus(trimmed) {
			case domain.AuditExportJobStatusPending,
				domain.AuditExportJobStatusRunning,
				domain.AuditExportJobStatusCompleted,
				domain.AuditExportJobStatusFailed,
				domain.AuditExportJobStatusCancelled:
				result = append(result, domain.AuditExportJobStatus(trimmed))
			}
		}
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
