package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/legalops/caseledger/internal/auth"
	"github.com/legalops/caseledger/internal/domain"
)

// Handler exposes the version ledger as a REST endpoint, mounted at /api/versions/.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the ledger service with its HTTP surface.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path)

	switch {
	case r.Method == http.MethodPost && len(segments) == 0:
		h.handleRecord(w, r)
	case r.Method == http.MethodPost && len(segments) == 2 && segments[1] == "restore":
		h.handleRestore(w, r, segments[0])
	case r.Method == http.MethodGet && len(segments) == 1:
		h.handleList(w, r, segments[0])
	case r.Method == http.MethodGet && len(segments) == 2 && segments[1] == "latest":
		h.handleLatest(w, r, segments[0])
	case r.Method == http.MethodGet && len(segments) == 2 && segments[1] == "stats":
		h.handleStats(w, r, segments[0])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// pathSegments strips the mount prefix and splits the remainder.
func pathSegments(path string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/api/versions"), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

type recordVersionPayload struct {
	CaseID     string         `json:"caseId"`
	Entity     string         `json:"entity"`
	FieldName  *string        `json:"fieldName"`
	DataBefore map[string]any `json:"dataBefore"`
	DataAfter  map[string]any `json:"dataAfter"`
	Actor      string         `json:"actor"`
	Reason     *string        `json:"reason"`
}

type restorePayload struct {
	Actor  string  `json:"actor"`
	Reason *string `json:"reason"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload recordVersionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	versionID, err := h.service.RecordVersion(r.Context(), domain.NewVersionInput{
		CaseID:     payload.CaseID,
		Entity:     payload.Entity,
		FieldName:  payload.FieldName,
		DataBefore: payload.DataBefore,
		DataAfter:  payload.DataAfter,
		Actor:      resolveActor(r, payload.Actor),
		Reason:     payload.Reason,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"versionId": versionID})
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request, rawVersionID string) {
	defer r.Body.Close()
	versionID, err := uuid.Parse(rawVersionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid version id: %v", err), http.StatusBadRequest)
		return
	}

	var payload restorePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.service.RestoreVersion(r.Context(), versionID, resolveActor(r, payload.Actor), payload.Reason)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"restoredData": result.RestoredData,
		"newVersionId": result.NewVersionID,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, caseID string) {
	entity := entityFilter(r)

	versions, err := h.service.Versions(r.Context(), caseID, entity)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"versions": versions,
		"count":    len(versions),
	})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request, caseID string) {
	entity := strings.TrimSpace(r.URL.Query().Get("entity"))

	version, err := h.service.LatestVersion(r.Context(), caseID, entity)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, version)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request, caseID string) {
	stats, err := h.service.VersionStats(r.Context(), caseID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func resolveActor(r *http.Request, bodyActor string) string {
	if strings.TrimSpace(bodyActor) != "" {
		return bodyActor
	}
	if actor, ok := auth.ActorFromContext(r.Context()); ok {
		return actor
	}
	return ""
}

func entityFilter(r *http.Request) *string {
	entity := strings.TrimSpace(r.URL.Query().Get("entity"))
	if entity == "" {
		return nil
	}
	return &entity
}

func writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrVersionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrVersionAlreadyUndone), errors.Is(err, domain.ErrNoRestoreData):
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(map[string]any{"error": err.Error()}); encodeErr != nil {
		log.Printf("[HTTP] failed to encode error response: %v", encodeErr)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}
