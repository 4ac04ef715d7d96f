package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChangeType classifies what a version record captured.
type ChangeType string

const (
	ChangeTypeCreate  ChangeType = "create"
	ChangeTypeUpdate  ChangeType = "update"
	ChangeTypeDelete  ChangeType = "delete"
	ChangeTypeRestore ChangeType = "restore"
)

// VersionRecord is one immutable entry in the case audit ledger. Every field
// except the undo-tracking triple is fixed at write time; the triple is only
// ever set once, by a later restore targeting this record.
type VersionRecord struct {
	ID         uuid.UUID      `json:"id"`
	CaseID     string         `json:"case_id"`
	Entity     string         `json:"entity"`
	FieldName  *string        `json:"field_name,omitempty"`
	DataBefore map[string]any `json:"data_before,omitempty"`
	DataAfter  map[string]any `json:"data_after,omitempty"`
	Actor      string         `json:"actor"`
	Reason     *string        `json:"reason,omitempty"`
	ChangeType ChangeType     `json:"change_type"`
	IsUndone   bool           `json:"is_undone"`
	UndoneBy   *string        `json:"undone_by,omitempty"`
	UndoneAt   *time.Time     `json:"undone_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewVersionInput carries the fields a caller supplies when recording a change.
// DataBefore and DataAfter may each be nil, but not both: a nil DataBefore
// signals creation and a nil DataAfter signals deletion.
type NewVersionInput struct {
	CaseID     string
	Entity     string
	FieldName  *string
	DataBefore map[string]any
	DataAfter  map[string]any
	Actor      string
	Reason     *string
}

// UndoMark is the narrow mutable companion to an otherwise immutable version
// record. Keeping it a separate type means the append-only invariant on
// VersionRecord is enforced by construction rather than by convention.
type UndoMark struct {
	VersionID uuid.UUID
	UndoneBy  string
	UndoneAt  time.Time
}

// VersionStats aggregates a case's ledger history.
type VersionStats struct {
	TotalVersions  int        `json:"total_versions"`
	UndoneVersions int        `json:"undone_versions"`
	Entities       []string   `json:"entities"`
	LastChange     *time.Time `json:"last_change,omitempty"`
}

// DeriveChangeType computes the change classification from the snapshot shape:
// no before-state means creation, no after-state means deletion, a reason
// carrying a restore/undo marker means restore, anything else is an update.
func DeriveChangeType(dataBefore, dataAfter map[string]any, reason *string) ChangeType {
	switch {
	case dataBefore == nil && dataAfter != nil:
		return ChangeTypeCreate
	case dataBefore != nil && dataAfter == nil:
		return ChangeTypeDelete
	case reasonHasRestoreMarker(reason):
		return ChangeTypeRestore
	default:
		return ChangeTypeUpdate
	}
}

func reasonHasRestoreMarker(reason *string) bool {
	if reason == nil {
		return false
	}
	lowered := strings.ToLower(*reason)
	return strings.Contains(lowered, "restore") || strings.Contains(lowered, "undo")
}

// CopySnapshot deep-copies a snapshot so stored records cannot be mutated
// through a shared map reference.
func CopySnapshot(snapshot map[string]any) map[string]any {
	if snapshot == nil {
		return nil
	}
	copied := make(map[string]any, len(snapshot))
	for key, value := range snapshot {
		copied[key] = copyValue(value)
	}
	return copied
}

func copyValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return CopySnapshot(typed)
	case []any:
		copied := make([]any, len(typed))
		for i, item := range typed {
			copied[i] = copyValue(item)
		}
		return copied
	default:
		return value
	}
}
