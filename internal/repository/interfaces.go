package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/legalops/caseledger/internal/domain"
)

// VersionRepository defines the interface for case version ledger operations
type VersionRepository interface {
	// Append inserts one immutable version record and returns it as stored.
	Append(ctx context.Context, record domain.VersionRecord) (domain.VersionRecord, error)

	// GetByID retrieves a single version record.
	GetByID(ctx context.Context, id uuid.UUID) (domain.VersionRecord, error)

	// ListByCase retrieves all versions for a case, newest first. A nil entity
	// returns every entity's history.
	ListByCase(ctx context.Context, caseID string, entity *string) ([]domain.VersionRecord, error)

	// Latest retrieves the most recent version for a case/entity pair.
	Latest(ctx context.Context, caseID string, entity string) (domain.VersionRecord, error)

	// RecordRestore atomically inserts the restore record and flags the
	// original version undone. Exactly one of two concurrent restores of the
	// same version succeeds; the other observes ErrVersionAlreadyUndone.
	RecordRestore(ctx context.Context, restore domain.VersionRecord, mark domain.UndoMark) (domain.VersionRecord, error)
}

// ExportJobRepository defines the interface for audit export job tracking
type ExportJobRepository interface {
	Create(ctx context.Context, job domain.AuditExportJob) (domain.AuditExportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.AuditExportJob, error)
	List(ctx context.Context, caseID *string, statuses []domain.AuditExportJobStatus, limit, offset int) ([]domain.AuditExportJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, filePath string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error
}

// CaseReader fetches authoritative case records for projection refreshes.
// The full case store lives outside this subsystem; callers supply an
// implementation backed by whatever owns the live case tables.
type CaseReader interface {
	GetCase(ctx context.Context, id string) (domain.CaseFull, error)
	GetCases(ctx context.Context, ids []string) ([]domain.CaseFull, error)
}
