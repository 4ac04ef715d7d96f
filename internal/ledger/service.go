package ledger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/legalops/caseledger/internal/domain"
	"github.com/legalops/caseledger/internal/repository"
)

// Service is the version ledger: the single source of truth for what changed,
// who changed it, and the mechanism for reverting a change without editing
// history.
type Service struct {
	versions repository.VersionRepository
	now      func() time.Time
}

// NewService creates a new ledger service.
func NewService(versions repository.VersionRepository) *Service {
	return &Service{
		versions: versions,
		now:      time.Now,
	}
}

// RestoreResult carries the outcome of a successful restore.
type RestoreResult struct {
	RestoredData map[string]any `json:"restored_data"`
	NewVersionID uuid.UUID      `json:"new_version_id"`
}

// RecordVersion appends one immutable record to the ledger and returns its id.
// The change type is derived from the snapshot shape; callers must not assume
// the record exists until this returns without error.
func (s *Service) RecordVersion(ctx context.Context, input domain.NewVersionInput) (uuid.UUID, error) {
	if err := validateInput(input); err != nil {
		return uuid.Nil, err
	}

	record := domain.VersionRecord{
		CaseID:     strings.TrimSpace(input.CaseID),
		Entity:     strings.TrimSpace(input.Entity),
		FieldName:  input.FieldName,
		DataBefore: domain.CopySnapshot(input.DataBefore),
		DataAfter:  domain.CopySnapshot(input.DataAfter),
		Actor:      strings.TrimSpace(input.Actor),
		Reason:     input.Reason,
		ChangeType: domain.DeriveChangeType(input.DataBefore, input.DataAfter, input.Reason),
	}

	stored, err := s.versions.Append(ctx, record)
	if err != nil {
		return uuid.Nil, err
	}

	log.Printf("[ledger] recorded version %s for case %s, entity %s, actor %s", stored.ID, stored.CaseID, stored.Entity, stored.Actor)
	return stored.ID, nil
}

// Versions returns all versions for a case, newest first, optionally filtered
// by entity. An empty history is a valid result, not an error.
func (s *Service) Versions(ctx context.Context, caseID string, entity *string) ([]domain.VersionRecord, error) {
	if strings.TrimSpace(caseID) == "" {
		return nil, fmt.Errorf("%w: caseId is required", domain.ErrValidation)
	}
	return s.versions.ListByCase(ctx, caseID, entity)
}

// LatestVersion returns the most recent version for a case/entity pair, or
// ErrVersionNotFound when the pair has no history.
func (s *Service) LatestVersion(ctx context.Context, caseID, entity string) (domain.VersionRecord, error) {
	if strings.TrimSpace(caseID) == "" {
		return domain.VersionRecord{}, fmt.Errorf("%w: caseId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(entity) == "" {
		return domain.VersionRecord{}, fmt.Errorf("%w: entity is required", domain.ErrValidation)
	}
	return s.versions.Latest(ctx, caseID, entity)
}

// RestoreVersion reverts the change captured by versionID: it records a new
// version whose snapshots are the target's swapped, then flags the target
// undone. The ledger only records the restore and returns the restored data;
// writing that data back into the live entity store is the caller's step,
// deliberately kept outside this transaction so the ledger stays decoupled
// from every entity table.
func (s *Service) RestoreVersion(ctx context.Context, versionID uuid.UUID, actor string, reason *string) (RestoreResult, error) {
	if versionID == uuid.Nil {
		return RestoreResult{}, fmt.Errorf("%w: versionId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(actor) == "" {
		return RestoreResult{}, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}

	target, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return RestoreResult{}, err
	}
	if target.IsUndone {
		return RestoreResult{}, fmt.Errorf("version %s: %w", versionID, domain.ErrVersionAlreadyUndone)
	}
	if target.DataBefore == nil {
		return RestoreResult{}, fmt.Errorf("version %s: %w", versionID, domain.ErrNoRestoreData)
	}

	restoreReason := reason
	if restoreReason == nil || strings.TrimSpace(*restoreReason) == "" {
		defaulted := fmt.Sprintf("Restored to version from %s", target.CreatedAt.Format(time.RFC3339))
		restoreReason = &defaulted
	}

	restore := domain.VersionRecord{
		CaseID:    target.CaseID,
		Entity:    target.Entity,
		FieldName: target.FieldName,
		// What we are moving away from is the target's after-state; what we
		// are restoring to is its before-state.
		DataBefore: domain.CopySnapshot(target.DataAfter),
		DataAfter:  domain.CopySnapshot(target.DataBefore),
		Actor:      strings.TrimSpace(actor),
		Reason:     restoreReason,
		ChangeType: domain.ChangeTypeRestore,
	}
	mark := domain.UndoMark{
		VersionID: target.ID,
		UndoneBy:  strings.TrimSpace(actor),
		UndoneAt:  s.now(),
	}

	stored, err := s.versions.RecordRestore(ctx, restore, mark)
	if err != nil {
		return RestoreResult{}, err
	}

	log.Printf("[ledger] restored version %s for case %s, created new version %s", versionID, target.CaseID, stored.ID)
	return RestoreResult{
		RestoredData: stored.DataAfter,
		NewVersionID: stored.ID,
	}, nil
}

// VersionStats aggregates a case's history: totals, undone count, the set of
// entities touched, and the most recent change timestamp.
func (s *Service) VersionStats(ctx context.Context, caseID string) (domain.VersionStats, error) {
	records, err := s.Versions(ctx, caseID, nil)
	if err != nil {
		return domain.VersionStats{}, err
	}

	stats := domain.VersionStats{
		TotalVersions: len(records),
		Entities:      []string{},
	}
	seen := map[string]bool{}
	for _, record := range records {
		if record.IsUndone {
			stats.UndoneVersions++
		}
		if !seen[record.Entity] {
			seen[record.Entity] = true
			stats.Entities = append(stats.Entities, record.Entity)
		}
	}
	if len(records) > 0 {
		// Records are newest first, so the head carries the last change.
		last := records[0].CreatedAt
		stats.LastChange = &last
	}

	return stats, nil
}

func validateInput(input domain.NewVersionInput) error {
	if strings.TrimSpace(input.CaseID) == "" {
		return fmt.Errorf("%w: caseId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(input.Entity) == "" {
		return fmt.Errorf("%w: entity is required", domain.ErrValidation)
	}
	if strings.TrimSpace(input.Actor) == "" {
		return fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}
	if input.DataBefore == nil && input.DataAfter == nil {
		return fmt.Errorf("%w: at least one of dataBefore and dataAfter is required", domain.ErrValidation)
	}
	return nil
}
