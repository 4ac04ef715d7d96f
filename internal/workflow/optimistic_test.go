package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/legalops/caseledger/internal/domain"
	"github.com/legalops/caseledger/internal/ledger"
	"github.com/legalops/caseledger/internal/pending"
	"github.com/legalops/caseledger/internal/projection"
)

type memoryVersionRepo struct {
	records   []domain.VersionRecord
	appendErr error
}

func (m *memoryVersionRepo) Append(ctx context.Context, record domain.VersionRecord) (domain.VersionRecord, error) {
	if m.appendErr != nil {
		return domain.VersionRecord{}, m.appendErr
	}
	record.ID = uuid.New()
	record.CreatedAt = time.Now()
	m.records = append(m.records, record)
	return record, nil
}

func (m *memoryVersionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.VersionRecord, error) {
	for _, record := range m.records {
		if record.ID == id {
			return record, nil
		}
	}
	return domain.VersionRecord{}, fmt.Errorf("version %s: %w", id, domain.ErrVersionNotFound)
}

func (m *memoryVersionRepo) ListByCase(ctx context.Context, caseID string, entity *string) ([]domain.VersionRecord, error) {
	return m.records, nil
}

func (m *memoryVersionRepo) Latest(ctx context.Context, caseID string, entity string) (domain.VersionRecord, error) {
	if len(m.records) == 0 {
		return domain.VersionRecord{}, domain.ErrVersionNotFound
	}
	return m.records[len(m.records)-1], nil
}

func (m *memoryVersionRepo) RecordRestore(ctx context.Context, restore domain.VersionRecord, mark domain.UndoMark) (domain.VersionRecord, error) {
	return m.Append(ctx, restore)
}

func newGuardFixture(repo *memoryVersionRepo) (*Guard, *projection.Store, *pending.Queue) {
	store := projection.NewStore(nil)
	store.HydrateList([]domain.CaseSummary{{ID: "c1", Stage: "intake"}})
	store.HydrateCase("c1", domain.CaseFull{
		CaseSummary: domain.CaseSummary{ID: "c1", Name: "Ana", Stage: "intake"},
	})
	queue := pending.NewQueue()
	guard := NewGuard(store, ledger.NewService(repo), queue)
	return guard, store, queue
}

func stageWrite(mutate func(context.Context) error) Write {
	stage := "review"
	return Write{
		CaseID:     "c1",
		Patch:      domain.CasePatch{Stage: &stage},
		Entity:     "case_progress",
		DataBefore: map[string]any{"stage": "intake"},
		DataAfter:  map[string]any{"stage": "review"},
		Actor:      "agent-1",
		Mutate:     mutate,
	}
}

func TestApplyPatchesAndRecords(t *testing.T) {
	repo := &memoryVersionRepo{}
	guard, store, _ := newGuardFixture(repo)

	versionID, err := guard.Apply(context.Background(), stageWrite(nil))
	if err != nil {
		t.Fatalf("apply returned error: %v", err)
	}
	if versionID == uuid.Nil {
		t.Fatalf("expected a recorded version id")
	}

	full, _ := store.Get("c1")
	if full.Stage != "review" {
		t.Fatalf("optimistic patch not applied: %s", full.Stage)
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected 1 ledger record, got %d", len(repo.records))
	}
}

func TestApplyRollsBackWhenLedgerWriteFails(t *testing.T) {
	repo := &memoryVersionRepo{appendErr: fmt.Errorf("write: %w", domain.ErrPersistence)}
	guard, store, _ := newGuardFixture(repo)

	_, err := guard.Apply(context.Background(), stageWrite(nil))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	full, _ := store.Get("c1")
	if full.Stage != "intake" {
		t.Fatalf("projection not rolled back after failed ledger write: %s", full.Stage)
	}
	summary, _ := store.Summary("c1")
	if summary.Stage != "intake" {
		t.Fatalf("summary not rolled back: %s", summary.Stage)
	}
}

func TestApplyRollsBackWhenMutationFails(t *testing.T) {
	repo := &memoryVersionRepo{}
	guard, store, _ := newGuardFixture(repo)

	mutationErr := errors.New("entity store rejected update")
	_, err := guard.Apply(context.Background(), stageWrite(func(ctx context.Context) error {
		return mutationErr
	}))
	if !errors.Is(err, mutationErr) {
		t.Fatalf("expected mutation error, got %v", err)
	}

	full, _ := store.Get("c1")
	if full.Stage != "intake" {
		t.Fatalf("projection not rolled back after failed mutation: %s", full.Stage)
	}
	if len(repo.records) != 0 {
		t.Fatalf("ledger recorded a change whose mutation failed")
	}
}

func TestApplyReversibleUndoRestoresProjection(t *testing.T) {
	repo := &memoryVersionRepo{}
	guard, store, queue := newGuardFixture(repo)

	id := guard.ApplyReversible(context.Background(), stageWrite(nil), 10*time.Second)

	full, _ := store.Get("c1")
	if full.Stage != "review" {
		t.Fatalf("optimistic patch not applied before the grace window: %s", full.Stage)
	}

	queue.Undo(id)

	full, _ = store.Get("c1")
	if full.Stage != "intake" {
		t.Fatalf("undo did not restore projection: %s", full.Stage)
	}
	if len(repo.records) != 0 {
		t.Fatalf("undone action still reached the ledger")
	}
}

func TestApplyReversibleCommitNowWrites(t *testing.T) {
	repo := &memoryVersionRepo{}
	guard, store, queue := newGuardFixture(repo)

	id := guard.ApplyReversible(context.Background(), stageWrite(nil), 10*time.Second)
	queue.CommitNow(id)

	if len(repo.records) != 1 {
		t.Fatalf("expected 1 ledger record after early commit, got %d", len(repo.records))
	}
	full, _ := store.Get("c1")
	if full.Stage != "review" {
		t.Fatalf("committed state lost: %s", full.Stage)
	}
}

func TestApplyReversibleExpiryWrites(t *testing.T) {
	repo := &memoryVersionRepo{}
	guard, store, _ := newGuardFixture(repo)

	guard.ApplyReversible(context.Background(), stageWrite(nil), 30*time.Millisecond)
	time.Sleep(120 * time.Millisecond)

	if len(repo.records) != 1 {
		t.Fatalf("expected 1 ledger record after expiry, got %d", len(repo.records))
	}
	full, _ := store.Get("c1")
	if full.Stage != "review" {
		t.Fatalf("expired state lost: %s", full.Stage)
	}
}
