package workflow

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/legalops/caseledger/internal/domain"
	"github.com/legalops/caseledger/internal/ledger"
	"github.com/legalops/caseledger/internal/pending"
	"github.com/legalops/caseledger/internal/projection"
)

// Write pairs an optimistic projection patch with the authoritative mutation
// it anticipates: the live entity change plus its ledger record.
type Write struct {
	CaseID     string
	Patch      domain.CasePatch
	Entity     string
	FieldName  *string
	DataBefore map[string]any
	DataAfter  map[string]any
	Actor      string
	Reason     *string

	// Mutate applies the change to the live entity store. Optional; when nil
	// only the ledger record is written.
	Mutate func(ctx context.Context) error
}

// Guard wires the projection store, the ledger, and the pending-action queue
// so every optimistic call site follows the same capture-patch-write-rollback
// sequence instead of reimplementing it.
type Guard struct {
	store  *projection.Store
	ledger *ledger.Service
	queue  *pending.Queue
}

// NewGuard creates a guard over the three collaborators. The queue may be nil
// when reversible writes are not used.
func NewGuard(store *projection.Store, ledgerService *ledger.Service, queue *pending.Queue) *Guard {
	return &Guard{
		store:  store,
		ledger: ledgerService,
		queue:  queue,
	}
}

// Apply performs a guarded optimistic write: capture snapshot, patch the
// projection, run the authoritative mutation and ledger record, and roll the
// projection back if any of that fails. The UI never keeps a state the server
// did not commit.
func (g *Guard) Apply(ctx context.Context, write Write) (uuid.UUID, error) {
	snapshot, hasSnapshot := g.store.Get(write.CaseID)
	g.store.Patch(write.CaseID, write.Patch)

	versionID, err := g.commit(ctx, write)
	if err != nil {
		if hasSnapshot {
			g.store.Rollback(write.CaseID, snapshot)
		} else {
			g.store.Remove(write.CaseID)
		}
		return uuid.Nil, err
	}
	return versionID, nil
}

// ApplyReversible patches the projection immediately but defers the
// authoritative write behind the grace window. Undoing within the window rolls
// the projection back; expiry or an early commit runs the same guarded write
// as Apply.
func (g *Guard) ApplyReversible(ctx context.Context, write Write, countdown time.Duration) uuid.UUID {
	snapshot, hasSnapshot := g.store.Get(write.CaseID)
	g.store.Patch(write.CaseID, write.Patch)

	rollback := func() {
		if hasSnapshot {
			g.store.Rollback(write.CaseID, snapshot)
		} else {
			g.store.Remove(write.CaseID)
		}
	}

	return g.queue.Enqueue(pending.Action{
		Kind:      write.Entity,
		Label:     write.CaseID,
		Countdown: countdown,
		OnExecute: func() {
			// The grace window has its own lifetime; the triggering request's
			// context is long gone by the time the timer fires.
			if _, err := g.commit(context.Background(), write); err != nil {
				log.Printf("[workflow] deferred write for case %s failed: %v", write.CaseID, err)
				rollback()
			}
		},
		OnUndo: rollback,
	})
}

func (g *Guard) commit(ctx context.Context, write Write) (uuid.UUID, error) {
	if write.Mutate != nil {
		if err := write.Mutate(ctx); err != nil {
			return uuid.Nil, err
		}
	}

	return g.ledger.RecordVersion(ctx, domain.NewVersionInput{
		CaseID:     write.CaseID,
		Entity:     write.Entity,
		FieldName:  write.FieldName,
		DataBefore: write.DataBefore,
		DataAfter:  write.DataAfter,
		Actor:      write.Actor,
		Reason:     write.Reason,
	})
}
