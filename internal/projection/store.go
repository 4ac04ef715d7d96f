package projection

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/legalops/caseledger/internal/domain"
	"github.com/legalops/caseledger/internal/repository"
)

// ErrNoFetcher indicates a refresh was requested on a store built without a fetcher.
var ErrNoFetcher = errors.New("projection store has no fetcher configured")

// Fetcher retrieves the authoritative copy of a case for Refresh.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (domain.CaseFull, error)
}

// BatchFetcher is a Fetcher that can load several cases in one round trip.
type BatchFetcher interface {
	Fetcher
	FetchMany(ctx context.Context, ids []string) ([]domain.CaseFull, error)
}

// Store is the optimistic projection cache: the current best-known view of
// each case and its summary. Patches apply synchronously before any network
// confirmation; Rollback reverts to a caller-captured snapshot when the
// paired authoritative write fails. All in-memory operations are infallible;
// only Refresh touches I/O.
type Store struct {
	mu        sync.RWMutex
	summaries map[string]domain.CaseSummary
	full      map[string]domain.CaseFull

	selectedID string
	editingID  string

	fetcher Fetcher
}

// NewStore creates an empty projection store. The fetcher may be nil when
// Refresh is not needed (pure client-side usage); refreshing such a store
// returns ErrNoFetcher.
func NewStore(fetcher Fetcher) *Store {
	return &Store{
		summaries: make(map[string]domain.CaseSummary),
		full:      make(map[string]domain.CaseFull),
		fetcher:   fetcher,
	}
}

// NewStoreWithReader builds a store whose refresh paths batch authoritative
// fetches through the case reader.
func NewStoreWithReader(reader repository.CaseReader) *Store {
	return NewStore(NewLoader(reader))
}

// HydrateList wholesale-replaces the summary cache from a trusted read.
func (s *Store) HydrateList(summaries []domain.CaseSummary) {
	next := make(map[string]domain.CaseSummary, len(summaries))
	for _, summary := range summaries {
		next[summary.ID] = summary
	}

	s.mu.Lock()
	s.summaries = next
	s.mu.Unlock()
}

// HydrateCase wholesale-replaces one full record from a trusted read, keeping
// its summary projection in sync when the case is present in the list.
func (s *Store) HydrateCase(id string, full domain.CaseFull) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.full[id] = full.Clone()
	if _, ok := s.summaries[id]; ok {
		s.summaries[id] = full.Summary()
	}
}

// Patch merges a partial update into the cached full record and its summary,
// synchronously and before any network confirmation. Unknown ids are ignored;
// overlapping patches to the same id apply in call order, last writer wins.
func (s *Store) Patch(id string, patch domain.CasePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.full[id]
	if !ok {
		return
	}

	next := patch.Apply(current)
	s.full[id] = next
	if _, ok := s.summaries[id]; ok {
		s.summaries[id] = next.Summary()
	}
}

// Rollback replaces the cached record and its summary with a previously
// captured snapshot, undoing optimistic patches whose authoritative write
// failed.
func (s *Store) Rollback(id string, snapshot domain.CaseFull) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.full[id] = snapshot.Clone()
	if _, ok := s.summaries[id]; ok {
		s.summaries[id] = snapshot.Summary()
	}
}

// Remove evicts a case from both caches and clears any selection or editing
// pointer that referenced it.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.full, id)
	delete(s.summaries, id)
	if s.selectedID == id {
		s.selectedID = ""
	}
	if s.editingID == id {
		s.editingID = ""
	}
}

// Refresh re-fetches the authoritative record and re-hydrates, superseding any
// optimistic state. On fetch failure the previous cached state is untouched
// and the error surfaces to the caller.
func (s *Store) Refresh(ctx context.Context, id string) error {
	if s.fetcher == nil {
		return ErrNoFetcher
	}
	fresh, err := s.fetcher.Fetch(ctx, id)
	if err != nil {
		return err
	}
	s.HydrateCase(id, fresh)
	return nil
}

// RefreshMany re-fetches several cases and re-hydrates each, in a single round
// trip when the fetcher supports batching. The first fetch failure aborts and
// leaves the remaining cached state untouched.
func (s *Store) RefreshMany(ctx context.Context, ids []string) error {
	if s.fetcher == nil {
		return ErrNoFetcher
	}
	batch, ok := s.fetcher.(BatchFetcher)
	if !ok {
		for _, id := range ids {
			if err := s.Refresh(ctx, id); err != nil {
				return err
			}
		}
		return nil
	}

	fresh, err := batch.FetchMany(ctx, ids)
	if err != nil {
		return err
	}
	for _, full := range fresh {
		s.HydrateCase(full.ID, full)
	}
	return nil
}

// Get returns a copy of the cached full record.
func (s *Store) Get(id string) (domain.CaseFull, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, ok := s.full[id]
	if !ok {
		return domain.CaseFull{}, false
	}
	return full.Clone(), true
}

// Summary returns the cached list projection for one case.
func (s *Store) Summary(id string) (domain.CaseSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[id]
	return summary, ok
}

// Summaries returns all cached summaries, ordered by id for stable display.
func (s *Store) Summaries() []domain.CaseSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.CaseSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		all = append(all, summary)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Select marks a case as the active selection.
func (s *Store) Select(id string) {
	s.mu.Lock()
	s.selectedID = id
	s.mu.Unlock()
}

// SelectedID returns the active selection, if any.
func (s *Store) SelectedID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedID, s.selectedID != ""
}

// SetEditing marks a case as being edited; pass the empty string to clear.
func (s *Store) SetEditing(id string) {
	s.mu.Lock()
	s.editingID = id
	s.mu.Unlock()
}

// EditingID returns the case currently being edited, if any.
func (s *Store) EditingID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editingID, s.editingID != ""
}
