package projection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/legalops/caseledger/internal/domain"
)

// stubCaseReader records every batch it serves so tests can assert round trips.
type stubCaseReader struct {
	mu      sync.Mutex
	cases   map[string]domain.CaseFull
	batches [][]string
	err     error
}

func newStubCaseReader(cases ...domain.CaseFull) *stubCaseReader {
	byID := make(map[string]domain.CaseFull, len(cases))
	for _, c := range cases {
		byID[c.ID] = c
	}
	return &stubCaseReader{cases: byID}
}

func (r *stubCaseReader) GetCase(ctx context.Context, id string) (domain.CaseFull, error) {
	found, err := r.GetCases(ctx, []string{id})
	if err != nil {
		return domain.CaseFull{}, err
	}
	if len(found) == 0 {
		return domain.CaseFull{}, errors.New("case not found")
	}
	return found[0], nil
}

func (r *stubCaseReader) GetCases(ctx context.Context, ids []string) ([]domain.CaseFull, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]string(nil), ids...))
	if r.err != nil {
		return nil, r.err
	}
	found := make([]domain.CaseFull, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.cases[id]; ok {
			found = append(found, c)
		}
	}
	return found, nil
}

func (r *stubCaseReader) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestLoaderFetchReturnsCase(t *testing.T) {
	reader := newStubCaseReader(sampleCase("c1"))
	loader := NewLoader(reader)

	found, err := loader.Fetch(context.Background(), "c1")
	if err != nil {
		t.Fatalf("fetch returned error: %v", err)
	}
	if found.ID != "c1" {
		t.Fatalf("expected case c1, got %s", found.ID)
	}
}

func TestLoaderFetchAlwaysReachesReader(t *testing.T) {
	reader := newStubCaseReader(sampleCase("c1"))
	loader := NewLoader(reader)
	ctx := context.Background()

	if _, err := loader.Fetch(ctx, "c1"); err != nil {
		t.Fatalf("first fetch returned error: %v", err)
	}
	if _, err := loader.Fetch(ctx, "c1"); err != nil {
		t.Fatalf("second fetch returned error: %v", err)
	}

	if got := reader.batchCount(); got != 2 {
		t.Fatalf("expected a cache-bypassing round trip per fetch, got %d", got)
	}
}

func TestLoaderFetchManyBatchesOneRoundTrip(t *testing.T) {
	reader := newStubCaseReader(sampleCase("c1"), sampleCase("c2"), sampleCase("c3"))
	loader := NewLoader(reader)

	cases, err := loader.FetchMany(context.Background(), []string{"c1", "c2", "c3"})
	if err != nil {
		t.Fatalf("fetch many returned error: %v", err)
	}
	if len(cases) != 3 {
		t.Fatalf("expected 3 cases, got %d", len(cases))
	}
	if got := reader.batchCount(); got != 1 {
		t.Fatalf("expected a single batched round trip, got %d", got)
	}
	if len(reader.batches[0]) != 3 {
		t.Fatalf("expected all ids in one batch, got %v", reader.batches[0])
	}
}

func TestLoaderFetchUnknownCase(t *testing.T) {
	loader := NewLoader(newStubCaseReader())

	_, err := loader.Fetch(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for unknown case")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected error to name the case, got %v", err)
	}
}

func TestLoaderPropagatesReaderFailure(t *testing.T) {
	reader := newStubCaseReader(sampleCase("c1"))
	reader.err = errors.New("backend unavailable")
	loader := NewLoader(reader)

	if _, err := loader.Fetch(context.Background(), "c1"); err == nil {
		t.Fatal("expected reader failure to surface")
	}
	if _, err := loader.FetchMany(context.Background(), []string{"c1"}); err == nil {
		t.Fatal("expected reader failure to surface from batch fetch")
	}
}

func TestStoreWithReaderRefreshManyBatches(t *testing.T) {
	authoritative1 := sampleCase("c1")
	authoritative1.Stage = "review"
	authoritative2 := sampleCase("c2")
	authoritative2.Stage = "closed"
	reader := newStubCaseReader(authoritative1, authoritative2)

	store := NewStoreWithReader(reader)
	store.HydrateCase("c1", sampleCase("c1"))
	store.HydrateCase("c2", sampleCase("c2"))

	if err := store.RefreshMany(context.Background(), []string{"c1", "c2"}); err != nil {
		t.Fatalf("refresh many returned error: %v", err)
	}
	if got := reader.batchCount(); got != 1 {
		t.Fatalf("expected one batched round trip, got %d", got)
	}
	first, _ := store.Get("c1")
	second, _ := store.Get("c2")
	if first.Stage != "review" || second.Stage != "closed" {
		t.Fatalf("expected authoritative stages after refresh, got %s / %s", first.Stage, second.Stage)
	}
}

func TestStoreWithReaderRefreshSupersedesOptimisticState(t *testing.T) {
	authoritative := sampleCase("c1")
	authoritative.Name = "Authoritative"
	reader := newStubCaseReader(authoritative)

	store := NewStoreWithReader(reader)
	store.HydrateCase("c1", sampleCase("c1"))
	optimistic := "Optimistic"
	store.Patch("c1", domain.CasePatch{Name: &optimistic})

	if err := store.Refresh(context.Background(), "c1"); err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	refreshed, _ := store.Get("c1")
	if refreshed.Name != "Authoritative" {
		t.Fatalf("expected authoritative name after refresh, got %s", refreshed.Name)
	}
}
