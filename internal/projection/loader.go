package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/legalops/caseledger/internal/domain"
	"github.com/legalops/caseledger/internal/repository"
)

// Loader batches and caches authoritative case fetches. Refresh paths clear
// the cached key first so a refresh always reaches the backing reader.
type Loader struct {
	loader *dataloader.Loader
}

// NewLoader wires a batched loader over the authoritative case reader.
func NewLoader(reader repository.CaseReader) *Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]string, len(keys))
		for i, key := range keys {
			ids[i] = key.String()
		}

		cases, err := reader.GetCases(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Map id -> case for ordering
		caseMap := make(map[string]domain.CaseFull, len(cases))
		for _, caseFull := range cases {
			caseMap[caseFull.ID] = caseFull
		}

		// Build results in the same order as keys
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if caseFull, ok := caseMap[id]; ok {
				results[i] = &dataloader.Result{Data: caseFull}
			} else {
				results[i] = &dataloader.Result{Error: fmt.Errorf("case %s not found", id)}
			}
		}

		return results
	}

	return &Loader{
		loader: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond)),
	}
}

// Fetch loads one case, bypassing any previously cached result so callers
// always observe the current authoritative state.
func (l *Loader) Fetch(ctx context.Context, id string) (domain.CaseFull, error) {
	key := dataloader.StringKey(id)
	l.loader.Clear(ctx, key)

	value, err := l.loader.Load(ctx, key)()
	if err != nil {
		return domain.CaseFull{}, fmt.Errorf("failed to fetch case %s: %w", id, err)
	}

	caseFull, ok := value.(domain.CaseFull)
	if !ok {
		return domain.CaseFull{}, fmt.Errorf("unexpected loader result for case %s", id)
	}
	return caseFull, nil
}

// FetchMany loads a batch of cases in one round trip.
func (l *Loader) FetchMany(ctx context.Context, ids []string) ([]domain.CaseFull, error) {
	keys := make(dataloader.Keys, len(ids))
	for i, id := range ids {
		keys[i] = dataloader.StringKey(id)
		l.loader.Clear(ctx, keys[i])
	}

	values, errs := l.loader.LoadMany(ctx, keys)()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to fetch cases: %w", errs[0])
	}

	cases := make([]domain.CaseFull, 0, len(values))
	for _, value := range values {
		caseFull, ok := value.(domain.CaseFull)
		if !ok {
			return nil, fmt.Errorf("unexpected loader result type %T", value)
		}
		cases = append(cases, caseFull)
	}
	return cases, nil
}
