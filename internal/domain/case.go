package domain

import "time"

// CaseSummary is the denormalized list-view projection of a case.
type CaseSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Stage     string    `json:"stage"`
	Tier      string    `json:"tier"`
	Score     int       `json:"score"`
	AgeMonths int       `json:"age_months"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseTask is a single task attached to a case.
type CaseTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// CaseFull is the detail-view projection: the summary fields plus task lists
// and a derived snapshot map rebuilt server-side on every fetch.
type CaseFull struct {
	CaseSummary
	Tasks    []CaseTask     `json:"tasks,omitempty"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

// Summary derives the list projection from a full record so the two caches
// can never disagree on the shared fields.
func (c CaseFull) Summary() CaseSummary {
	return c.CaseSummary
}

// Clone deep-copies a full case record, including tasks and the derived
// snapshot, for use as a rollback checkpoint.
func (c CaseFull) Clone() CaseFull {
	cloned := c
	if c.Tasks != nil {
		cloned.Tasks = make([]CaseTask, len(c.Tasks))
		copy(cloned.Tasks, c.Tasks)
	}
	cloned.Snapshot = CopySnapshot(c.Snapshot)
	return cloned
}

// CasePatch is a partial update to a full case record. Nil fields are left
// untouched; set fields overwrite, last writer wins.
type CasePatch struct {
	Name      *string
	Email     *string
	Stage     *string
	Tier      *string
	Score     *int
	AgeMonths *int
	UpdatedAt *time.Time
	Tasks     []CaseTask
	Snapshot  map[string]any
}

// Apply merges the patch into a copy of the record and returns it.
func (p CasePatch) Apply(current CaseFull) CaseFull {
	next := current.Clone()
	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.Email != nil {
		next.Email = *p.Email
	}
	if p.Stage != nil {
		next.Stage = *p.Stage
	}
	if p.Tier != nil {
		next.Tier = *p.Tier
	}
	if p.Score != nil {
		next.Score = *p.Score
	}
	if p.AgeMonths != nil {
		next.AgeMonths = *p.AgeMonths
	}
	if p.UpdatedAt != nil {
		next.UpdatedAt = *p.UpdatedAt
	}
	if p.Tasks != nil {
		next.Tasks = make([]CaseTask, len(p.Tasks))
		copy(next.Tasks, p.Tasks)
	}
	if p.Snapshot != nil {
		next.Snapshot = CopySnapshot(p.Snapshot)
	}
	return next
}
