package domain

import "testing"

func TestDeriveChangeTypeCreate(t *testing.T) {
	changeType := DeriveChangeType(nil, map[string]any{"status": "draft"}, nil)
	if changeType != ChangeTypeCreate {
		t.Fatalf("expected create, got %s", changeType)
	}
}

func TestDeriveChangeTypeDelete(t *testing.T) {
	changeType := DeriveChangeType(map[string]any{"status": "sent"}, nil, nil)
	if changeType != ChangeTypeDelete {
		t.Fatalf("expected delete, got %s", changeType)
	}
}

func TestDeriveChangeTypeRestoreFromReason(t *testing.T) {
	for _, reason := range []string{"Restored to version from 2025-01-01", "undo payment edit", "RESTORE"} {
		r := reason
		changeType := DeriveChangeType(
			map[string]any{"status": "sent"},
			map[string]any{"status": "draft"},
			&r,
		)
		if changeType != ChangeTypeRestore {
			t.Fatalf("expected restore for reason %q, got %s", reason, changeType)
		}
	}
}

func TestDeriveChangeTypeUpdateByDefault(t *testing.T) {
	reason := "manual correction"
	changeType := DeriveChangeType(
		map[string]any{"status": "draft"},
		map[string]any{"status": "sent"},
		&reason,
	)
	if changeType != ChangeTypeUpdate {
		t.Fatalf("expected update, got %s", changeType)
	}
}

func TestCopySnapshotIsIndependent(t *testing.T) {
	original := map[string]any{
		"status": "draft",
		"nested": map[string]any{"amount": float64(100)},
		"tags":   []any{"a", "b"},
	}

	copied := CopySnapshot(original)

	copied["status"] = "sent"
	copied["nested"].(map[string]any)["amount"] = float64(200)
	copied["tags"].([]any)[0] = "c"

	if original["status"] != "draft" {
		t.Fatalf("top-level value mutated through copy")
	}
	if original["nested"].(map[string]any)["amount"] != float64(100) {
		t.Fatalf("nested value mutated through copy")
	}
	if original["tags"].([]any)[0] != "a" {
		t.Fatalf("slice element mutated through copy")
	}
}

func TestCopySnapshotNil(t *testing.T) {
	if CopySnapshot(nil) != nil {
		t.Fatalf("expected nil copy of nil snapshot")
	}
}

func TestCasePatchApplyLeavesOriginalUntouched(t *testing.T) {
	current := CaseFull{
		CaseSummary: CaseSummary{ID: "c1", Name: "Ana", Stage: "intake", Score: 10},
		Tasks:       []CaseTask{{ID: "t1", Title: "collect documents"}},
	}

	stage := "review"
	score := 20
	next := CasePatch{Stage: &stage, Score: &score}.Apply(current)

	if next.Stage != "review" || next.Score != 20 {
		t.Fatalf("patch not applied: %+v", next)
	}
	if next.Name != "Ana" {
		t.Fatalf("unrelated field changed: %+v", next)
	}
	if current.Stage != "intake" || current.Score != 10 {
		t.Fatalf("original mutated by patch: %+v", current)
	}

	next.Tasks[0].Done = true
	if current.Tasks[0].Done {
		t.Fatalf("task slice shared between patched copy and original")
	}
}
