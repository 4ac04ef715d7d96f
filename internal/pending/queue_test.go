package pending

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUndoBeforeCountdownCancelsExecution(t *testing.T) {
	queue := NewQueue()

	var executed, undone atomic.Int32
	id := queue.Enqueue(Action{
		Kind:      "delete",
		Countdown: 100 * time.Millisecond,
		OnExecute: func() { executed.Add(1) },
		OnUndo:    func() { undone.Add(1) },
	})

	time.Sleep(30 * time.Millisecond)
	queue.Undo(id)

	// Wait past the original countdown to catch a timer that should be dead.
	time.Sleep(150 * time.Millisecond)

	if got := undone.Load(); got != 1 {
		t.Fatalf("expected undo callback once, got %d", got)
	}
	if got := executed.Load(); got != 0 {
		t.Fatalf("execute callback fired after undo: %d", got)
	}

	// Later calls on the resolved id are silent no-ops.
	queue.Undo(id)
	queue.CommitNow(id)
	if executed.Load() != 0 || undone.Load() != 1 {
		t.Fatalf("resolved action re-fired: executed=%d undone=%d", executed.Load(), undone.Load())
	}
}

func TestCountdownExpiryExecutesExactlyOnce(t *testing.T) {
	queue := NewQueue()

	var executed atomic.Int32
	done := make(chan struct{})
	id := queue.Enqueue(Action{
		Kind:      "archive",
		Countdown: 50 * time.Millisecond,
		OnExecute: func() {
			executed.Add(1)
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("execute callback never fired")
	}

	if got := executed.Load(); got != 1 {
		t.Fatalf("expected one execution, got %d", got)
	}
	if len(queue.Pending()) != 0 {
		t.Fatalf("expected empty queue after expiry")
	}
	if _, ok := queue.Remaining(id); ok {
		t.Fatalf("expired action still reports remaining time")
	}

	// Undo after expiry must not raise or re-fire anything.
	queue.Undo(id)
	if got := executed.Load(); got != 1 {
		t.Fatalf("execution count changed after late undo: %d", got)
	}
}

func TestCommitNowSkipsTheWait(t *testing.T) {
	queue := NewQueue()

	var executed, undone atomic.Int32
	id := queue.Enqueue(Action{
		Kind:      "delete",
		Countdown: 10 * time.Second,
		OnExecute: func() { executed.Add(1) },
		OnUndo:    func() { undone.Add(1) },
	})

	queue.CommitNow(id)

	if got := executed.Load(); got != 1 {
		t.Fatalf("expected immediate execution, got %d", got)
	}
	if undone.Load() != 0 {
		t.Fatalf("undo callback fired on commit")
	}
	if len(queue.Pending()) != 0 {
		t.Fatalf("committed action still pending")
	}
}

func TestExactlyOneResolutionUnderContention(t *testing.T) {
	queue := NewQueue()

	for i := 0; i < 50; i++ {
		var executed, undone atomic.Int32
		id := queue.Enqueue(Action{
			Countdown: time.Millisecond,
			OnExecute: func() { executed.Add(1) },
			OnUndo:    func() { undone.Add(1) },
		})

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				queue.Undo(id)
			}()
			go func() {
				defer wg.Done()
				queue.CommitNow(id)
			}()
		}
		wg.Wait()
		time.Sleep(5 * time.Millisecond)

		total := executed.Load() + undone.Load()
		if total != 1 {
			t.Fatalf("iteration %d: expected exactly one callback, executed=%d undone=%d", i, executed.Load(), undone.Load())
		}
		if executed.Load() > 1 || undone.Load() > 1 {
			t.Fatalf("iteration %d: callback fired twice", i)
		}
	}
}

func TestPendingItemsAreIndependent(t *testing.T) {
	queue := NewQueue()

	var firstExecuted, secondUndone atomic.Int32
	first := queue.Enqueue(Action{
		Label:     "delete payment",
		Countdown: 40 * time.Millisecond,
		OnExecute: func() { firstExecuted.Add(1) },
	})
	second := queue.Enqueue(Action{
		Label:     "archive case",
		Countdown: 10 * time.Second,
		OnUndo:    func() { secondUndone.Add(1) },
	})

	views := queue.Pending()
	if len(views) != 2 {
		t.Fatalf("expected 2 pending actions, got %d", len(views))
	}
	if views[0].ID != first || views[1].ID != second {
		t.Fatalf("pending views out of enqueue order")
	}

	queue.Undo(second)
	time.Sleep(100 * time.Millisecond)

	if firstExecuted.Load() != 1 {
		t.Fatalf("first action did not auto-execute independently")
	}
	if secondUndone.Load() != 1 {
		t.Fatalf("second action undo did not fire")
	}
}

func TestDefaultCountdownApplied(t *testing.T) {
	queue := NewQueue(WithDefaultCountdown(250 * time.Millisecond))

	id := queue.Enqueue(Action{Kind: "delete"})

	remaining, ok := queue.Remaining(id)
	if !ok {
		t.Fatalf("action not pending")
	}
	if remaining <= 0 || remaining > 250*time.Millisecond {
		t.Fatalf("unexpected remaining window: %v", remaining)
	}

	queue.Undo(id)
}

func TestReadingViewsNeverResolves(t *testing.T) {
	queue := NewQueue()

	var executed atomic.Int32
	id := queue.Enqueue(Action{
		Countdown: 80 * time.Millisecond,
		OnExecute: func() { executed.Add(1) },
	})

	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		queue.Pending()
		queue.Remaining(id)
	}
	if executed.Load() != 0 {
		t.Fatalf("display reads triggered execution")
	}

	time.Sleep(100 * time.Millisecond)
	if executed.Load() != 1 {
		t.Fatalf("action did not execute after countdown, got %d", executed.Load())
	}
}

func TestUnknownIDIsNoOp(t *testing.T) {
	queue := NewQueue()
	queue.Undo(uuid.New())
	queue.CommitNow(uuid.New())
	if len(queue.Pending()) != 0 {
		t.Fatalf("unexpected pending items")
	}
}
