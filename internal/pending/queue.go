package pending

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCountdown is the grace window applied when an action does not set one.
const DefaultCountdown = 10 * time.Second

// Action describes a deferred destructive operation. OnExecute runs when the
// grace window elapses or the user skips the wait; OnUndo runs when the user
// cancels. Since nothing has committed yet, undo is cancellation, not reversal.
type Action struct {
	Kind      string
	Label     string
	Countdown time.Duration
	OnExecute func()
	OnUndo    func()
}

// View is a read-only snapshot of a queued action, used to drive countdown
// displays. Reading views never resolves an action.
type View struct {
	ID         uuid.UUID     `json:"id"`
	Kind       string        `json:"kind"`
	Label      string        `json:"label"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	Countdown  time.Duration `json:"countdown"`
	Remaining  time.Duration `json:"remaining"`
}

type item struct {
	id         uuid.UUID
	action     Action
	enqueuedAt time.Time
	timer      *time.Timer
	resolved   bool
}

// Queue holds reversible actions for a bounded grace window. Each item has
// exactly one timer and resolves through exactly one of: timer expiry,
// Undo, or CommitNow.
type Queue struct {
	mu               sync.Mutex
	items            map[uuid.UUID]*item
	defaultCountdown time.Duration
	now              func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithDefaultCountdown overrides the grace window applied to actions that do
// not carry their own.
func WithDefaultCountdown(countdown time.Duration) Option {
	return func(q *Queue) {
		if countdown > 0 {
			q.defaultCountdown = countdown
		}
	}
}

// NewQueue creates an empty pending-action queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		items:            make(map[uuid.UUID]*item),
		defaultCountdown: DefaultCountdown,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules the action and returns its id. The action auto-executes
// when the countdown elapses unless Undo or CommitNow resolves it first.
func (q *Queue) Enqueue(action Action) uuid.UUID {
	countdown := action.Countdown
	if countdown <= 0 {
		countdown = q.defaultCountdown
	}
	action.Countdown = countdown

	entry := &item{
		id:         uuid.New(),
		action:     action,
		enqueuedAt: q.now(),
	}

	q.mu.Lock()
	q.items[entry.id] = entry
	entry.timer = time.AfterFunc(countdown, func() {
		q.expire(entry.id)
	})
	q.mu.Unlock()

	return entry.id
}

// Undo cancels a pending action and fires its undo callback. If the action has
// already resolved through any path this is a silent no-op: races between a
// fired timer and an undo click are expected, and the user's intent is already
// satisfied either way.
func (q *Queue) Undo(id uuid.UUID) {
	action, ok := q.resolve(id)
	if !ok {
		return
	}
	log.Printf("[pending] action %s undone", id)
	if action.OnUndo != nil {
		action.OnUndo()
	}
}

// CommitNow skips the remaining wait and executes the action immediately.
// No-op if the action has already resolved.
func (q *Queue) CommitNow(id uuid.UUID) {
	action, ok := q.resolve(id)
	if !ok {
		return
	}
	log.Printf("[pending] action %s committed early", id)
	if action.OnExecute != nil {
		action.OnExecute()
	}
}

// expire is the timer path: execute unless something else resolved first.
func (q *Queue) expire(id uuid.UUID) {
	action, ok := q.resolve(id)
	if !ok {
		return
	}
	if action.OnExecute != nil {
		action.OnExecute()
	}
}

// resolve transitions an item to its terminal state. It returns the action
// exactly once per item; every later call for the same id reports false.
// Callbacks are invoked by the caller outside the lock.
func (q *Queue) resolve(id uuid.UUID) (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.items[id]
	if !ok || entry.resolved {
		return Action{}, false
	}
	entry.resolved = true
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(q.items, id)
	return entry.action, true
}

// Pending returns snapshots of all unresolved actions, oldest first.
func (q *Queue) Pending() []View {
	q.mu.Lock()
	defer q.mu.Unlock()

	views := make([]View, 0, len(q.items))
	for _, entry := range q.items {
		views = append(views, q.viewLocked(entry))
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].EnqueuedAt.Before(views[j].EnqueuedAt)
	})
	return views
}

// Remaining reports how much of the grace window is left for a pending action.
func (q *Queue) Remaining(id uuid.UUID) (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.items[id]
	if !ok {
		return 0, false
	}
	return q.viewLocked(entry).Remaining, true
}

func (q *Queue) viewLocked(entry *item) View {
	remaining := entry.action.Countdown - q.now().Sub(entry.enqueuedAt)
	if remaining < 0 {
		remaining = 0
	}
	return View{
		ID:         entry.id,
		Kind:       entry.action.Kind,
		Label:      entry.action.Label,
		EnqueuedAt: entry.enqueuedAt,
		Countdown:  entry.action.Countdown,
		Remaining:  remaining,
	}
}
