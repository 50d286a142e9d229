// Package jobs tracks deferred device actions and the scheduler jobs that
// carry them out.
package jobs

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"sous_vide/internal/scheduler"
)

// ErrNotFound is returned for ids that were never issued or are already gone.
var ErrNotFound = errors.New("jobs: action not found")

// Kind describes which commands an action issues.
type Kind string

const (
	KindDelayedStart           Kind = "DelayedStart"
	KindDelayedStartTempChange Kind = "DelayedStart+TempChange"
)

// Status of an action.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
)

// Canceler is the part of the scheduler the registry needs.
type Canceler interface {
	Cancel(h scheduler.Handle) bool
}

// Action is one deferred request: a start, optionally followed by a
// temperature change one second later.
type Action struct {
	ID             int
	Kind           Kind
	RequestedStart time.Time
	Temperature    string
	Handles        []scheduler.Handle
	Status         Status
	CreatedAt      time.Time

	fired []scheduler.Handle
}

// Registry is an insertion-ordered, id-keyed table of actions. Ids start at
// 1 and are never reused.
type Registry struct {
	mu              sync.Mutex
	canceler        Canceler
	removeCompleted bool
	now             func() time.Time

	lastID  int
	order   []int
	actions map[int]*Action
}

// NewRegistry returns an empty registry. With removeCompleted set, actions
// leave the registry once every job fired or was skipped.
func NewRegistry(canceler Canceler, removeCompleted bool) *Registry {
	return &Registry{
		canceler:        canceler,
		removeCompleted: removeCompleted,
		now:             time.Now,
		actions:         make(map[int]*Action),
	}
}

// Register stores a new pending action and returns its id.
func (r *Registry) Register(kind Kind, start time.Time, temperature string, handles []scheduler.Handle) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	id := r.lastID
	r.actions[id] = &Action{
		ID:             id,
		Kind:           kind,
		RequestedStart: start,
		Temperature:    temperature,
		Handles:        slices.Clone(handles),
		Status:         StatusPending,
		CreatedAt:      r.now(),
	}
	r.order = append(r.order, id)
	return id
}

// List returns copies of all actions in registration order.
func (r *Registry) List() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Action, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.actions[id].clone())
	}
	return out
}

func (r *Registry) Get(id int) (Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actions[id]
	if !ok {
		return Action{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return a.clone(), nil
}

// Cancel stops every job of the action that has not fired yet and removes
// the action. Jobs already fired are left alone.
func (r *Registry) Cancel(id int) error {
	r.mu.Lock()
	a, ok := r.actions[id]
	if ok {
		r.removeLocked(id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	for _, h := range a.Handles {
		r.canceler.Cancel(h)
	}
	return nil
}

// MarkFired records that one job of the action ran.
func (r *Registry) MarkFired(id int, h scheduler.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actions[id]
	if !ok {
		return
	}
	r.settleLocked(a, h, StatusCompleted)
}

// MarkMissed records that a job was skipped for starting too late. The
// action is found by handle because the scheduler only knows handles.
func (r *Registry) MarkMissed(h scheduler.Handle) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		a := r.actions[id]
		if slices.Contains(a.Handles, h) {
			a.Status = StatusMissed
			r.settleLocked(a, h, StatusMissed)
			return id, true
		}
	}
	return 0, false
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *Registry) settleLocked(a *Action, h scheduler.Handle, final Status) {
	if !slices.Contains(a.fired, h) {
		a.fired = append(a.fired, h)
	}
	if len(a.fired) < len(a.Handles) {
		return
	}
	if a.Status != StatusMissed {
		a.Status = final
	}
	if r.removeCompleted {
		r.removeLocked(a.ID)
	}
}

func (r *Registry) removeLocked(id int) {
	delete(r.actions, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

func (a *Action) clone() Action {
	c := *a
	c.Handles = slices.Clone(a.Handles)
	c.fired = nil
	return c
}
