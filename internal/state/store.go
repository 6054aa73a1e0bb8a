// Package state owns per-element flag state.
//
// The Store is the only component allowed to mutate an element's flags; the
// resolver and scheduler read immutable snapshots. Mutations for one
// element are serialized - a concurrent attempt is rejected with
// ConcurrentMutationError rather than interleaved, so a reader can never
// observe a torn element state. Different elements are fully independent.
package state

import (
	"log/slog"
	"sync"

	"github.com/veneer-dev/veneer/internal/ir"
	"github.com/veneer-dev/veneer/internal/table"
)

// Handle identifies a tracked element. Handles are stable for the lifetime
// of the registration and are currently the element ID itself; callers
// must treat them as opaque.
type Handle string

// TransitionGuard reports in-flight transitions for an element. The store
// consults it on Unregister: an element may not be dropped while the
// scheduler still owns running transitions for it.
type TransitionGuard interface {
	ActiveTransitions(h Handle) int
}

// Store tracks flag state for registered elements against a compiled
// table's flag universe.
type Store struct {
	tbl   *table.Table
	guard TransitionGuard

	mu       sync.RWMutex
	elements map[Handle]*elementState
}

// elementState is the live, mutable flag map for one element.
// Only explicitly-set flags appear in values; snapshots fill in declared
// defaults for the rest.
type elementState struct {
	mu     sync.Mutex // TryLock-ed per mutation; contention is a caller bug
	values map[string]ir.Value
}

// Option configures a Store.
type Option func(*Store)

// WithTransitionGuard wires the scheduler in as the dangling-transition
// check for Unregister.
func WithTransitionGuard(g TransitionGuard) Option {
	return func(s *Store) {
		s.guard = g
	}
}

// NewStore creates a Store over the given compiled table.
func NewStore(tbl *table.Table, opts ...Option) *Store {
	s := &Store{
		tbl:      tbl,
		elements: make(map[Handle]*elementState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register begins tracking an element and returns its handle.
// Idempotent: re-registering an already-tracked element returns the
// existing handle without resetting its state.
func (s *Store) Register(elementID string) Handle {
	h := Handle(elementID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.elements[h]; !ok {
		s.elements[h] = &elementState{values: make(map[string]ir.Value)}
		slog.Debug("element registered", "element", elementID)
	}
	return h
}

// Has reports whether a handle is currently registered.
func (s *Store) Has(h Handle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.elements[h]
	return ok
}

// Handles returns all registered handles. Order is unspecified; callers
// that need determinism must sort.
func (s *Store) Handles() []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Handle, 0, len(s.elements))
	for h := range s.elements {
		out = append(out, h)
	}
	return out
}

// SetFlag updates one flag and reports whether the effective value actually
// changed. No-op sets return false so callers can skip recomputation.
//
// Failure modes:
//   - *ir.UnknownFlagError: flag not in the table's universe
//   - *ir.InvalidValueError: value outside the flag's domain
//   - *ConcurrentMutationError: another mutation for this element is in
//     flight (caller protocol violation, never silently queued here)
//   - *UnknownHandleError: handle is not registered
//
// A rejected update leaves the element's state untouched.
func (s *Store) SetFlag(h Handle, flag string, value ir.Value) (bool, error) {
	s.mu.RLock()
	elem, ok := s.elements[h]
	s.mu.RUnlock()
	if !ok {
		return false, &UnknownHandleError{Handle: h}
	}

	decl, ok := s.tbl.Decl(flag)
	if !ok {
		return false, &ir.UnknownFlagError{Flag: flag}
	}
	if err := decl.Check(value); err != nil {
		return false, err
	}

	if !elem.mu.TryLock() {
		return false, &ConcurrentMutationError{Handle: h, Flag: flag}
	}
	defer elem.mu.Unlock()

	// Effective current value: explicit set, else the declared default.
	current, set := elem.values[flag]
	if !set {
		current = decl.Default()
	}
	if ir.Equal(current, value) {
		return false, nil
	}

	elem.values[flag] = value
	return true, nil
}

// Snapshot returns an immutable copy of the element's state for the
// resolver. The live structure is never exposed.
func (s *Store) Snapshot(h Handle) (Snapshot, error) {
	s.mu.RLock()
	elem, ok := s.elements[h]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, &UnknownHandleError{Handle: h}
	}

	elem.mu.Lock()
	values := make(map[string]ir.Value, len(elem.values))
	for k, v := range elem.values {
		values[k] = v
	}
	elem.mu.Unlock()

	return Snapshot{tbl: s.tbl, values: values}, nil
}

// Unregister stops tracking an element and discards its state.
//
// Any running transitions must already be cancelled by the scheduler;
// otherwise the call fails with *DanglingTransitionError and the element
// stays registered. Silently dropping an element with live transitions is
// exactly the stuck-state bug class this check exists to surface.
func (s *Store) Unregister(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.elements[h]; !ok {
		return &UnknownHandleError{Handle: h}
	}

	if s.guard != nil {
		if n := s.guard.ActiveTransitions(h); n > 0 {
			return &DanglingTransitionError{Handle: h, Running: n}
		}
	}

	delete(s.elements, h)
	slog.Debug("element unregistered", "element", string(h))
	return nil
}

// Snapshot is an immutable copy of one element's flag state at a point in
// time. Reads of unset declared flags yield their defaults.
type Snapshot struct {
	tbl    *table.Table
	values map[string]ir.Value
}

// Get returns the effective value of a flag: the explicitly set value, the
// declared default when unset, or nil for flags outside the universe.
func (s Snapshot) Get(flag string) ir.Value {
	if v, ok := s.values[flag]; ok {
		return v
	}
	if s.tbl == nil {
		return nil
	}
	if decl, ok := s.tbl.Decl(flag); ok {
		return decl.Default()
	}
	return nil
}

// Explicit reports whether the flag was explicitly set (vs defaulted).
func (s Snapshot) Explicit(flag string) bool {
	_, ok := s.values[flag]
	return ok
}
