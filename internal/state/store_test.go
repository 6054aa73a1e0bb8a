package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veneer-dev/veneer/internal/ir"
	"github.com/veneer-dev/veneer/internal/table"
)

func testTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.Compile([]ir.FlagDecl{
		{Name: "selected", Kind: ir.KindBool},
		{Name: "busy", Kind: ir.KindBool},
		{Name: "theme", Kind: ir.KindEnum, Symbols: []string{"light", "dark"}},
	}, nil)
	require.NoError(t, err)
	return tbl
}

func TestRegister_Idempotent(t *testing.T) {
	s := NewStore(testTable(t))

	h1 := s.Register("tab-1")
	changed, err := s.SetFlag(h1, "selected", ir.Bool(true))
	require.NoError(t, err)
	require.True(t, changed)

	// Re-registering returns the same handle and does NOT reset state.
	h2 := s.Register("tab-1")
	assert.Equal(t, h1, h2)

	snap, err := s.Snapshot(h2)
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(true), snap.Get("selected"))
}

func TestSetFlag_ReportsChange(t *testing.T) {
	s := NewStore(testTable(t))
	h := s.Register("tab-1")

	changed, err := s.SetFlag(h, "selected", ir.Bool(true))
	require.NoError(t, err)
	assert.True(t, changed)

	// Same value again is a no-op.
	changed, err = s.SetFlag(h, "selected", ir.Bool(true))
	require.NoError(t, err)
	assert.False(t, changed)

	// Setting an unset flag to its default is also a no-op: the effective
	// value does not move.
	changed, err = s.SetFlag(h, "busy", ir.Bool(false))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSetFlag_UnknownFlagAndInvalidValue(t *testing.T) {
	s := NewStore(testTable(t))
	h := s.Register("tab-1")

	_, err := s.SetFlag(h, "zen-split", ir.Bool(true))
	assert.True(t, ir.IsUnknownFlag(err))

	_, err = s.SetFlag(h, "theme", ir.Enum("sepia"))
	assert.True(t, ir.IsInvalidValue(err))

	// A rejected update leaves prior state intact.
	snap, err := s.Snapshot(h)
	require.NoError(t, err)
	assert.Equal(t, ir.Enum("light"), snap.Get("theme"))
}

func TestSetFlag_UnknownHandle(t *testing.T) {
	s := NewStore(testTable(t))

	_, err := s.SetFlag(Handle("ghost"), "selected", ir.Bool(true))
	assert.True(t, IsUnknownHandle(err))
}

func TestSnapshot_IsImmutableCopy(t *testing.T) {
	s := NewStore(testTable(t))
	h := s.Register("tab-1")

	_, err := s.SetFlag(h, "selected", ir.Bool(true))
	require.NoError(t, err)

	snap, err := s.Snapshot(h)
	require.NoError(t, err)

	// Later mutations must not be visible through an older snapshot.
	_, err = s.SetFlag(h, "selected", ir.Bool(false))
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(true), snap.Get("selected"))
}

func TestSnapshot_DefaultsForUnsetFlags(t *testing.T) {
	s := NewStore(testTable(t))
	h := s.Register("tab-1")

	snap, err := s.Snapshot(h)
	require.NoError(t, err)

	assert.Equal(t, ir.Bool(false), snap.Get("selected"))
	assert.Equal(t, ir.Enum("light"), snap.Get("theme"))
	assert.False(t, snap.Explicit("selected"))
	assert.Nil(t, snap.Get("never-declared"))
}

func TestConcurrentMutation_Rejected(t *testing.T) {
	s := NewStore(testTable(t))
	h := s.Register("tab-1")

	// Hold the element lock the way an in-flight mutation would.
	s.mu.RLock()
	elem := s.elements[h]
	s.mu.RUnlock()
	elem.mu.Lock()
	defer elem.mu.Unlock()

	_, err := s.SetFlag(h, "selected", ir.Bool(true))
	assert.True(t, IsConcurrentMutation(err))
}

type fakeGuard struct {
	running map[Handle]int
}

func (g fakeGuard) ActiveTransitions(h Handle) int {
	return g.running[h]
}

func TestUnregister_DanglingTransition(t *testing.T) {
	guard := fakeGuard{running: map[Handle]int{"tab-1": 2}}
	s := NewStore(testTable(t), WithTransitionGuard(guard))
	h := s.Register("tab-1")

	err := s.Unregister(h)
	require.Error(t, err)
	assert.True(t, IsDanglingTransition(err))
	assert.True(t, s.Has(h), "failed unregister must leave the element tracked")

	// Once transitions drain, unregister succeeds and state is gone.
	guard.running["tab-1"] = 0
	require.NoError(t, s.Unregister(h))
	assert.False(t, s.Has(h))

	assert.True(t, IsUnknownHandle(s.Unregister(h)))
}
