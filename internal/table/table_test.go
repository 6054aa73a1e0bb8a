package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veneer-dev/veneer/internal/ir"
)

func chromeFlags() []ir.FlagDecl {
	return []ir.FlagDecl{
		{Name: "selected", Kind: ir.KindBool},
		{Name: "busy", Kind: ir.KindBool},
		{Name: "pinned", Kind: ir.KindBool},
		{Name: "theme", Kind: ir.KindEnum, Symbols: []string{"light", "dark"}},
		{Name: "workspace", Kind: ir.KindInt, Min: 0, Max: 9},
	}
}

func TestCompile_BuildsInvertedIndex(t *testing.T) {
	rules := []ir.Rule{
		{
			ID:        "selected-accent",
			Predicate: ir.Predicate{{Flag: "selected", Op: ir.OpEq, Value: ir.Bool(true)}},
			Effects:   []ir.Effect{ir.StaticEffect{Property: "color", Value: "blue"}},
		},
		{
			ID: "busy-pulse",
			Predicate: ir.Predicate{
				{Flag: "busy", Op: ir.OpEq, Value: ir.Bool(true)},
				{Flag: "selected", Op: ir.OpNe, Value: ir.Bool(true)},
			},
			Effects: []ir.Effect{ir.TransitionEffect{Name: "pulse", Duration: 200 * time.Millisecond, Trigger: ir.TriggerToggle}},
		},
		{
			ID:      "base",
			Effects: []ir.Effect{ir.StaticEffect{Property: "opacity", Value: "1"}},
		},
	}

	tbl, err := Compile(chromeFlags(), rules)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, tbl.RulesReferencing("selected"))
	assert.Equal(t, []int{1}, tbl.RulesReferencing("busy"))
	assert.Empty(t, tbl.RulesReferencing("pinned"))
	assert.Equal(t, []int{2}, tbl.Unconditional())
	assert.NotEmpty(t, tbl.Hash())
}

func TestCompile_DerivesPriorityFromSpecificity(t *testing.T) {
	rules := []ir.Rule{
		{
			ID:        "narrow",
			Predicate: ir.Predicate{{Flag: "selected", Op: ir.OpEq, Value: ir.Bool(true)}, {Flag: "busy", Op: ir.OpEq, Value: ir.Bool(true)}},
			Effects:   []ir.Effect{ir.StaticEffect{Property: "color", Value: "red"}},
		},
		{
			ID:          "explicit",
			Predicate:   ir.Predicate{{Flag: "selected", Op: ir.OpEq, Value: ir.Bool(true)}},
			Effects:     []ir.Effect{ir.StaticEffect{Property: "color", Value: "blue"}},
			Priority:    50,
			HasPriority: true,
		},
	}

	tbl, err := Compile(chromeFlags(), rules)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Rule(0).Priority, "derived from two tests")
	assert.Equal(t, 50, tbl.Rule(1).Priority, "explicit priority preserved")
}

func TestCompile_UndeclaredFlagListsAllOffenders(t *testing.T) {
	rules := []ir.Rule{
		{
			ID:        "bad-one",
			Predicate: ir.Predicate{{Flag: "hovered", Op: ir.OpEq, Value: ir.Bool(true)}},
		},
		{
			ID:        "bad-two",
			Predicate: ir.Predicate{{Flag: "zen-split", Op: ir.OpEq, Value: ir.Bool(true)}},
		},
	}

	_, err := Compile(chromeFlags(), rules)
	require.Error(t, err)
	require.True(t, IsUndeclaredFlag(err))

	var ufe *UndeclaredFlagError
	require.ErrorAs(t, err, &ufe)
	require.Len(t, ufe.Refs, 2)
	assert.Equal(t, FlagRef{RuleID: "bad-one", Flag: "hovered"}, ufe.Refs[0])
	assert.Equal(t, FlagRef{RuleID: "bad-two", Flag: "zen-split"}, ufe.Refs[1])
}

func TestCompile_TestValueOutsideDomainFails(t *testing.T) {
	rules := []ir.Rule{{
		ID:        "bad-theme",
		Predicate: ir.Predicate{{Flag: "theme", Op: ir.OpEq, Value: ir.Enum("sepia")}},
	}}

	_, err := Compile(chromeFlags(), rules)
	require.Error(t, err)
	assert.True(t, ir.IsInvalidValue(err))
}

func TestCompile_RejectsMalformedDeclsAndDuplicates(t *testing.T) {
	_, err := Compile([]ir.FlagDecl{{Name: "theme", Kind: ir.KindEnum}}, nil)
	assert.Error(t, err, "empty enum domain")

	_, err = Compile([]ir.FlagDecl{
		{Name: "selected", Kind: ir.KindBool},
		{Name: "selected", Kind: ir.KindBool},
	}, nil)
	assert.Error(t, err, "duplicate flag")

	_, err = Compile([]ir.FlagDecl{{Name: "ws", Kind: ir.KindInt, Min: 5, Max: 1}}, nil)
	assert.Error(t, err, "inverted bounds")

	_, err = Compile(chromeFlags(), []ir.Rule{{ID: "r"}, {ID: "r"}})
	assert.Error(t, err, "duplicate rule ID")
}

func TestCompile_ContradictoryRulesStillCompile(t *testing.T) {
	// Semantic-intent validation is a non-goal: an unsatisfiable predicate
	// compiles fine, it just never matches.
	rules := []ir.Rule{{
		ID: "never",
		Predicate: ir.Predicate{
			{Flag: "selected", Op: ir.OpEq, Value: ir.Bool(true)},
			{Flag: "selected", Op: ir.OpNe, Value: ir.Bool(true)},
		},
	}}

	_, err := Compile(chromeFlags(), rules)
	assert.NoError(t, err)
}
