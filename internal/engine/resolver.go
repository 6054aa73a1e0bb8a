package engine

import (
	"sort"

	"github.com/veneer-dev/veneer/internal/ir"
	"github.com/veneer-dev/veneer/internal/state"
	"github.com/veneer-dev/veneer/internal/table"
)

// Resolver maps flag snapshots to ordered effect sets.
//
// Determinism is the contract: identical snapshots always produce
// identical, identically-ordered effect sets. Every tie has a total break
// (priority, then rule declaration order, then effect order within the
// rule), so the output never depends on map iteration or evaluation order.
type Resolver struct {
	tbl *table.Table
}

// NewResolver creates a Resolver over a compiled table.
func NewResolver(tbl *table.Table) *Resolver {
	return &Resolver{tbl: tbl}
}

// Table returns the compiled table the resolver evaluates against.
func (r *Resolver) Table() *table.Table {
	return r.tbl
}

// MatchSet caches which rules currently match one element. It lets a
// single-flag mutation re-evaluate only the rules referencing that flag
// (O(rules mentioning the flag)) instead of scanning the whole table.
//
// A MatchSet belongs to exactly one element and is owned by the bridge;
// the Resolver only reads and updates it on behalf of the caller.
type MatchSet struct {
	matched []bool
}

// lookup adapts a pair of snapshots (element, reserved root) to the
// predicate Lookup contract.
func lookup(snap, root state.Snapshot) ir.Lookup {
	return func(flag string, isRoot bool) ir.Value {
		if isRoot {
			return root.Get(flag)
		}
		return snap.Get(flag)
	}
}

// ResolveFull evaluates every rule against the snapshot and returns the
// element's MatchSet plus the ordered effect set. Used when an element is
// first observed and as the determinism baseline the incremental path must
// agree with.
func (r *Resolver) ResolveFull(snap, root state.Snapshot) (*MatchSet, EffectSet) {
	get := lookup(snap, root)

	ms := &MatchSet{matched: make([]bool, r.tbl.Len())}
	for i := 0; i < r.tbl.Len(); i++ {
		ms.matched[i] = r.tbl.Match(i, get)
	}
	return ms, r.collect(ms)
}

// ResolveDelta re-evaluates only the rules whose predicates mention the
// changed flag, updates the MatchSet in place, and returns the new ordered
// effect set. Rules not referencing the flag cannot have changed match
// state, so their cached result stands.
func (r *Resolver) ResolveDelta(ms *MatchSet, changedFlag string, snap, root state.Snapshot) EffectSet {
	get := lookup(snap, root)

	for _, idx := range r.tbl.RulesReferencing(changedFlag) {
		ms.matched[idx] = r.tbl.Match(idx, get)
	}
	return r.collect(ms)
}

// collect builds the ordered effect set from a match set.
//
// Conflict policy: when two matching rules place an effect on the same
// channel, the higher-priority rule's effect wins outright and the loser
// is dropped entirely (no blending). Priority ties go to the later
// declaration; within one rule, the later effect. Non-conflicting effects
// from both rules all apply.
func (r *Resolver) collect(ms *MatchSet) EffectSet {
	winners := make(map[string]ResolvedEffect)

	for idx, ok := range ms.matched {
		if !ok {
			continue
		}
		rule := r.tbl.Rule(idx)
		for effIdx, eff := range rule.Effects {
			cand := ResolvedEffect{
				Effect:      eff,
				RuleID:      rule.ID,
				Priority:    rule.Priority,
				ruleIndex:   idx,
				effectIndex: effIdx,
			}
			ch := eff.Channel()
			cur, taken := winners[ch]
			if !taken || cand.outranks(cur) {
				winners[ch] = cand
			}
		}
	}

	out := make([]ResolvedEffect, 0, len(winners))
	for _, w := range winners {
		out = append(out, w)
	}
	// Priority descending, then declaration order ascending, then effect
	// order within the rule. Total - no two entries compare equal.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].ruleIndex != out[j].ruleIndex {
			return out[i].ruleIndex < out[j].ruleIndex
		}
		return out[i].effectIndex < out[j].effectIndex
	})

	return EffectSet{effects: out}
}

// ResolvedEffect is one winning effect with its provenance.
type ResolvedEffect struct {
	Effect   ir.Effect
	RuleID   string
	Priority int

	ruleIndex   int
	effectIndex int
}

// outranks reports whether e beats cur for the same channel: higher
// priority, or equal priority declared later (later wins, per cascade
// semantics).
func (e ResolvedEffect) outranks(cur ResolvedEffect) bool {
	if e.Priority != cur.Priority {
		return e.Priority > cur.Priority
	}
	if e.ruleIndex != cur.ruleIndex {
		return e.ruleIndex > cur.ruleIndex
	}
	return e.effectIndex > cur.effectIndex
}

// EffectSet is the ordered result of one resolution: at most one effect
// per channel, ordered by priority descending then declaration ascending.
type EffectSet struct {
	effects []ResolvedEffect
}

// Effects returns the ordered resolved effects.
// Callers must not mutate the returned slice.
func (s EffectSet) Effects() []ResolvedEffect {
	return s.effects
}

// Len returns the number of winning effects.
func (s EffectSet) Len() int {
	return len(s.effects)
}

// Statics returns the winning static effects keyed by channel.
func (s EffectSet) Statics() map[string]ir.StaticEffect {
	out := make(map[string]ir.StaticEffect)
	for _, re := range s.effects {
		if eff, ok := re.Effect.(ir.StaticEffect); ok {
			out[re.Effect.Channel()] = eff
		}
	}
	return out
}

// Transitions returns the winning transition effects keyed by channel.
func (s EffectSet) Transitions() map[string]ir.TransitionEffect {
	out := make(map[string]ir.TransitionEffect)
	for _, re := range s.effects {
		if eff, ok := re.Effect.(ir.TransitionEffect); ok {
			out[re.Effect.Channel()] = eff
		}
	}
	return out
}

// Equal reports whether two effect sets are identical, including order.
func (s EffectSet) Equal(other EffectSet) bool {
	if len(s.effects) != len(other.effects) {
		return false
	}
	for i := range s.effects {
		a, b := s.effects[i], other.effects[i]
		if a.Effect != b.Effect || a.RuleID != b.RuleID || a.Priority != b.Priority {
			return false
		}
	}
	return true
}
