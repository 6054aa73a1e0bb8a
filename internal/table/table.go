// Package table compiles flag declarations and rules into the immutable
// lookup structure the resolver evaluates against.
//
// Compilation validates the flag universe and materializes priorities; it
// performs no semantic-intent analysis (contradictory or unreachable rules
// compile successfully - dead-rule detection is a diagnostic, not a gate).
//
// The compiled table is read-only and safe to share across all elements
// without locking.
package table

import (
	"fmt"

	"github.com/veneer-dev/veneer/internal/ir"
)

// Table is a compiled rule table.
//
// Rules keep their declaration order; that order NEVER changes after
// compilation, because it is the final tie-break for both result ordering
// and channel conflicts.
type Table struct {
	flags     map[string]ir.FlagDecl
	flagOrder []string

	rules []ir.Rule // declaration order, priorities materialized

	// byFlag maps a flag name to the indices of rules whose predicates
	// mention it. A mutation to one flag re-evaluates only these rules,
	// not the whole table.
	byFlag map[string][]int

	// unconditional lists rules with empty predicates; they match every
	// snapshot and are never reached through byFlag.
	unconditional []int

	hash string
}

// Compile validates flags and rules and builds the inverted index.
//
// Failure modes:
//   - malformed flag declarations (duplicate names, empty enum domains,
//     defaults outside the domain, inverted int bounds)
//   - *UndeclaredFlagError when any predicate references a flag outside
//     the declared universe (all offenders collected, not fail-fast)
//   - predicate test values outside the referenced flag's domain
//
// Any failure is fatal to table load; a misconfigured table never
// partially compiles.
func Compile(flags []ir.FlagDecl, rules []ir.Rule) (*Table, error) {
	t := &Table{
		flags:  make(map[string]ir.FlagDecl, len(flags)),
		byFlag: make(map[string][]int),
	}

	for _, d := range flags {
		if err := checkDecl(d); err != nil {
			return nil, err
		}
		if _, dup := t.flags[d.Name]; dup {
			return nil, fmt.Errorf("compile table: duplicate flag declaration %q", d.Name)
		}
		t.flags[d.Name] = d
		t.flagOrder = append(t.flagOrder, d.Name)
	}

	var undeclared []FlagRef
	seenIDs := make(map[string]bool, len(rules))

	t.rules = make([]ir.Rule, len(rules))
	copy(t.rules, rules)

	for i := range t.rules {
		r := &t.rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("compile table: rule %d has no ID", i)
		}
		if seenIDs[r.ID] {
			return nil, fmt.Errorf("compile table: duplicate rule ID %q", r.ID)
		}
		seenIDs[r.ID] = true

		// Derive priority from specificity unless declared explicitly.
		if !r.HasPriority {
			r.Priority = r.Predicate.Specificity()
		}

		indexed := make(map[string]bool, len(r.Predicate))
		for _, test := range r.Predicate {
			decl, ok := t.flags[test.Flag]
			if !ok {
				undeclared = append(undeclared, FlagRef{RuleID: r.ID, Flag: test.Flag})
				continue
			}
			if err := decl.Check(test.Value); err != nil {
				return nil, fmt.Errorf("compile table: rule %q: %w", r.ID, err)
			}
			if !indexed[test.Flag] {
				t.byFlag[test.Flag] = append(t.byFlag[test.Flag], i)
				indexed[test.Flag] = true
			}
		}

		if len(r.Predicate) == 0 {
			t.unconditional = append(t.unconditional, i)
		}
	}

	if len(undeclared) > 0 {
		return nil, &UndeclaredFlagError{Refs: undeclared}
	}

	hash, err := ir.TableHash(flags, t.rules)
	if err != nil {
		return nil, fmt.Errorf("compile table: %w", err)
	}
	t.hash = hash

	return t, nil
}

func checkDecl(d ir.FlagDecl) error {
	switch d.Kind {
	case ir.KindBool:
		return nil
	case ir.KindEnum:
		if len(d.Symbols) == 0 {
			return fmt.Errorf("compile table: enum flag %q has an empty domain", d.Name)
		}
		seen := make(map[string]bool, len(d.Symbols))
		for _, s := range d.Symbols {
			if seen[s] {
				return fmt.Errorf("compile table: enum flag %q has duplicate symbol %q", d.Name, s)
			}
			seen[s] = true
		}
		if d.DefaultSym != "" && !seen[d.DefaultSym] {
			return fmt.Errorf("compile table: enum flag %q default %q not in domain", d.Name, d.DefaultSym)
		}
		return nil
	case ir.KindInt:
		if d.Min > d.Max {
			return fmt.Errorf("compile table: int flag %q has min %d > max %d", d.Name, d.Min, d.Max)
		}
		return nil
	default:
		return fmt.Errorf("compile table: flag %q has invalid kind", d.Name)
	}
}

// Decl returns a flag's declaration and whether it is part of the universe.
func (t *Table) Decl(flag string) (ir.FlagDecl, bool) {
	d, ok := t.flags[flag]
	return d, ok
}

// FlagNames returns the flag universe in declaration order.
func (t *Table) FlagNames() []string {
	out := make([]string, len(t.flagOrder))
	copy(out, t.flagOrder)
	return out
}

// Rules returns all rules in declaration order.
// Callers must not mutate the returned slice.
func (t *Table) Rules() []ir.Rule {
	return t.rules
}

// Rule returns the rule at a declaration index.
func (t *Table) Rule(idx int) ir.Rule {
	return t.rules[idx]
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// RulesReferencing returns indices of rules whose predicates mention the
// flag, in declaration order. This is the inverted-index entry point: a
// single-flag mutation touches only these rules.
func (t *Table) RulesReferencing(flag string) []int {
	return t.byFlag[flag]
}

// Unconditional returns indices of rules with empty predicates.
func (t *Table) Unconditional() []int {
	return t.unconditional
}

// Match evaluates one rule's predicate against a lookup.
func (t *Table) Match(idx int, get ir.Lookup) bool {
	return t.rules[idx].Predicate.Match(get)
}

// Hash returns the table's content-addressed identity.
func (t *Table) Hash() string {
	return t.hash
}
