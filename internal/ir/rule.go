package ir

// TestOp is a predicate comparison operator.
type TestOp int

const (
	// OpEq matches when the flag's current value equals the test value.
	OpEq TestOp = iota + 1
	// OpNe matches when it does not (negation).
	OpNe
)

// String returns the operator's source form.
func (op TestOp) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	default:
		return "??"
	}
}

// FlagTest is a single comparison against one flag's current value.
// Root-scoped tests read the reserved root element's state instead of the
// element under evaluation, so ambient flags (theme, reduced-motion class,
// zen mode) can gate per-element rules without implicit global state.
type FlagTest struct {
	Flag  string `json:"flag"`
	Op    TestOp `json:"op"`
	Value Value  `json:"value"`
	Root  bool   `json:"root,omitempty"`
}

// Predicate is a conjunction of flag tests. Negation is expressed per test
// via OpNe; there is no disjunction at the rule level - OR is expressed by
// declaring multiple rules.
type Predicate []FlagTest

// Lookup resolves a flag's current value during matching. The root
// parameter selects the reserved root element's state. Implementations
// must return the flag's declared default when the flag was never set.
type Lookup func(flag string, root bool) Value

// Match evaluates the conjunction against the given lookup.
// An empty predicate matches unconditionally.
func (p Predicate) Match(get Lookup) bool {
	for _, t := range p {
		cur := get(t.Flag, t.Root)
		eq := cur != nil && Equal(cur, t.Value)
		if t.Op == OpEq && !eq {
			return false
		}
		if t.Op == OpNe && eq {
			return false
		}
	}
	return true
}

// Specificity is the number of tests. More constrained predicates outrank
// broader ones when no explicit priority is declared.
func (p Predicate) Specificity() int {
	return len(p)
}

// Rule maps a predicate to an ordered list of effects with a priority.
// Rules are immutable after table compilation.
type Rule struct {
	ID        string    `json:"id"`
	Predicate Predicate `json:"predicate"`
	Effects   []Effect  `json:"effects"`

	// Priority orders competing rules; higher wins. When HasPriority is
	// false the table derives it from predicate specificity.
	Priority    int  `json:"priority"`
	HasPriority bool `json:"has_priority"`
}
