// Package compiler loads rule-table sources written in CUE into the
// engine's IR. Loading is fail-fast: a table with any compile or
// validation error never partially loads.
//
// Source format:
//
//	rules: {
//		flags: {
//			selected: "bool"
//			theme: {kind: "enum", symbols: ["light", "dark"], default: "light"}
//			depth: {kind: "int", min: 0, max: 16}
//		}
//		rule: {
//			"selected-accent": {
//				priority: 5
//				when: [
//					{flag: "selected", is: true},
//					{flag: "busy", not: true},
//					{flag: "theme", is: "dark", root: true},
//				]
//				effects: [
//					{set: "color", to: "accent"},
//					{transition: "pulse", duration: "200ms", trigger: "toggle"},
//				]
//			}
//		}
//	}
//
// Rule declaration order is significant: equal-priority channel conflicts
// resolve in favor of the later declaration.
package compiler

import (
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/veneer-dev/veneer/internal/ir"
)

// Source is a parsed but not yet semantically checked rule-table source.
// Flags and Rules preserve declaration order.
type Source struct {
	Flags []ir.FlagDecl
	Rules []ir.Rule
}

// Load reads, parses, and validates a rule-table file.
// Any error is fatal; there is no partial result.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule table: %w", err)
	}
	return LoadBytes(path, data)
}

// LoadBytes parses and validates rule-table source text. The filename is
// used for error positions only.
func LoadBytes(filename string, data []byte) (*Source, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	src, err := CompileSource(v.LookupPath(cue.ParsePath("rules")))
	if err != nil {
		return nil, err
	}
	if errs := Validate(src); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return src, nil
}

// CompileSource parses a CUE value into a Source.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the rules struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rules: { flags: {...}, rule: {...} }`)
//	src, err := CompileSource(v.LookupPath(cue.ParsePath("rules")))
func CompileSource(v cue.Value) (*Source, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.Exists() {
		return nil, &CompileError{
			Field:   "rules",
			Message: "rules struct is required",
		}
	}

	src := &Source{}

	flags, err := parseFlags(v)
	if err != nil {
		return nil, err
	}
	src.Flags = flags

	rules, err := parseRules(v)
	if err != nil {
		return nil, err
	}
	src.Rules = rules

	return src, nil
}

// parseFlags extracts flag declarations. Each field is either a kind name
// shorthand ("bool", "int") or a struct with kind plus domain fields.
func parseFlags(v cue.Value) ([]ir.FlagDecl, error) {
	flagsVal := v.LookupPath(cue.ParsePath("flags"))
	if !flagsVal.Exists() {
		return nil, &CompileError{
			Field:   "flags",
			Message: "flags struct is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := flagsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.FlagDecl
	for iter.Next() {
		decl, err := parseFlagDecl(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

// parseFlagDecl parses one flag declaration, shorthand or struct form.
func parseFlagDecl(name string, v cue.Value) (ir.FlagDecl, error) {
	decl := ir.FlagDecl{Name: name}

	// Shorthand: selected: "bool"
	if kindStr, err := v.String(); err == nil {
		kind, ok := parseKind(kindStr)
		if !ok || kind == ir.KindEnum {
			return decl, &CompileError{
				Field:   fmt.Sprintf("flags.%s", name),
				Message: fmt.Sprintf("invalid kind shorthand %q (enum flags need the struct form with symbols)", kindStr),
				Pos:     v.Pos(),
			}
		}
		decl.Kind = kind
		return decl, nil
	}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return decl, &CompileError{
			Field:   fmt.Sprintf("flags.%s.kind", name),
			Message: "kind is required",
			Pos:     v.Pos(),
		}
	}
	kindStr, err := kindVal.String()
	if err != nil {
		return decl, formatCUEError(err)
	}
	kind, ok := parseKind(kindStr)
	if !ok {
		return decl, &CompileError{
			Field:   fmt.Sprintf("flags.%s.kind", name),
			Message: fmt.Sprintf("invalid kind %q, must be \"bool\", \"enum\", or \"int\"", kindStr),
			Pos:     kindVal.Pos(),
		}
	}
	decl.Kind = kind

	symsVal := v.LookupPath(cue.ParsePath("symbols"))
	if symsVal.Exists() {
		symIter, err := symsVal.List()
		if err != nil {
			return decl, formatCUEError(err)
		}
		for symIter.Next() {
			sym, err := symIter.Value().String()
			if err != nil {
				return decl, formatCUEError(err)
			}
			decl.Symbols = append(decl.Symbols, sym)
		}
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		def, err := defVal.String()
		if err != nil {
			return decl, formatCUEError(err)
		}
		decl.DefaultSym = def
	}

	minVal := v.LookupPath(cue.ParsePath("min"))
	if minVal.Exists() {
		decl.Min, err = minVal.Int64()
		if err != nil {
			return decl, formatCUEError(err)
		}
	}
	maxVal := v.LookupPath(cue.ParsePath("max"))
	if maxVal.Exists() {
		decl.Max, err = maxVal.Int64()
		if err != nil {
			return decl, formatCUEError(err)
		}
	}

	return decl, nil
}

// parseKind maps a kind name to its FlagKind.
func parseKind(s string) (ir.FlagKind, bool) {
	switch s {
	case "bool":
		return ir.KindBool, true
	case "enum":
		return ir.KindEnum, true
	case "int":
		return ir.KindInt, true
	default:
		return 0, false
	}
}

// parseRules extracts rule declarations in source order.
func parseRules(v cue.Value) ([]ir.Rule, error) {
	ruleVal := v.LookupPath(cue.ParsePath("rule"))
	if !ruleVal.Exists() {
		return nil, nil
	}

	iter, err := ruleVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []ir.Rule
	for iter.Next() {
		// Rule IDs may be quoted labels, e.g. rule: {"selected-accent": ...}
		id := strings.Trim(iter.Label(), `"`)
		rule, err := parseRule(id, iter.Value())
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// parseRule parses one rule block.
func parseRule(id string, v cue.Value) (ir.Rule, error) {
	rule := ir.Rule{ID: id}

	prioVal := v.LookupPath(cue.ParsePath("priority"))
	if prioVal.Exists() {
		prio, err := prioVal.Int64()
		if err != nil {
			return rule, &CompileError{
				Field:   fmt.Sprintf("rule.%s.priority", id),
				Message: "priority must be an integer",
				Pos:     prioVal.Pos(),
			}
		}
		rule.Priority = int(prio)
		rule.HasPriority = true
	}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if whenVal.Exists() {
		testIter, err := whenVal.List()
		if err != nil {
			return rule, formatCUEError(err)
		}
		for testIter.Next() {
			test, err := parseFlagTest(id, testIter.Value())
			if err != nil {
				return rule, err
			}
			rule.Predicate = append(rule.Predicate, test)
		}
	}

	effectsVal := v.LookupPath(cue.ParsePath("effects"))
	if !effectsVal.Exists() {
		return rule, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", id),
			Message: "effects are required",
			Pos:     v.Pos(),
		}
	}
	effIter, err := effectsVal.List()
	if err != nil {
		return rule, formatCUEError(err)
	}
	for effIter.Next() {
		eff, err := parseEffect(id, effIter.Value())
		if err != nil {
			return rule, err
		}
		rule.Effects = append(rule.Effects, eff)
	}

	return rule, nil
}

// parseFlagTest parses one predicate test: {flag: "x", is: v} or
// {flag: "x", not: v}, with optional root: true for ambient flags.
func parseFlagTest(ruleID string, v cue.Value) (ir.FlagTest, error) {
	var test ir.FlagTest

	flagVal := v.LookupPath(cue.ParsePath("flag"))
	if !flagVal.Exists() {
		return test, &CompileError{
			Field:   fmt.Sprintf("rule.%s.when", ruleID),
			Message: "test requires a 'flag' field",
			Pos:     v.Pos(),
		}
	}
	flag, err := flagVal.String()
	if err != nil {
		return test, formatCUEError(err)
	}
	test.Flag = flag

	isVal := v.LookupPath(cue.ParsePath("is"))
	notVal := v.LookupPath(cue.ParsePath("not"))
	switch {
	case isVal.Exists() && notVal.Exists():
		return test, &CompileError{
			Field:   fmt.Sprintf("rule.%s.when", ruleID),
			Message: fmt.Sprintf("test on %q has both 'is' and 'not'; use exactly one", flag),
			Pos:     v.Pos(),
		}
	case isVal.Exists():
		test.Op = ir.OpEq
		test.Value, err = parseValue(ruleID, flag, isVal)
	case notVal.Exists():
		test.Op = ir.OpNe
		test.Value, err = parseValue(ruleID, flag, notVal)
	default:
		return test, &CompileError{
			Field:   fmt.Sprintf("rule.%s.when", ruleID),
			Message: fmt.Sprintf("test on %q requires 'is' or 'not'", flag),
			Pos:     v.Pos(),
		}
	}
	if err != nil {
		return test, err
	}

	rootVal := v.LookupPath(cue.ParsePath("root"))
	if rootVal.Exists() {
		root, err := rootVal.Bool()
		if err != nil {
			return test, formatCUEError(err)
		}
		test.Root = root
	}

	return test, nil
}

// parseValue maps a CUE scalar to a flag value by its concrete kind.
// Floats are forbidden: fractional flag values would make matching
// sensitive to rounding.
func parseValue(ruleID, flag string, v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Enum(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.when", ruleID),
			Message: fmt.Sprintf("float values are forbidden for flag %q, use int", flag),
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.when", ruleID),
			Message: fmt.Sprintf("test value for flag %q must be bool, string, or int", flag),
			Pos:     v.Pos(),
		}
	}
}

// parseEffect parses one effect: static {set, to, channel?} or transition
// {transition, duration, easing?, trigger, channel?}.
func parseEffect(ruleID string, v cue.Value) (ir.Effect, error) {
	setVal := v.LookupPath(cue.ParsePath("set"))
	transVal := v.LookupPath(cue.ParsePath("transition"))

	switch {
	case setVal.Exists() && transVal.Exists():
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", ruleID),
			Message: "effect has both 'set' and 'transition'; use exactly one",
			Pos:     v.Pos(),
		}
	case setVal.Exists():
		return parseStaticEffect(ruleID, setVal, v)
	case transVal.Exists():
		return parseTransitionEffect(ruleID, transVal, v)
	default:
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", ruleID),
			Message: "effect requires 'set' or 'transition'",
			Pos:     v.Pos(),
		}
	}
}

func parseStaticEffect(ruleID string, setVal, v cue.Value) (ir.Effect, error) {
	prop, err := setVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	toVal := v.LookupPath(cue.ParsePath("to"))
	if !toVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", ruleID),
			Message: fmt.Sprintf("static effect on %q requires a 'to' value", prop),
			Pos:     v.Pos(),
		}
	}
	to, err := toVal.String()
	if err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", ruleID),
			Message: fmt.Sprintf("static effect value for %q must be a string", prop),
			Pos:     toVal.Pos(),
		}
	}

	eff := ir.StaticEffect{Property: prop, Value: to}
	eff.Chan, err = parseChannel(v)
	if err != nil {
		return nil, err
	}
	return eff, nil
}

func parseTransitionEffect(ruleID string, transVal, v cue.Value) (ir.Effect, error) {
	name, err := transVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	eff := ir.TransitionEffect{Name: name}

	durVal := v.LookupPath(cue.ParsePath("duration"))
	if !durVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", ruleID),
			Message: fmt.Sprintf("transition %q requires a duration", name),
			Pos:     v.Pos(),
		}
	}
	durStr, err := durVal.String()
	if err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", ruleID),
			Message: fmt.Sprintf("duration for transition %q must be a string like \"200ms\"", name),
			Pos:     durVal.Pos(),
		}
	}
	eff.Duration, err = time.ParseDuration(durStr)
	if err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", ruleID),
			Message: fmt.Sprintf("invalid duration %q for transition %q", durStr, name),
			Pos:     durVal.Pos(),
		}
	}

	easeVal := v.LookupPath(cue.ParsePath("easing"))
	if easeVal.Exists() {
		eff.Easing, err = easeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
	}

	trigVal := v.LookupPath(cue.ParsePath("trigger"))
	if !trigVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", ruleID),
			Message: fmt.Sprintf("transition %q requires a trigger (\"enter\", \"exit\", or \"toggle\")", name),
			Pos:     v.Pos(),
		}
	}
	trigStr, err := trigVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	trigger, ok := ir.ParseTrigger(trigStr)
	if !ok {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rule.%s.effects", ruleID),
			Message: fmt.Sprintf("invalid trigger %q, must be \"enter\", \"exit\", or \"toggle\"", trigStr),
			Pos:     trigVal.Pos(),
		}
	}
	eff.Trigger = trigger

	eff.Chan, err = parseChannel(v)
	if err != nil {
		return nil, err
	}
	return eff, nil
}

// parseChannel reads the optional channel override.
func parseChannel(v cue.Value) (string, error) {
	chVal := v.LookupPath(cue.ParsePath("channel"))
	if !chVal.Exists() {
		return "", nil
	}
	ch, err := chVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return ch, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
