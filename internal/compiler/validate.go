package compiler

import (
	"fmt"
	"strings"

	"github.com/veneer-dev/veneer/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// General validation errors (E200)
	ErrUnsupportedType = "E200" // unsupported type for validation

	// Flag declaration errors (E201-E209)
	ErrNoFlags           = "E201" // at least one flag required
	ErrEnumNoSymbols     = "E202" // enum flag without symbols
	ErrEnumBadDefault    = "E203" // enum default not in symbol set
	ErrIntInvertedBounds = "E204" // int flag with min > max

	// Rule errors (E210-E219)
	ErrNoRules           = "E210" // at least one rule required
	ErrRuleNoEffects     = "E211" // rule without effects
	ErrDuplicateTest     = "E212" // predicate tests the same flag twice
	ErrEmptyEffectTarget = "E213" // static property or transition name empty
	ErrNegativeDuration  = "E214" // transition duration below zero
	ErrEmptyRuleID       = "E215" // rule with empty ID
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors aggregates a validation pass into one error value.
type ValidationErrors []ValidationError

// Error joins all collected errors, one per line.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "\n")
}

// Validate validates a parsed source against schema rules.
// Returns all errors found (does not fail-fast). Semantic checks that need
// the full flag universe (undeclared flags, domain membership) live in the
// table compiler; this pass catches everything visible from the source
// shape alone.
func Validate(v any) []ValidationError {
	switch src := v.(type) {
	case *Source:
		return validateSource(src)
	case Source:
		return validateSource(&src)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateSource(src *Source) []ValidationError {
	var errs []ValidationError

	// E201: at least one flag required
	if len(src.Flags) == 0 {
		errs = append(errs, ValidationError{
			Field:   "flags",
			Message: "at least one flag declaration is required",
			Code:    ErrNoFlags,
		})
	}

	for i, decl := range src.Flags {
		errs = append(errs, validateFlagDecl(i, decl)...)
	}

	// E210: at least one rule required
	if len(src.Rules) == 0 {
		errs = append(errs, ValidationError{
			Field:   "rule",
			Message: "at least one rule is required",
			Code:    ErrNoRules,
		})
	}

	for i, rule := range src.Rules {
		errs = append(errs, validateRule(i, rule)...)
	}

	return errs
}

func validateFlagDecl(i int, decl ir.FlagDecl) []ValidationError {
	var errs []ValidationError

	switch decl.Kind {
	case ir.KindEnum:
		// E202: enum flags need a non-empty symbol set
		if len(decl.Symbols) == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("flags[%d]", i),
				Message: fmt.Sprintf("enum flag %q declares no symbols", decl.Name),
				Code:    ErrEnumNoSymbols,
			})
		}
		// E203: explicit default must be a declared symbol
		if decl.DefaultSym != "" && !containsString(decl.Symbols, decl.DefaultSym) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("flags[%d].default", i),
				Message: fmt.Sprintf("default %q for flag %q is not a declared symbol", decl.DefaultSym, decl.Name),
				Code:    ErrEnumBadDefault,
			})
		}
	case ir.KindInt:
		// E204: inverted bounds make the domain empty
		if decl.Min > decl.Max {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("flags[%d]", i),
				Message: fmt.Sprintf("int flag %q has min %d > max %d", decl.Name, decl.Min, decl.Max),
				Code:    ErrIntInvertedBounds,
			})
		}
	}

	return errs
}

func validateRule(i int, rule ir.Rule) []ValidationError {
	var errs []ValidationError

	// E215: empty rule ID
	if strings.TrimSpace(rule.ID) == "" {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("rule[%d].id", i),
			Message: "rule ID must be non-empty",
			Code:    ErrEmptyRuleID,
		})
	}

	// E211: a rule with no effects can never change presentation
	if len(rule.Effects) == 0 {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("rule[%d].effects", i),
			Message: fmt.Sprintf("rule %q declares no effects", rule.ID),
			Code:    ErrRuleNoEffects,
		})
	}

	// E212: two tests on the same flag in one conjunction is either
	// redundant or unsatisfiable; both indicate an authoring mistake.
	seen := make(map[string]bool)
	for _, test := range rule.Predicate {
		key := test.Flag
		if test.Root {
			key = "root:" + key
		}
		if seen[key] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rule[%d].when", i),
				Message: fmt.Sprintf("rule %q tests flag %q more than once", rule.ID, test.Flag),
				Code:    ErrDuplicateTest,
			})
		}
		seen[key] = true
	}

	for j, eff := range rule.Effects {
		switch e := eff.(type) {
		case ir.StaticEffect:
			if strings.TrimSpace(e.Property) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("rule[%d].effects[%d]", i, j),
					Message: fmt.Sprintf("rule %q has a static effect with an empty property", rule.ID),
					Code:    ErrEmptyEffectTarget,
				})
			}
		case ir.TransitionEffect:
			if strings.TrimSpace(e.Name) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("rule[%d].effects[%d]", i, j),
					Message: fmt.Sprintf("rule %q has a transition with an empty name", rule.ID),
					Code:    ErrEmptyEffectTarget,
				})
			}
			if e.Duration < 0 {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("rule[%d].effects[%d]", i, j),
					Message: fmt.Sprintf("rule %q transition %q has negative duration %s", rule.ID, e.Name, e.Duration),
					Code:    ErrNegativeDuration,
				})
			}
		}
	}

	return errs
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
