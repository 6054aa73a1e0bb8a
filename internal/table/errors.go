package table

import (
	"errors"
	"fmt"
	"strings"
)

// FlagRef identifies one predicate reference to an undeclared flag.
type FlagRef struct {
	RuleID string
	Flag   string
}

// UndeclaredFlagError reports every predicate flag that is missing from the
// declared universe. All offenders are collected before failing so one
// compile run surfaces the full damage.
type UndeclaredFlagError struct {
	Refs []FlagRef
}

func (e *UndeclaredFlagError) Error() string {
	parts := make([]string, len(e.Refs))
	for i, ref := range e.Refs {
		parts[i] = fmt.Sprintf("rule %q references undeclared flag %q", ref.RuleID, ref.Flag)
	}
	return "compile table: " + strings.Join(parts, "; ")
}

// IsUndeclaredFlag reports whether err is (or wraps) an UndeclaredFlagError.
func IsUndeclaredFlag(err error) bool {
	var ufe *UndeclaredFlagError
	return errors.As(err, &ufe)
}
