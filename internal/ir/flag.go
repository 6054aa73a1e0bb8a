package ir

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FlagKind identifies a flag's value domain.
type FlagKind int

const (
	kindInvalid FlagKind = iota

	// KindBool is a boolean flag (e.g. selected, busy, pinned).
	KindBool
	// KindEnum is a closed symbol set (e.g. data-theme: light|dark).
	KindEnum
	// KindInt is a bounded small integer (e.g. a workspace index).
	KindInt
)

// String returns the kind name used in rule-table sources.
func (k FlagKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindInt:
		return "int"
	default:
		return "invalid"
	}
}

// FlagDecl declares a flag and its value domain. Declarations are part of
// the compiled rule table's flag universe and never change afterwards.
//
// Every declared flag has a default value used when an element has never
// received an explicit set: false for bool, the first declared symbol
// (or DefaultSym) for enum, Min for int. Defaults keep predicate matching
// total - a predicate over a never-set flag still evaluates deterministically.
type FlagDecl struct {
	Name string   `json:"name"`
	Kind FlagKind `json:"kind"`

	// Symbols is the closed domain for enum flags, in declaration order.
	Symbols []string `json:"symbols,omitempty"`

	// DefaultSym overrides the enum default (must be one of Symbols).
	DefaultSym string `json:"default_sym,omitempty"`

	// Min and Max bound int flags (inclusive).
	Min int64 `json:"min,omitempty"`
	Max int64 `json:"max,omitempty"`
}

// Default returns the flag's default value.
func (d FlagDecl) Default() Value {
	switch d.Kind {
	case KindBool:
		return Bool(false)
	case KindEnum:
		if d.DefaultSym != "" {
			return Enum(d.DefaultSym)
		}
		if len(d.Symbols) > 0 {
			return Enum(d.Symbols[0])
		}
		return Enum("")
	case KindInt:
		return Int(d.Min)
	default:
		return Bool(false)
	}
}

// Check validates that v belongs to the declared domain.
// Returns *InvalidValueError otherwise.
func (d FlagDecl) Check(v Value) error {
	if kindOf(v) != d.Kind {
		return &InvalidValueError{
			Flag:   d.Name,
			Value:  v.String(),
			Reason: fmt.Sprintf("kind mismatch: flag is %s, value is %s", d.Kind, kindOf(v)),
		}
	}

	switch val := v.(type) {
	case Enum:
		for _, sym := range d.Symbols {
			if string(val) == sym {
				return nil
			}
		}
		return &InvalidValueError{
			Flag:   d.Name,
			Value:  v.String(),
			Reason: fmt.Sprintf("not in enum domain {%s}", strings.Join(d.Symbols, ", ")),
		}
	case Int:
		if int64(val) < d.Min || int64(val) > d.Max {
			return &InvalidValueError{
				Flag:   d.Name,
				Value:  v.String(),
				Reason: fmt.Sprintf("outside range [%d, %d]", d.Min, d.Max),
			}
		}
	}

	return nil
}

// Parse translates a raw attribute string from the host UI into the flag's
// declared domain. Returns *InvalidValueError if the raw form does not
// parse into the domain.
//
// Bool accepts "true"/"false" plus the attribute-presence forms "" and the
// flag's own name (a boolean DOM attribute is present with an empty or
// self-named value).
func (d FlagDecl) Parse(raw string) (Value, error) {
	switch d.Kind {
	case KindBool:
		switch raw {
		case "true", "", d.Name:
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return nil, &InvalidValueError{Flag: d.Name, Value: raw, Reason: "not a boolean"}

	case KindEnum:
		v := Enum(raw)
		if err := d.Check(v); err != nil {
			return nil, err
		}
		return v, nil

	case KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &InvalidValueError{Flag: d.Name, Value: raw, Reason: "not an integer"}
		}
		v := Int(n)
		if err := d.Check(v); err != nil {
			return nil, err
		}
		return v, nil

	default:
		return nil, &InvalidValueError{Flag: d.Name, Value: raw, Reason: "flag has invalid kind"}
	}
}

// UnknownFlagError reports a mutation against a flag that is not part of
// the compiled table's flag universe. Unknown flags are never inferred.
type UnknownFlagError struct {
	Flag string
}

func (e *UnknownFlagError) Error() string {
	return fmt.Sprintf("unknown flag %q: not declared in the rule table", e.Flag)
}

// InvalidValueError reports a value outside a flag's declared domain.
// Recovery is local: the offending update is dropped and the element keeps
// its last valid state.
type InvalidValueError struct {
	Flag   string
	Value  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for flag %q: %s", e.Value, e.Flag, e.Reason)
}

// IsUnknownFlag reports whether err is (or wraps) an UnknownFlagError.
func IsUnknownFlag(err error) bool {
	var ufe *UnknownFlagError
	return errors.As(err, &ufe)
}

// IsInvalidValue reports whether err is (or wraps) an InvalidValueError.
func IsInvalidValue(err error) bool {
	var ive *InvalidValueError
	return errors.As(err, &ive)
}
