package ir

import (
	"fmt"
	"strconv"
)

// Value is a sealed interface over the three flag value domains.
// Only Bool, Enum, and Int implement it. There is no float domain:
// fractional values would make predicate matching order-sensitive to
// rounding and break deterministic resolution.
type Value interface {
	flagValue() // Sealed - only these types implement it
	fmt.Stringer
}

// Bool is a boolean flag value.
type Bool bool

func (Bool) flagValue() {}

// String returns "true" or "false".
func (b Bool) String() string {
	return strconv.FormatBool(bool(b))
}

// Enum is a flag value drawn from a closed set of declared symbols.
type Enum string

func (Enum) flagValue() {}

func (e Enum) String() string {
	return string(e)
}

// Int is a small integer flag value (e.g. a workspace index).
// Always int64, never float.
type Int int64

func (Int) flagValue() {}

func (i Int) String() string {
	return strconv.FormatInt(int64(i), 10)
}

// Equal reports whether two values are the same domain and the same value.
// Values of different kinds are never equal, even when their string forms
// coincide (Enum("1") != Int(1)).
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Enum:
		bv, ok := b.(Enum)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	default:
		return false
	}
}

// kindOf returns the FlagKind a value belongs to.
func kindOf(v Value) FlagKind {
	switch v.(type) {
	case Bool:
		return KindBool
	case Enum:
		return KindEnum
	case Int:
		return KindInt
	default:
		return kindInvalid
	}
}
