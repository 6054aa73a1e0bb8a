package state

import (
	"errors"
	"fmt"
)

// UnknownHandleError reports an operation against a handle that is not
// registered. Always a caller bug: the bridge must register before
// mutating and must not touch a handle after unregistering it.
type UnknownHandleError struct {
	Handle Handle
}

func (e *UnknownHandleError) Error() string {
	return fmt.Sprintf("unknown handle %q: element is not registered", string(e.Handle))
}

// ConcurrentMutationError reports two in-flight mutations for the same
// element. Mutations are never interleaved at the field level; the loser
// is rejected outright so the resolver can never observe a torn state.
type ConcurrentMutationError struct {
	Handle Handle
	Flag   string
}

func (e *ConcurrentMutationError) Error() string {
	return fmt.Sprintf("concurrent mutation on element %q (flag %q): mutations per element must be serialized", string(e.Handle), e.Flag)
}

// DanglingTransitionError reports an Unregister attempted while the
// scheduler still owns running transitions for the element. The caller
// must cancel them first; masking this produces stuck animations.
type DanglingTransitionError struct {
	Handle  Handle
	Running int
}

func (e *DanglingTransitionError) Error() string {
	return fmt.Sprintf("element %q still has %d running transition(s): cancel before unregister", string(e.Handle), e.Running)
}

// IsUnknownHandle reports whether err is (or wraps) an UnknownHandleError.
func IsUnknownHandle(err error) bool {
	var uhe *UnknownHandleError
	return errors.As(err, &uhe)
}

// IsConcurrentMutation reports whether err is (or wraps) a
// ConcurrentMutationError.
func IsConcurrentMutation(err error) bool {
	var cme *ConcurrentMutationError
	return errors.As(err, &cme)
}

// IsDanglingTransition reports whether err is (or wraps) a
// DanglingTransitionError.
func IsDanglingTransition(err error) bool {
	var dte *DanglingTransitionError
	return errors.As(err, &dte)
}
