package chain

import (
	"errors"
	"fmt"
)

// Messages integrators and downstream tests match on. Keep them stable.
const (
	msgNoScope = "resolvr: resolve was called outside of any scope and without a fallback; " +
		"create a scope for this call or pass WithFallback"

	msgDeferredContinuation = "resolvr: next was called after the enhancer returned; " +
		"a continuation may only be called synchronously while its enhancer is running"

	msgDirectInstanceReturn = "resolvr: a chain link returned a pre-built instance instead of a handler; " +
		"return the handler itself and let the caller render it"
)

var (
	// ErrNoScope is returned when resolution is attempted with no enclosing
	// scope and no fallback.
	ErrNoScope = errors.New(msgNoScope)

	// ErrDeferredContinuation is returned by a continuation that is invoked
	// after the resolver invocation that received it has returned.
	ErrDeferredContinuation = errors.New(msgDeferredContinuation)

	// ErrInvalidChain is the category of every *InvalidChainError.
	ErrInvalidChain = errors.New("resolvr: invalid chain")

	// ErrDirectInstanceReturn is the category of every *DirectInstanceReturnError.
	ErrDirectInstanceReturn = errors.New(msgDirectInstanceReturn)

	// ErrInvalidHandlerReturn is the category of every *InvalidHandlerReturnError.
	ErrInvalidHandlerReturn = errors.New("resolvr: a chain link returned an invalid handler")
)

// InvalidChainError reports a chain that is not an ordered list of middleware.
type InvalidChainError struct {
	Index  int
	Reason string
}

func (e *InvalidChainError) Error() string {
	return fmt.Sprintf("resolvr: invalid chain: entry %d: %s", e.Index, e.Reason)
}

func (e *InvalidChainError) Unwrap() error { return ErrInvalidChain }

// DirectInstanceReturnError reports a link that answered with an already
// rendered value rather than a handler.
type DirectInstanceReturnError struct {
	Link  int
	Value Result
}

func (e *DirectInstanceReturnError) Error() string { return msgDirectInstanceReturn }

func (e *DirectInstanceReturnError) Unwrap() error { return ErrDirectInstanceReturn }

// InvalidHandlerReturnError reports a link that answered with a value that is
// neither a handler nor one of the no-handler sentinels.
type InvalidHandlerReturnError struct {
	Link  int
	Value Result
}

func (e *InvalidHandlerReturnError) Error() string {
	return fmt.Sprintf("resolvr: a chain link returned an invalid handler (link %d returned %T); "+
		"links must return a handler, nil, false or chain.Absent", e.Link, e.Value)
}

func (e *InvalidHandlerReturnError) Unwrap() error { return ErrInvalidHandlerReturn }

// PanicError wraps a panic raised by middleware code during resolution.
type PanicError struct {
	Scope string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("resolvr: scope %s: middleware panic: %v", e.Scope, e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Error kinds reported to observers.
const (
	KindNoScope              = "no_scope"
	KindDeferredContinuation = "deferred_continuation"
	KindInvalidChain         = "invalid_chain"
	KindDirectInstanceReturn = "direct_instance_return"
	KindInvalidHandlerReturn = "invalid_handler_return"
	KindPanic                = "panic"
	KindOther                = "other"
)

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	var pe *PanicError
	switch {
	case errors.Is(err, ErrNoScope):
		return KindNoScope
	case errors.Is(err, ErrDeferredContinuation):
		return KindDeferredContinuation
	case errors.Is(err, ErrInvalidChain):
		return KindInvalidChain
	case errors.Is(err, ErrDirectInstanceReturn):
		return KindDirectInstanceReturn
	case errors.Is(err, ErrInvalidHandlerReturn):
		return KindInvalidHandlerReturn
	case errors.As(err, &pe):
		return KindPanic
	}
	return KindOther
}
