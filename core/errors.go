package core

import (
	"errors"
	"fmt"
)

// Kind identifies one of the seven error kinds the core reports (spec §7).
type Kind int

const (
	// KindInvalidQueueID: queue id out of [0, N) and not a permitted sentinel.
	KindInvalidQueueID Kind = iota
	// KindInvalidArgument: All combined with a real queue id in a query.
	KindInvalidArgument
	// KindPromiseAlreadySet: set/setException on a non-Pending promise.
	KindPromiseAlreadySet
	// KindBadContext: coroutine-waiting form invoked outside a coroutine,
	// or with a yield handle that doesn't match the running task.
	KindBadContext
	// KindChainClosed: then/onError/finally after end() or a duplicate finally.
	KindChainClosed
	// KindTerminated: any operation on a terminated dispatcher or context.
	KindTerminated
	// KindUserException: a task body panicked; the recovered panic is
	// propagated via the error branch of its chain.
	KindUserException
)

func (k Kind) String() string {
	switch k {
	case KindInvalidQueueID:
		return "InvalidQueueId"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindPromiseAlreadySet:
		return "PromiseAlreadySet"
	case KindBadContext:
		return "BadContext"
	case KindChainClosed:
		return "ChainClosed"
	case KindTerminated:
		return "Terminated"
	case KindUserException:
		return "UserException"
	default:
		return "Unknown"
	}
}

// Error wraps one of the seven kinds with a message and, for
// KindUserException, the wrapped cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

func newErrf(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// UserException wraps a panic recovered from a task body as it propagates
// through a continuation chain. An error a body returns is propagated
// as-is, not wrapped.
func UserException(cause error) error {
	return &Error{Kind: KindUserException, Msg: "task raised an error", Cause: cause}
}

// Is lets errors.Is(err, core.ErrBadContext) style sentinels work against
// the Kind carried by *Error, by comparing Kind when both sides are *Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf returns the Kind carried by err, and ok=false if err is not (or
// does not wrap) a *Error produced by this package.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

var (
	// ErrInvalidQueueID is a sentinel usable with errors.Is.
	ErrInvalidQueueID = &Error{Kind: KindInvalidQueueID}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrPromiseAlreadySet = &Error{Kind: KindPromiseAlreadySet}
	ErrBadContext = &Error{Kind: KindBadContext}
	ErrChainClosed = &Error{Kind: KindChainClosed}
	ErrTerminated = &Error{Kind: KindTerminated}
)
