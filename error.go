// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

var (
	// ErrCancelled is the result of a task that was cancelled, and the
	// error thrown into a task blocked in an await when cancellation hits.
	ErrCancelled = errors.New("reactor: task cancelled")

	// ErrAlreadyRunning is returned by Run when another goroutine is
	// already driving the reactor.
	ErrAlreadyRunning = errors.New("reactor: already running")

	// ErrNotRunning is returned by CancelSubtree on an idle reactor.
	ErrNotRunning = errors.New("reactor: not running")

	// ErrStopped is returned by CancelSubtree when the reactor stopped
	// before the subtree finished.
	ErrStopped = errors.New("reactor: stopped")

	// ErrUnknownTask is returned when a task name is not registered.
	ErrUnknownTask = errors.New("reactor: unknown task")

	// ErrNameTaken is returned when spawning under a name a live task holds.
	ErrNameTaken = errors.New("reactor: task name taken")

	// ErrDuplicateWait is the result of a task that waited on a descriptor
	// another task already waits on in the same direction.
	ErrDuplicateWait = errors.New("reactor: descriptor already awaited")

	// ErrBadDescriptor is the result of a task whose descriptor was
	// reported invalid by poll.
	ErrBadDescriptor = errors.New("reactor: invalid descriptor")

	// ErrCancelSelf is returned by the Cancel effect when the target is the
	// calling task or one of its ancestors.
	ErrCancelSelf = errors.New("reactor: task cannot cancel itself or an ancestor")

	// ErrJoinSelf is the outcome delivered to a task that joins itself.
	ErrJoinSelf = errors.New("reactor: task cannot join itself")

	// ErrHandlerRegistered is returned by RegisterErrorHandler on a second call.
	ErrHandlerRegistered = errors.New("reactor: error handler already registered")

	// ErrUnhandledEffect is the result of a task that performed an effect
	// the reactor does not interpret.
	ErrUnhandledEffect = errors.New("reactor: unhandled effect")

	// ErrWouldSuspend is returned by Eval when the computation blocks.
	// It wraps iox.ErrWouldBlock.
	ErrWouldSuspend = fmt.Errorf("reactor: computation would suspend: %w", iox.ErrWouldBlock)

	// ErrPanic wraps a panic recovered from task code.
	ErrPanic = errors.New("reactor: task panicked")

	// ErrEventFdClosed is returned by EventFd.Set and Clear after Close.
	ErrEventFdClosed = errors.New("reactor: eventfd closed")
)

// ErrorHandler receives errors the reactor cannot attach to a task result.
type ErrorHandler func(msg string, err error)

// Fail aborts the current computation with err.
// Fuses kont.ThrowError with the error type fixed to error.
func Fail[A any](err error) kont.Eff[A] {
	return kont.ThrowError[error, A](err)
}

// errorDispatcher is the structural interface for kont error operations.
type errorDispatcher interface {
	DispatchError(ctx *kont.ErrorContext[error]) (kont.Resumed, bool)
}

// panicError converts a recovered value into an error wrapping ErrPanic.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrPanic, v)
}
