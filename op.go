// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"code.hybscloud.com/kont"
)

// Outcome is the erased result of a task: Right on completion,
// Left with the error that finished it otherwise.
type Outcome = kont.Either[error, kont.Erased]

// Intent names one readiness condition: a descriptor and a direction.
type Intent struct {
	Fd    int
	Write bool
}

// ReadIntent reports read readiness on fd.
func ReadIntent(fd int) Intent { return Intent{Fd: fd} }

// WriteIntent reports write readiness on fd.
func WriteIntent(fd int) Intent { return Intent{Fd: fd, Write: true} }

// Wake tells a task which intent woke it.
type Wake struct {
	Intent
	cancelled bool
}

// Cancelled reports whether the wait ended because the task was cancelled
// rather than because a descriptor became ready.
func (w Wake) Cancelled() bool { return w.cancelled }

// Wait is the effect operation for blocking on descriptor readiness.
// Perform(Wait{Intents: ...}) suspends the task until any intent is ready.
// Each descriptor may be awaited by one task per direction.
type Wait struct {
	kont.Phantom[Wake]
	Intents []Intent
}

// Defer is the effect operation for registering a cleanup.
// Deferred functions run in LIFO order when the task finishes,
// whatever the outcome.
type Defer struct {
	kont.Phantom[struct{}]
	Fn func()
}

// Go is the effect operation for spawning a child task.
// The child's parent is the performing task. Name may be empty.
// Perform(Go{...}) resumes with Right(child) or Left(ErrNameTaken).
type Go struct {
	kont.Phantom[kont.Either[error, *Task]]
	Name string
	Body kont.Eff[kont.Erased]
}

// Join is the effect operation for awaiting another task's outcome.
type Join struct {
	kont.Phantom[Outcome]
	Task *Task
}

// Cancel is the effect operation for cancelling a task and its
// descendants from inside the reactor. It completes once every
// cancelled task has finished.
type Cancel struct {
	kont.Phantom[kont.Either[error, struct{}]]
	Task *Task
}

// Try is the effect operation for running Body as a nested computation
// that captures thrown errors and panics instead of finishing the task.
// Body may perform any effect, including blocking ones.
type Try[A any] struct {
	kont.Phantom[kont.Either[error, A]]
	Body kont.Eff[A]
}

// tryRunner is the structural interface implemented by every Try[A].
type tryRunner interface {
	nested() kont.Expr[Outcome]
	resumeWith(o Outcome) kont.Resumed
}

func (t Try[A]) nested() kont.Expr[Outcome] {
	return reify(t.Body)
}

func (t Try[A]) resumeWith(o Outcome) kont.Resumed {
	if err, ok := o.GetLeft(); ok {
		return kont.Left[error, A](err)
	}
	v, _ := o.GetRight()
	a, _ := v.(A)
	return kont.Right[error, A](a)
}

// reify converts a computation into the erased Expr form the engine steps.
func reify[R any](body kont.Eff[R]) kont.Expr[Outcome] {
	return kont.Reify(kont.Map(body, func(r R) Outcome {
		return kont.Right[error, kont.Erased](r)
	}))
}

// cancelValue returns the resumption delivered to a task suspended on op
// when it is cancelled.
func cancelValue(op kont.Operation) kont.Resumed {
	switch op.(type) {
	case Wait:
		return Wake{cancelled: true}
	case Join:
		return kont.Left[error, kont.Erased](ErrCancelled)
	}
	return nil
}
