// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"code.hybscloud.com/kont"
)

// Delay defers building a computation until it runs.
// Use it around code with side effects so they happen in the reactor
// at the right point of the sequence rather than at construction.
func Delay[A any](f func() kont.Eff[A]) kont.Eff[A] {
	return kont.Bind(kont.Pure(struct{}{}), func(struct{}) kont.Eff[A] {
		return f()
	})
}

// AwaitAny blocks until any intent is ready.
// Fuses Perform(Wait{...}) + Bind; throws ErrCancelled on cancellation.
func AwaitAny(intents ...Intent) kont.Eff[Wake] {
	return kont.Bind(kont.Perform(Wait{Intents: intents}), func(w Wake) kont.Eff[Wake] {
		if w.Cancelled() {
			return Fail[Wake](ErrCancelled)
		}
		return kont.Pure(w)
	})
}

// AwaitRead blocks until fd is readable.
func AwaitRead(fd int) kont.Eff[Wake] {
	return AwaitAny(ReadIntent(fd))
}

// AwaitWrite blocks until fd is writable.
func AwaitWrite(fd int) kont.Eff[Wake] {
	return AwaitAny(WriteIntent(fd))
}

// ReadThen waits for fd to become readable and continues with next.
func ReadThen[B any](fd int, next func() kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(AwaitRead(fd), func(Wake) kont.Eff[B] { return next() })
}

// WriteThen waits for fd to become writable and continues with next.
func WriteThen[B any](fd int, next func() kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(AwaitWrite(fd), func(Wake) kont.Eff[B] { return next() })
}

// Yield lets every other ready task run once before continuing.
func Yield() kont.Eff[struct{}] {
	return kont.Bind(kont.Perform(Wait{}), func(w Wake) kont.Eff[struct{}] {
		if w.Cancelled() {
			return Fail[struct{}](ErrCancelled)
		}
		return kont.Pure(struct{}{})
	})
}

// DeferThen registers fn to run when the task finishes and continues with next.
// Fuses Perform(Defer{Fn: fn}) + Then.
func DeferThen[B any](fn func(), next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Defer{Fn: fn}), next)
}

// GoThen spawns body as a child task and passes it to f.
// Throws ErrNameTaken when name is held by a live task.
func GoThen[R, B any](name string, body kont.Eff[R], f func(*Task) kont.Eff[B]) kont.Eff[B] {
	erased := kont.Map(body, func(r R) kont.Erased { return r })
	return kont.Bind(kont.Perform(Go{Name: name, Body: erased}), func(e kont.Either[error, *Task]) kont.Eff[B] {
		if err, ok := e.GetLeft(); ok {
			return Fail[B](err)
		}
		t, _ := e.GetRight()
		return f(t)
	})
}

// JoinBind waits for t to finish and passes its outcome to f.
func JoinBind[B any](t *Task, f func(Outcome) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Join{Task: t}), f)
}

// JoinResult waits for t and returns its typed result, rethrowing its error.
func JoinResult[R any](t *Task) kont.Eff[R] {
	return JoinBind(t, func(o Outcome) kont.Eff[R] {
		if err, ok := o.GetLeft(); ok {
			return Fail[R](err)
		}
		v, _ := o.GetRight()
		r, _ := v.(R)
		return kont.Pure(r)
	})
}

// Attempt runs body, capturing a thrown error or panic as Left.
func Attempt[A any](body kont.Eff[A]) kont.Eff[kont.Either[error, A]] {
	return kont.Perform(Try[A]{Body: body})
}

// TryBind runs body and passes its captured outcome to f.
// Fuses Perform(Try[A]{Body: body}) + Bind.
func TryBind[A, B any](body kont.Eff[A], f func(kont.Either[error, A]) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(Attempt(body), f)
}

// CancelThen cancels t and its descendants, then continues with next.
// Throws ErrCancelSelf when t is the current task or an ancestor.
func CancelThen[B any](t *Task, next func() kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Cancel{Task: t}), func(e kont.Either[error, struct{}]) kont.Eff[B] {
		if err, ok := e.GetLeft(); ok {
			return Fail[B](err)
		}
		return next()
	})
}
