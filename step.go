// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"code.hybscloud.com/kont"
)

// engine steps one task's computation one effect at a time.
//
// Error, Defer and Try operations are interpreted in place. Any other
// operation is returned to the caller, which resumes the engine later
// with the operation's result.
type engine struct {
	start   func() kont.Expr[Outcome]
	started bool
	susp    *kont.Suspension[Outcome]
	tries   []tryFrame
	defers  []func()
}

// tryFrame is a computation suspended on a Try while its body runs.
type tryFrame struct {
	susp *kont.Suspension[Outcome]
	op   tryRunner
}

// Step evaluates a computation until its first effect suspension.
// Returns (result, nil) on completion, or (zero, suspension) if pending.
// The reactor starts every task this way; callers driving a computation
// by hand resume the suspension with the operation's result.
func Step[R any](body kont.Expr[R]) (R, *kont.Suspension[R]) {
	return kont.StepExpr(body)
}

// advance resumes the computation with v (ignored on the first call) and
// runs it until it completes or performs an operation the engine does not
// interpret. Panics in task code finish the innermost Try or the task.
func (e *engine) advance(v kont.Resumed) (op kont.Operation, done bool, result Outcome) {
	var (
		res  Outcome
		susp *kont.Suspension[Outcome]
	)
	if !e.started {
		e.started = true
		res, susp = e.protect(func() (Outcome, *kont.Suspension[Outcome]) {
			return Step(e.start())
		})
	} else {
		cur := e.susp
		e.susp = nil
		res, susp = e.protect(func() (Outcome, *kont.Suspension[Outcome]) {
			return cur.Resume(v)
		})
	}
	for {
		if susp == nil {
			if len(e.tries) == 0 {
				return nil, true, res
			}
			top := e.tries[len(e.tries)-1]
			e.tries = e.tries[:len(e.tries)-1]
			rv := top.op.resumeWith(res)
			res, susp = e.protect(func() (Outcome, *kont.Suspension[Outcome]) {
				return top.susp.Resume(rv)
			})
			continue
		}
		switch o := susp.Op().(type) {
		case errorDispatcher:
			var ctx kont.ErrorContext[error]
			rv, _ := o.DispatchError(&ctx)
			if ctx.HasErr {
				susp.Discard()
				res, susp = kont.Left[error, kont.Erased](ctx.Err), nil
				continue
			}
			cur := susp
			res, susp = e.protect(func() (Outcome, *kont.Suspension[Outcome]) {
				return cur.Resume(rv)
			})
		case Defer:
			if o.Fn != nil {
				e.defers = append(e.defers, o.Fn)
			}
			cur := susp
			res, susp = e.protect(func() (Outcome, *kont.Suspension[Outcome]) {
				return cur.Resume(struct{}{})
			})
		case tryRunner:
			e.tries = append(e.tries, tryFrame{susp: susp, op: o})
			res, susp = e.protect(func() (Outcome, *kont.Suspension[Outcome]) {
				return Step(o.nested())
			})
		default:
			e.susp = susp
			return o, false, Outcome{}
		}
	}
}

// protect runs one evaluation step, turning a panic into a Left outcome.
func (e *engine) protect(f func() (Outcome, *kont.Suspension[Outcome])) (res Outcome, susp *kont.Suspension[Outcome]) {
	defer func() {
		if r := recover(); r != nil {
			res, susp = kont.Left[error, kont.Erased](panicError(r)), nil
		}
	}()
	return f()
}

// pending reports whether the engine holds a suspension awaiting resumption.
func (e *engine) pending() bool {
	return e.susp != nil
}

// discard drops every held suspension without resuming it.
func (e *engine) discard() {
	if e.susp != nil {
		e.susp.Discard()
		e.susp = nil
	}
	for i := len(e.tries) - 1; i >= 0; i-- {
		e.tries[i].susp.Discard()
	}
	e.tries = nil
}

// runDefers runs registered cleanups in LIFO order. A panicking cleanup
// is reported through report and does not stop the others.
func (e *engine) runDefers(report func(v any)) {
	for i := len(e.defers) - 1; i >= 0; i-- {
		fn := e.defers[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					report(r)
				}
			}()
			fn()
		}()
	}
	e.defers = nil
}
