// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"fmt"

	"code.hybscloud.com/kont"
)

// Eval runs a computation that never blocks, without a reactor.
// Errors, Try and Defer are interpreted; deferred functions run before
// Eval returns. Any other effect abandons the computation and yields
// ErrWouldSuspend.
func Eval[R any](body kont.Eff[R]) (R, error) {
	return EvalExpr(kont.Reify(body))
}

// EvalExpr is Eval for a computation already in Expr form.
func EvalExpr[R any](body kont.Expr[R]) (result R, err error) {
	var zero R
	eng := engine{start: func() kont.Expr[Outcome] {
		return kont.ExprMap(body, func(r R) Outcome {
			return kont.Right[error, kont.Erased](r)
		})
	}}
	defer eng.runDefers(func(v any) {
		if err == nil {
			result, err = zero, panicError(v)
		}
	})

	op, done, res := eng.advance(nil)
	if !done {
		eng.discard()
		return zero, fmt.Errorf("%w: %T", ErrWouldSuspend, op)
	}
	if e, ok := res.GetLeft(); ok {
		return zero, e
	}
	v, _ := res.GetRight()
	r, _ := v.(R)
	return r, nil
}
