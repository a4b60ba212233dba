// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"code.hybscloud.com/kont"
)

// RunTask spawns body as an anonymous task, runs the reactor until the
// task finishes, and returns its result. Tasks still live at that point
// are cancelled. On a running reactor it returns ErrAlreadyRunning and
// body is never scheduled.
func RunTask[R any](r *Reactor, body kont.Eff[R]) (R, error) {
	t := newTask("", 0, func() kont.Expr[Outcome] { return reify(body) })
	if err := r.run(func() bool { return t.state == stateFinished }, t); err != nil {
		var zero R
		return zero, err
	}
	return ResultOf[R](t)
}
