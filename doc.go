// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reactor provides a single-threaded cooperative scheduler for
// socket-driven tasks written as effectful computations on
// [code.hybscloud.com/kont].
//
// A task is a [code.hybscloud.com/kont.Eff] value. The reactor steps it one
// effect at a time; blocking effects park the task until the poll loop
// sees the descriptor ready or the joined task finish.
//
// # Architecture
//
//   - Scheduling: [Reactor] owns a FIFO ready queue and per-direction
//     descriptor maps. Each iteration runs ready tasks once, then polls
//     the blocked descriptors plus an [EventFd] used for wakeups.
//   - Cross-goroutine: [Spawn], [Reactor.Stop] and [Reactor.CancelSubtree]
//     hand work to the loop under a mutex and set the EventFd.
//   - Task graph: every task has a parent id used only for cancellation.
//     Finished tasks hand their live children to their own parent.
//   - Errors: tasks throw with [Fail]; an unhandled throw or panic
//     finishes the task with that error. Failures the reactor cannot
//     attach to a task go to the [ErrorHandler].
//
// # API Topologies
//
//   - Operations: [Wait], [Defer], [Go], [Join], [Cancel], [Try].
//   - Fused: [AwaitAny], [AwaitRead], [AwaitWrite], [ReadThen], [WriteThen],
//     [Yield], [DeferThen], [GoThen], [JoinBind], [JoinResult], [Attempt],
//     [TryBind], [CancelThen].
//   - Recursive: [Loop], [Forever]. Side effects belong inside [Delay] or
//     a Bind callback so they run when the task reaches them.
//
// # Integration
//
//   - Blocking: [RunTask] runs one computation to completion on a reactor.
//   - Synchronous: [Eval] runs a non-blocking computation without a reactor.
//   - Stepping: [Step] exposes the underlying one-effect-at-a-time boundary.
//
// # Example
//
//	r, _ := reactor.New()
//	defer r.Close()
//	n, err := reactor.RunTask(r, kont.Bind(reactor.AwaitRead(fd),
//		func(reactor.Wake) kont.Eff[int] {
//			return kont.Pure(42)
//		}))
package reactor
