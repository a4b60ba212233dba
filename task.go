// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"context"

	"code.hybscloud.com/kont"
)

type taskState uint8

const (
	stateReady taskState = iota
	stateBlocked
	stateJoining
	stateFinished
)

func (s taskState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateBlocked:
		return "blocked"
	case stateJoining:
		return "joining"
	case stateFinished:
		return "finished"
	}
	return "unknown"
}

// Task is a computation scheduled on a Reactor.
//
// All fields except the outcome are owned by the goroutine driving the
// reactor. The outcome is published by closing Done.
type Task struct {
	id     Serial
	name   string
	parent Serial

	eng     engine
	state   taskState
	op      kont.Operation
	resume  kont.Resumed
	intents []Intent
	joiners []*Task
	joining *Task

	cancelling bool

	done    chan struct{}
	outcome Outcome
}

func newTask(name string, parent Serial, start func() kont.Expr[Outcome]) *Task {
	return &Task{
		id:     taskSerials.Next(),
		name:   name,
		parent: parent,
		eng:    engine{start: start},
		done:   make(chan struct{}),
	}
}

// ID returns the task serial.
func (t *Task) ID() Serial { return t.id }

// Name returns the registered name, or "" for anonymous tasks.
func (t *Task) Name() string { return t.name }

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Outcome returns the final outcome. It is only meaningful after Done.
func (t *Task) Outcome() Outcome {
	<-t.done
	return t.outcome
}

// Result blocks until the task finishes and returns its value or error.
func (t *Task) Result() (any, error) {
	<-t.done
	return split(t.outcome)
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return split(t.outcome)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResultOf returns the typed result of a finished task.
func ResultOf[R any](t *Task) (R, error) {
	v, err := t.Result()
	if err != nil {
		var zero R
		return zero, err
	}
	r, _ := v.(R)
	return r, nil
}

func split(o Outcome) (any, error) {
	if err, ok := o.GetLeft(); ok {
		return nil, err
	}
	v, _ := o.GetRight()
	return v, nil
}

func (t *Task) label() string {
	if t.name != "" {
		return t.name
	}
	return "anonymous"
}
