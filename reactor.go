// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"errors"
	"fmt"
	"sync"

	"code.hybscloud.com/kont"
	"github.com/sirupsen/logrus"
)

type stopMode uint8

const (
	stopNone stopMode = iota
	// stopQuit leaves live tasks in place for a later Run.
	stopQuit
	// stopCancel cancels every live task before returning.
	stopCancel
)

// Option configures a Reactor.
type Option func(*Reactor)

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Reactor) { r.log = l }
}

// WithErrorHandler installs h as the error handler.
// It counts as the one registration RegisterErrorHandler allows.
func WithErrorHandler(h ErrorHandler) Option {
	return func(r *Reactor) {
		r.onError = h
		r.handlerSet = true
	}
}

// Reactor is a single-threaded cooperative scheduler.
//
// Tasks run one at a time on the goroutine calling Run, each until it
// blocks on descriptor readiness (Wait), on another task (Join), or
// finishes. Spawn, Stop and CancelSubtree are safe from any goroutine;
// they hand work to the loop and wake it through an EventFd.
type Reactor struct {
	mu         sync.Mutex
	cond       *sync.Cond
	wake       *EventFd
	log        logrus.FieldLogger
	onError    ErrorHandler
	handlerSet bool

	// guarded by mu
	live     map[Serial]*Task
	named    map[string]*Task
	incoming []*Task
	toCancel []*Task
	stop     stopMode
	running  bool
	gen      uint64

	// owned by the loop goroutine
	ready   []*Task
	readers map[int]*Task
	writers map[int]*Task
	poll    poller
}

// New creates an idle reactor.
func New(opts ...Option) (*Reactor, error) {
	wake, err := NewEventFd()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		wake:    wake,
		log:     logrus.StandardLogger(),
		live:    make(map[Serial]*Task),
		named:   make(map[string]*Task),
		readers: make(map[int]*Task),
		writers: make(map[int]*Task),
	}
	r.cond = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("component", "reactor")
	if r.onError == nil {
		r.onError = func(msg string, err error) {
			r.log.WithError(err).Error(msg)
		}
	}
	return r, nil
}

// Close releases the wakeup descriptor. Tasks still live are abandoned.
func (r *Reactor) Close() error {
	return r.wake.Close()
}

// RegisterErrorHandler replaces the default handler, which logs at error
// level. Only one registration is allowed.
func (r *Reactor) RegisterErrorHandler(h ErrorHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlerSet {
		return ErrHandlerRegistered
	}
	r.onError = h
	r.handlerSet = true
	return nil
}

func (r *Reactor) report(msg string, err error) {
	r.mu.Lock()
	h := r.onError
	r.mu.Unlock()
	h(msg, err)
}

// Spawn schedules body as a new root task. name may be empty; a non-empty
// name must not be held by a live task. Safe from any goroutine.
func Spawn[R any](r *Reactor, name string, body kont.Eff[R]) (*Task, error) {
	t := newTask(name, 0, func() kont.Expr[Outcome] { return reify(body) })
	r.mu.Lock()
	if err := r.adopt(t); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.incoming = append(r.incoming, t)
	r.mu.Unlock()
	r.notify()
	return t, nil
}

// adopt registers t as live. Called with mu held.
func (r *Reactor) adopt(t *Task) error {
	if t.name != "" {
		if _, ok := r.named[t.name]; ok {
			return fmt.Errorf("%w: %q", ErrNameTaken, t.name)
		}
		r.named[t.name] = t
	}
	r.live[t.id] = t
	return nil
}

func (r *Reactor) notify() {
	if err := r.wake.Set(); err != nil {
		r.report("wake reactor", err)
	}
}

// Running reports whether a goroutine is driving the reactor.
func (r *Reactor) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Lookup returns the live task registered under name.
func (r *Reactor) Lookup(name string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.named[name]
	return t, ok
}

// Live returns the number of tasks that have not finished.
func (r *Reactor) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Run drives the reactor on the calling goroutine until Stop.
// Loop failures are reported to the error handler and returned;
// the reactor may be run again afterwards.
func (r *Reactor) Run() error {
	return r.run(nil, nil)
}

// RunUntil is Run that also stops, cancelling every remaining task, as
// soon as pred holds after a scheduling pass.
func (r *Reactor) RunUntil(pred func() bool) error {
	return r.run(pred, nil)
}

// Stop asks the loop to return and waits until it has. With
// cancelRemaining every live task is cancelled first; otherwise tasks
// keep their state and continue on the next Run. No-op when idle.
// Must not be called from task code.
func (r *Reactor) Stop(cancelRemaining bool) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	if cancelRemaining {
		r.stop = stopCancel
	} else if r.stop == stopNone {
		r.stop = stopQuit
	}
	gen := r.gen
	r.mu.Unlock()
	r.notify()

	r.mu.Lock()
	for r.running && r.gen == gen {
		r.cond.Wait()
	}
	r.mu.Unlock()
}

// CancelSubtree cancels the task registered under name and all of its
// live descendants, deepest first, and waits until the task finished.
// Must not be called from task code; tasks use the Cancel effect.
func (r *Reactor) CancelSubtree(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ErrNotRunning
	}
	t, ok := r.named[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	gen := r.gen
	r.toCancel = append(r.toCancel, t)
	r.mu.Unlock()
	r.notify()
	r.mu.Lock()
	for !finished(t) && r.running && r.gen == gen {
		r.cond.Wait()
	}
	if !finished(t) {
		return ErrStopped
	}
	return nil
}

func finished(t *Task) bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// run claims the loop and drives it. seed, when non-nil, is queued only
// once the claim succeeds, so a refused run leaves nothing behind.
func (r *Reactor) run(pred func() bool, seed *Task) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.report("run reactor", ErrAlreadyRunning)
		return ErrAlreadyRunning
	}
	if seed != nil {
		if err := r.adopt(seed); err != nil {
			r.mu.Unlock()
			return err
		}
		r.incoming = append(r.incoming, seed)
	}
	r.running = true
	r.gen++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.stop = stopNone
		r.cond.Broadcast()
		r.mu.Unlock()
	}()

	if err := r.loop(pred); err != nil {
		r.report("reactor loop failed", err)
		return err
	}
	return nil
}

func (r *Reactor) loop(pred func() bool) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("reactor: loop panicked: %v", v)
		}
	}()
	for {
		r.mu.Lock()
		r.ready = append(r.ready, r.incoming...)
		r.incoming = nil
		cancels := r.toCancel
		r.toCancel = nil
		mode := r.stop
		r.mu.Unlock()

		for _, t := range cancels {
			r.cancelTree(t)
		}
		switch mode {
		case stopCancel:
			r.cancelAll()
			return nil
		case stopQuit:
			return nil
		}

		r.runReady()
		if pred != nil && pred() {
			r.cancelAll()
			return nil
		}

		timeout := -1
		if len(r.ready) > 0 {
			timeout = 0
		}
		woke, ready, err := r.poll.wait(r.wake.Fd(), r.readers, r.writers, timeout)
		if err != nil {
			return err
		}
		for _, rd := range ready {
			r.dispatch(rd)
		}
		if woke {
			if err := r.wake.Clear(); err != nil {
				return err
			}
		}
	}
}

func (r *Reactor) runReady() {
	batch := r.ready
	r.ready = nil
	for _, t := range batch {
		if t.state != stateReady {
			continue
		}
		r.step(t)
	}
}

// dispatch moves the owners of a ready descriptor to the ready queue.
func (r *Reactor) dispatch(rd readiness) {
	if rd.bad {
		for _, m := range []map[int]*Task{r.readers, r.writers} {
			if t, ok := m[rd.fd]; ok {
				r.report(fmt.Sprintf("task %s awaits descriptor %d", t.label(), rd.fd), ErrBadDescriptor)
				r.abort(t, ErrBadDescriptor)
			}
		}
		return
	}
	if rd.read {
		if t, ok := r.readers[rd.fd]; ok && t.state == stateBlocked {
			r.wakeTask(t, Wake{Intent: ReadIntent(rd.fd)})
		}
	}
	if rd.write {
		if t, ok := r.writers[rd.fd]; ok && t.state == stateBlocked {
			r.wakeTask(t, Wake{Intent: WriteIntent(rd.fd)})
		}
	}
}

func (r *Reactor) wakeTask(t *Task, v kont.Resumed) {
	r.release(t)
	t.state = stateReady
	t.resume = v
	r.ready = append(r.ready, t)
}

// register claims every intent for t, or none of them.
func (r *Reactor) register(t *Task, intents []Intent) error {
	for i, in := range intents {
		m := r.readers
		if in.Write {
			m = r.writers
		}
		if _, ok := m[in.Fd]; ok {
			return fmt.Errorf("%w: fd %d", ErrDuplicateWait, in.Fd)
		}
		for _, prev := range intents[:i] {
			if prev == in {
				return fmt.Errorf("%w: fd %d listed twice", ErrDuplicateWait, in.Fd)
			}
		}
	}
	for _, in := range intents {
		if in.Write {
			r.writers[in.Fd] = t
		} else {
			r.readers[in.Fd] = t
		}
	}
	t.intents = intents
	return nil
}

func (r *Reactor) release(t *Task) {
	for _, in := range t.intents {
		m := r.readers
		if in.Write {
			m = r.writers
		}
		if m[in.Fd] == t {
			delete(m, in.Fd)
		}
	}
	t.intents = nil
}

// step resumes t with its pending value and interprets the operations it
// performs until it blocks or finishes.
func (r *Reactor) step(t *Task) {
	v := t.resume
	t.resume = nil
	for {
		op, done, res := t.eng.advance(v)
		if done {
			r.finish(t, res)
			return
		}
		t.op = op
		switch o := op.(type) {
		case Wait:
			if t.cancelling {
				r.ignoredCancel(t)
				return
			}
			if len(o.Intents) == 0 {
				t.resume = Wake{Intent: Intent{Fd: -1}}
				r.ready = append(r.ready, t)
				return
			}
			if err := r.register(t, o.Intents); err != nil {
				r.report(fmt.Sprintf("task %s waits on a claimed descriptor", t.label()), err)
				r.abort(t, err)
				return
			}
			t.state = stateBlocked
			return
		case Join:
			target := o.Task
			switch {
			case target == nil:
				v = kont.Left[error, kont.Erased](ErrUnknownTask)
				continue
			case target == t:
				v = kont.Left[error, kont.Erased](ErrJoinSelf)
				continue
			case target.state == stateFinished:
				v = target.outcome
				continue
			case t.cancelling:
				r.ignoredCancel(t)
				return
			}
			target.joiners = append(target.joiners, t)
			t.joining = target
			t.state = stateJoining
			return
		case Go:
			child, err := r.spawnChild(t, o)
			if err != nil {
				v = kont.Left[error, *Task](err)
			} else {
				v = kont.Right[error](child)
			}
		case Cancel:
			v = r.cancelFromTask(t, o.Task)
		default:
			r.abort(t, fmt.Errorf("%w: %T", ErrUnhandledEffect, op))
			return
		}
	}
}

func (r *Reactor) spawnChild(parent *Task, g Go) (*Task, error) {
	body := g.Body
	t := newTask(g.Name, parent.id, func() kont.Expr[Outcome] { return reify(body) })
	r.mu.Lock()
	err := r.adopt(t)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	r.ready = append(r.ready, t)
	return t, nil
}

func (r *Reactor) cancelFromTask(t, target *Task) kont.Resumed {
	if target == nil || target.state == stateFinished {
		return kont.Right[error](struct{}{})
	}
	if target == t || r.isAncestor(target, t) {
		return kont.Left[error, struct{}](ErrCancelSelf)
	}
	r.cancelTree(target)
	return kont.Right[error](struct{}{})
}

// isAncestor reports whether a is a transitive parent of t.
func (r *Reactor) isAncestor(a, t *Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := t.parent; p != 0; {
		if p == a.id {
			return true
		}
		pt, ok := r.live[p]
		if !ok {
			return false
		}
		p = pt.parent
	}
	return false
}

// subtree returns root's live descendants in post-order, root last.
func (r *Reactor) subtree(root *Task) []*Task {
	r.mu.Lock()
	children := make(map[Serial][]*Task, len(r.live))
	for _, t := range r.live {
		if t.parent != 0 {
			children[t.parent] = append(children[t.parent], t)
		}
	}
	r.mu.Unlock()

	var out []*Task
	var walk func(t *Task)
	walk = func(t *Task) {
		for _, c := range children[t.id] {
			walk(c)
		}
		out = append(out, t)
	}
	walk(root)
	return out
}

func (r *Reactor) cancelTree(root *Task) {
	if root.state == stateFinished {
		return
	}
	for _, t := range r.subtree(root) {
		r.cancelTask(t)
	}
}

// cancelAll cancels every live task. Tasks spawned while unwinding are
// cancelled in turn.
func (r *Reactor) cancelAll() {
	for {
		r.mu.Lock()
		var roots []*Task
		for _, t := range r.live {
			if _, ok := r.live[t.parent]; !ok {
				roots = append(roots, t)
			}
		}
		r.mu.Unlock()
		if len(roots) == 0 {
			break
		}
		for _, t := range roots {
			r.cancelTree(t)
		}
	}
	r.ready = nil
}

func (r *Reactor) cancelTask(t *Task) {
	switch t.state {
	case stateFinished:
		return
	case stateReady:
		if !t.eng.started {
			r.finish(t, kont.Left[error, kont.Erased](ErrCancelled))
			return
		}
	case stateBlocked:
		r.release(t)
	case stateJoining:
		r.unjoin(t)
	}
	t.cancelling = true
	t.state = stateReady
	t.resume = cancelValue(t.op)
	if t.resume == nil || !t.eng.pending() {
		r.abort(t, ErrCancelled)
		return
	}
	r.step(t)
}

func (r *Reactor) unjoin(t *Task) {
	target := t.joining
	t.joining = nil
	if target == nil {
		return
	}
	for i, j := range target.joiners {
		if j == t {
			target.joiners = append(target.joiners[:i], target.joiners[i+1:]...)
			break
		}
	}
}

func (r *Reactor) ignoredCancel(t *Task) {
	r.report(fmt.Sprintf("task %s ignored cancellation", t.label()), ErrCancelled)
	r.abort(t, ErrCancelled)
}

func (r *Reactor) abort(t *Task, err error) {
	t.eng.discard()
	r.finish(t, kont.Left[error, kont.Erased](err))
}

// finish records the outcome of t, runs its cleanups and wakes joiners.
// Live children are handed to t's parent.
func (r *Reactor) finish(t *Task, res Outcome) {
	if t.state == stateFinished {
		return
	}
	r.release(t)
	r.unjoin(t)
	t.state = stateFinished
	t.op = nil
	t.resume = nil
	t.eng.discard()
	t.eng.runDefers(func(v any) {
		r.report(fmt.Sprintf("cleanup of task %s panicked", t.label()), panicError(v))
	})
	for _, j := range t.joiners {
		j.joining = nil
		j.state = stateReady
		j.resume = res
		r.ready = append(r.ready, j)
	}
	t.joiners = nil

	r.mu.Lock()
	delete(r.live, t.id)
	if t.name != "" && r.named[t.name] == t {
		delete(r.named, t.name)
	}
	for _, c := range r.live {
		if c.parent == t.id {
			c.parent = t.parent
		}
	}
	t.outcome = res
	close(t.done)
	r.cond.Broadcast()
	r.mu.Unlock()

	if err, ok := res.GetLeft(); ok {
		entry := r.log.WithFields(logrus.Fields{"task": t.label(), "id": t.id})
		if errors.Is(err, ErrCancelled) {
			entry.Debug("task cancelled")
		} else {
			entry.WithError(err).Warn("task failed")
		}
	}
}
