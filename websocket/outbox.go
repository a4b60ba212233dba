// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package websocket

import (
	"context"
	"errors"
	"sync"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"code.hybscloud.com/reactor"
)

var (
	// ErrQueueFull is returned by Enqueue when the outbox is at capacity.
	ErrQueueFull = errors.New("websocket: outbound queue full")

	// ErrConnClosed is returned when enqueueing on a finished connection.
	ErrConnClosed = errors.New("websocket: connection closed")
)

// Outbox carries text messages from any goroutine to the connection task.
//
// Producers serialize on a mutex, which makes the bounded lfq SPSC queue
// safe for many writers; the connection task is the single consumer.
// Every successful enqueue sets an EventFd the task polls on.
type Outbox struct {
	mu     sync.Mutex
	q      lfq.SPSC[string]
	slot   string
	evt    *reactor.EventFd
	closed bool
}

// NewOutbox creates an outbox holding up to capacity messages.
func NewOutbox(capacity int) (*Outbox, error) {
	evt, err := reactor.NewEventFd()
	if err != nil {
		return nil, err
	}
	o := &Outbox{evt: evt}
	o.q.Init(capacity)
	return o, nil
}

// Fd returns the descriptor that polls readable while messages wait.
func (o *Outbox) Fd() int { return o.evt.Fd() }

// Enqueue adds msg without blocking.
func (o *Outbox) Enqueue(msg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrConnClosed
	}
	o.slot = msg
	if err := o.q.Enqueue(&o.slot); err != nil {
		if iox.IsWouldBlock(err) {
			return ErrQueueFull
		}
		return err
	}
	return o.evt.Set()
}

// Send enqueues msg, backing off while the queue is full, until it
// succeeds, the outbox closes or ctx is done.
func (o *Outbox) Send(ctx context.Context, msg string) error {
	var bo iox.Backoff
	for {
		err := o.Enqueue(msg)
		if !errors.Is(err, ErrQueueFull) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
}

// drain clears the wakeup and returns every queued message in order.
// Consumer side only.
func (o *Outbox) drain() []string {
	o.evt.Clear()
	var out []string
	for {
		msg, err := o.q.Dequeue()
		if err != nil {
			return out
		}
		out = append(out, msg)
	}
}

// Close rejects further messages and releases the descriptor.
// Queued messages are dropped.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.evt.Close()
}
