// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor_test

import (
	"errors"
	"sync"
	"testing"

	"code.hybscloud.com/reactor"
)

func TestEventFdSetClear(t *testing.T) {
	e, err := reactor.NewEventFd()
	if err != nil {
		t.Fatalf("NewEventFd: %v", err)
	}
	defer e.Close()

	if e.IsSet() {
		t.Fatalf("new eventfd is set")
	}
	for range 3 {
		if err := e.Set(); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if !e.IsSet() {
		t.Fatalf("eventfd not set after Set")
	}
	if err := e.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if e.IsSet() {
		t.Fatalf("eventfd still set after Clear")
	}
	if err := e.Clear(); err != nil {
		t.Fatalf("Clear on clear eventfd: %v", err)
	}
}

func TestEventFdCloseIdempotent(t *testing.T) {
	e, err := reactor.NewEventFd()
	if err != nil {
		t.Fatalf("NewEventFd: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if e.Fd() != -1 {
		t.Fatalf("Fd after Close got %d, want -1", e.Fd())
	}
	if err := e.Set(); !errors.Is(err, reactor.ErrEventFdClosed) {
		t.Fatalf("Set after Close got %v, want %v", err, reactor.ErrEventFdClosed)
	}
	if err := e.Clear(); !errors.Is(err, reactor.ErrEventFdClosed) {
		t.Fatalf("Clear after Close got %v, want %v", err, reactor.ErrEventFdClosed)
	}
	if e.IsSet() {
		t.Fatalf("closed eventfd reports set")
	}
}

func TestEventFdCloseWhileSetting(t *testing.T) {
	for range 50 {
		e, err := reactor.NewEventFd()
		if err != nil {
			t.Fatalf("NewEventFd: %v", err)
		}
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					if err := e.Set(); err != nil && !errors.Is(err, reactor.ErrEventFdClosed) {
						t.Errorf("Set: %v", err)
						return
					}
				}
			}()
		}
		if err := e.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		wg.Wait()
	}
}

func TestEventFdWakesAwait(t *testing.T) {
	r := newReactor(t)
	e, err := reactor.NewEventFd()
	if err != nil {
		t.Fatalf("NewEventFd: %v", err)
	}
	defer e.Close()

	task, err := reactor.Spawn(r, "", reactor.AwaitRead(e.Fd()))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	runInBackground(t, r)
	waitFor(t, func() bool { return r.Live() == 1 })
	go e.Set()
	v, err := waitTask(t, task)
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if w := v.(reactor.Wake); w.Fd != e.Fd() {
		t.Fatalf("woken on fd %d, want %d", w.Fd, e.Fd())
	}
}
