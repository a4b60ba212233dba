// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/reactor"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// reports collects messages passed to the error handler.
type reports struct {
	mu   sync.Mutex
	msgs []string
	errs []error
}

func (r *reports) handle(msg string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	r.errs = append(r.errs, err)
}

func (r *reports) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...), append([]error(nil), r.errs...)
}

func newReactor(tb testing.TB, opts ...reactor.Option) *reactor.Reactor {
	tb.Helper()
	opts = append([]reactor.Option{reactor.WithLogger(quietLogger())}, opts...)
	r, err := reactor.New(opts...)
	if err != nil {
		tb.Fatalf("New: %v", err)
	}
	tb.Cleanup(func() { r.Close() })
	return r
}

// runInBackground drives r on its own goroutine until the test ends.
func runInBackground(tb testing.TB, r *reactor.Reactor) <-chan error {
	tb.Helper()
	errc := make(chan error, 1)
	go func() { errc <- r.Run() }()
	waitFor(tb, r.Running)
	tb.Cleanup(func() { r.Stop(true) })
	return errc
}

func waitFor(tb testing.TB, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func waitTask(tb testing.TB, task *reactor.Task) (any, error) {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := task.Wait(ctx)
	if err == context.DeadlineExceeded {
		tb.Fatalf("task %q did not finish", task.Name())
	}
	return v, err
}

// socketPair returns two connected non-blocking stream descriptors.
func socketPair(tb testing.TB) (int, int) {
	tb.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		tb.Fatalf("socketpair: %v", err)
	}
	tb.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}
