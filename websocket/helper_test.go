// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package websocket_test

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/sockio"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newReactor(tb testing.TB) *reactor.Reactor {
	tb.Helper()
	r, err := reactor.New(reactor.WithLogger(quietLogger()))
	if err != nil {
		tb.Fatalf("New: %v", err)
	}
	tb.Cleanup(func() { r.Close() })
	return r
}

// pipe returns a reactor-side socket and a blocking peer file.
func pipe(tb testing.TB) (*sockio.Socket, *os.File) {
	tb.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		tb.Fatalf("socketpair: %v", err)
	}
	s, err := sockio.NewSocket(fds[0])
	if err != nil {
		tb.Fatalf("NewSocket: %v", err)
	}
	peer := os.NewFile(uintptr(fds[1]), "peer")
	tb.Cleanup(func() {
		s.Close()
		peer.Close()
	})
	return s, peer
}

func runInBackground(tb testing.TB, r *reactor.Reactor) {
	tb.Helper()
	go r.Run()
	waitFor(tb, r.Running)
	tb.Cleanup(func() { r.Stop(true) })
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

// memRecv serves recv requests from a fixed byte slice.
func memRecv(data []byte) func(n int) kont.Eff[[]byte] {
	rest := bytes.Clone(data)
	return func(n int) kont.Eff[[]byte] {
		return reactor.Delay(func() kont.Eff[[]byte] {
			if len(rest) < n {
				return reactor.Fail[[]byte](io.ErrUnexpectedEOF)
			}
			out := rest[:n:n]
			rest = rest[n:]
			return kont.Pure(out)
		})
	}
}
