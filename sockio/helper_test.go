// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sockio_test

import (
	"io"
	"testing"

	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/sockio"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func newReactor(tb testing.TB) *reactor.Reactor {
	tb.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	r, err := reactor.New(reactor.WithLogger(l))
	if err != nil {
		tb.Fatalf("New: %v", err)
	}
	tb.Cleanup(func() { r.Close() })
	return r
}

// socketPair returns two connected sockets.
func socketPair(tb testing.TB) (*sockio.Socket, *sockio.Socket) {
	tb.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		tb.Fatalf("socketpair: %v", err)
	}
	a, err := sockio.NewSocket(fds[0])
	if err != nil {
		tb.Fatalf("NewSocket: %v", err)
	}
	b, err := sockio.NewSocket(fds[1])
	if err != nil {
		tb.Fatalf("NewSocket: %v", err)
	}
	tb.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func mustWrite(tb testing.TB, s *sockio.Socket, p string) {
	tb.Helper()
	if _, err := s.Write([]byte(p)); err != nil {
		tb.Fatalf("write: %v", err)
	}
}
