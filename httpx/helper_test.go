// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpx_test

import (
	"io"
	"os"
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

// drain closes s and returns everything the peer received.
func drain(tb testing.TB, s *sockio.Socket, peer *os.File) string {
	tb.Helper()
	s.Close()
	b, err := io.ReadAll(peer)
	if err != nil {
		tb.Fatalf("read peer: %v", err)
	}
	return string(b)
}
