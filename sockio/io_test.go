// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sockio_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/sockio"
	"golang.org/x/sys/unix"
)

var crlf2 = []byte("\r\n\r\n")

func TestRecvUntilKeepsLeftover(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	mustWrite(t, b, "HEAD\r\n\r\nrest")
	acc := new(bytes.Buffer)
	got, err := reactor.RunTask(r, sockio.RecvUntil(a, acc, crlf2))
	if err != nil {
		t.Fatalf("RecvUntil: %v", err)
	}
	if string(got) != "HEAD" {
		t.Fatalf("got %q, want %q", got, "HEAD")
	}
	if acc.String() != "rest" {
		t.Fatalf("leftover %q, want %q", acc.String(), "rest")
	}
}

func TestRecvUntilWaitsForMore(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	acc := new(bytes.Buffer)
	writer := kont.Then(reactor.Yield(), reactor.Delay(func() kont.Eff[struct{}] {
		mustWrite(t, b, "par")
		return kont.Then(reactor.Yield(), reactor.Delay(func() kont.Eff[struct{}] {
			mustWrite(t, b, "tial\n")
			return kont.Pure(struct{}{})
		}))
	}))
	body := reactor.GoThen("", writer, func(*reactor.Task) kont.Eff[[]byte] {
		return sockio.RecvUntil(a, acc, []byte("\n"))
	})
	got, err := reactor.RunTask(r, body)
	if err != nil {
		t.Fatalf("RecvUntil: %v", err)
	}
	if string(got) != "partial" {
		t.Fatalf("got %q, want %q", got, "partial")
	}
}

func TestRecvUntilCleanEOF(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	unix.Shutdown(b.Fd(), unix.SHUT_WR)
	_, err := reactor.RunTask(r, sockio.RecvUntil(a, new(bytes.Buffer), crlf2))
	if err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestRecvUntilClosedPrematurely(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	mustWrite(t, b, "GET / HT")
	unix.Shutdown(b.Fd(), unix.SHUT_WR)
	_, err := reactor.RunTask(r, sockio.RecvUntil(a, new(bytes.Buffer), crlf2))
	if !errors.Is(err, sockio.ErrClosedPrematurely) {
		t.Fatalf("got %v, want ErrClosedPrematurely", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("%v does not wrap io.ErrUnexpectedEOF", err)
	}
}

func TestRecvUntilMaxTooLong(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	mustWrite(t, b, "0123456789abcdef")
	_, err := reactor.RunTask(r, sockio.RecvUntilMax(a, new(bytes.Buffer), crlf2, 8))
	if !errors.Is(err, sockio.ErrTooLong) {
		t.Fatalf("got %v, want ErrTooLong", err)
	}
}

func TestRecvExact(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	mustWrite(t, b, "abcdefgh")
	acc := new(bytes.Buffer)
	got, err := reactor.RunTask(r, sockio.RecvExact(a, acc, 5))
	if err != nil {
		t.Fatalf("RecvExact: %v", err)
	}
	if string(got) != "abcde" || acc.String() != "fgh" {
		t.Fatalf("got %q leftover %q, want %q leftover %q", got, acc.String(), "abcde", "fgh")
	}
}

func TestRecvExactZero(t *testing.T) {
	r := newReactor(t)
	a, _ := socketPair(t)
	got, err := reactor.RunTask(r, sockio.RecvExact(a, new(bytes.Buffer), 0))
	if err != nil || len(got) != 0 {
		t.Fatalf("got (%q, %v), want empty", got, err)
	}
}

// TestSendAllLarge pushes more than the socket buffer holds, so the
// sender has to wait for the reader to drain.
func TestSendAllLarge(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	payload := bytes.Repeat([]byte("0123456789"), 200_000)
	body := reactor.GoThen("", sockio.SendAll(b, payload), func(*reactor.Task) kont.Eff[[]byte] {
		return sockio.RecvExact(a, new(bytes.Buffer), len(payload))
	})
	got, err := reactor.RunTask(r, body)
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("received %d bytes differing from the %d sent", len(got), len(payload))
	}
}

func TestSendAllBrokenPipe(t *testing.T) {
	r := newReactor(t)
	a, b := socketPair(t)
	a.Close()
	_, err := reactor.RunTask(r, sockio.SendAll(b, []byte("lost")))
	if err == nil {
		t.Fatalf("SendAll to a closed peer succeeded")
	}
}
