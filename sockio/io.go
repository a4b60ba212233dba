// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sockio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
)

// ReadPortion is the number of bytes requested per read.
const ReadPortion = 4096

var (
	// ErrClosedPrematurely is thrown when the peer closes in the middle of
	// a unit the caller is waiting for.
	ErrClosedPrematurely = fmt.Errorf("sockio: socket closed prematurely: %w", io.ErrUnexpectedEOF)

	// ErrTooLong is thrown by RecvUntilMax when no delimiter shows up
	// within the limit.
	ErrTooLong = errors.New("sockio: delimiter not found within limit")
)

// Conn is the non-blocking descriptor I/O the helpers need.
// Read and Write return iox.ErrWouldBlock instead of blocking.
type Conn interface {
	Fd() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// SendAll writes all of p, waiting for write readiness whenever the
// kernel buffer is full.
func SendAll(c Conn, p []byte) kont.Eff[struct{}] {
	return reactor.Loop(p, func(rest []byte) kont.Eff[kont.Either[[]byte, struct{}]] {
		return reactor.Delay(func() kont.Eff[kont.Either[[]byte, struct{}]] {
			for len(rest) > 0 {
				n, err := c.Write(rest)
				if err == nil {
					rest = rest[n:]
					continue
				}
				if iox.IsWouldBlock(err) {
					return reactor.WriteThen(c.Fd(), func() kont.Eff[kont.Either[[]byte, struct{}]] {
						return reactor.Continue[[]byte, struct{}](rest)
					})
				}
				return reactor.Fail[kont.Either[[]byte, struct{}]](err)
			}
			return reactor.Break[[]byte](struct{}{})
		})
	})
}

// RecvUntil reads until acc holds delim and returns the bytes before it.
// The returned bytes and the delimiter are consumed from acc; anything
// after stays buffered. A clean close with nothing buffered throws
// io.EOF; a close with a partial unit throws ErrClosedPrematurely.
func RecvUntil(c Conn, acc *bytes.Buffer, delim []byte) kont.Eff[[]byte] {
	return RecvUntilMax(c, acc, delim, 0)
}

// RecvUntilMax is RecvUntil that throws ErrTooLong once limit bytes are
// buffered without a delimiter. limit <= 0 means no limit.
func RecvUntilMax(c Conn, acc *bytes.Buffer, delim []byte, limit int) kont.Eff[[]byte] {
	return recvLoop(c, acc, func() ([]byte, bool, error) {
		if i := bytes.Index(acc.Bytes(), delim); i >= 0 {
			out := bytes.Clone(acc.Next(i))
			acc.Next(len(delim))
			return out, true, nil
		}
		if limit > 0 && acc.Len() >= limit {
			return nil, false, ErrTooLong
		}
		return nil, false, nil
	})
}

// RecvExact reads until acc holds n bytes and returns them.
func RecvExact(c Conn, acc *bytes.Buffer, n int) kont.Eff[[]byte] {
	return recvLoop(c, acc, func() ([]byte, bool, error) {
		if acc.Len() >= n {
			return bytes.Clone(acc.Next(n)), true, nil
		}
		return nil, false, nil
	})
}

// recvLoop alternates between take, which inspects acc, and reads into acc.
func recvLoop(c Conn, acc *bytes.Buffer, take func() ([]byte, bool, error)) kont.Eff[[]byte] {
	type step = kont.Either[struct{}, []byte]
	return reactor.Loop(struct{}{}, func(struct{}) kont.Eff[step] {
		return reactor.Delay(func() kont.Eff[step] {
			for {
				out, ok, err := take()
				if err != nil {
					return reactor.Fail[step](err)
				}
				if ok {
					return reactor.Break[struct{}](out)
				}
				err = fill(c, acc)
				switch {
				case err == nil:
					continue
				case iox.IsWouldBlock(err):
					return reactor.ReadThen(c.Fd(), func() kont.Eff[step] {
						return reactor.Continue[struct{}, []byte](struct{}{})
					})
				case errors.Is(err, io.EOF):
					if acc.Len() == 0 {
						return reactor.Fail[step](io.EOF)
					}
					return reactor.Fail[step](ErrClosedPrematurely)
				default:
					return reactor.Fail[step](err)
				}
			}
		})
	})
}

// fill appends one read of up to ReadPortion bytes to acc.
func fill(c Conn, acc *bytes.Buffer) error {
	acc.Grow(ReadPortion)
	buf := acc.AvailableBuffer()[:ReadPortion]
	n, err := c.Read(buf)
	if n > 0 {
		acc.Write(buf[:n])
	}
	return err
}
