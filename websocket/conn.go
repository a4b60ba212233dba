// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package websocket

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/httpx"
	"code.hybscloud.com/reactor/sockio"
	"github.com/sirupsen/logrus"
)

// Close status codes sent by the server.
const (
	CloseNormal        = 1000
	CloseProtocol      = 1002
	CloseInvalidData   = 1007
	CloseMessageTooBig = 1009
)

// Handler receives every complete text message of a connection.
// A returned error is logged; the connection stays open.
type Handler interface {
	HandleMessage(c *Conn, msg string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *Conn, msg string) error

// HandleMessage calls f(c, msg).
func (f HandlerFunc) HandleMessage(c *Conn, msg string) error { return f(c, msg) }

// Message is a reassembled data message, or the close sentinel with
// Op == OpClose.
type Message struct {
	Op      OpCode
	Payload []byte
}

// Options tune a connection.
type Options struct {
	// MaxMessageSize bounds a frame payload and a reassembled message.
	// Zero means no limit.
	MaxMessageSize int
	// OutboxSize is the outbound queue capacity. Defaults to 256.
	OutboxSize int
	// OnOpen runs after a successful handshake, OnClose when the message
	// loop of an opened connection ends.
	OnOpen  func(*Conn)
	OnClose func(*Conn)
	Logger  logrus.FieldLogger
}

var connSerials reactor.SerialCounter

// Conn is a server-side WebSocket connection driven by a reactor task.
type Conn struct {
	id      reactor.Serial
	req     *httpx.Request
	sock    sockio.Conn
	acc     *bytes.Buffer
	handler Handler
	limit   int
	out     *Outbox
	onOpen  func(*Conn)
	onClose func(*Conn)
	log     logrus.FieldLogger
}

// NewConn prepares a connection for req. acc holds any bytes read past
// the request head and keeps buffering frames.
func NewConn(req *httpx.Request, acc *bytes.Buffer, h Handler, opts Options) (*Conn, error) {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	out, err := NewOutbox(opts.OutboxSize)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = new(bytes.Buffer)
	}
	c := &Conn{
		id:      connSerials.Next(),
		req:     req,
		sock:    req.Conn,
		acc:     acc,
		handler: h,
		limit:   opts.MaxMessageSize,
		out:     out,
		onOpen:  opts.OnOpen,
		onClose: opts.OnClose,
	}
	fields := logrus.Fields{"component": "websocket", "conn": c.id}
	if ra, ok := req.Conn.(interface{ RemoteAddr() string }); ok {
		fields["remote"] = ra.RemoteAddr()
	}
	c.log = opts.Logger.WithFields(fields)
	return c, nil
}

// ID returns the connection serial.
func (c *Conn) ID() reactor.Serial { return c.id }

// Request returns the upgrade request.
func (c *Conn) Request() *httpx.Request { return c.req }

// Enqueue queues msg for sending without blocking. Safe from any goroutine.
func (c *Conn) Enqueue(msg string) error { return c.out.Enqueue(msg) }

// Send queues msg, waiting while the queue is full. Safe from any goroutine.
func (c *Conn) Send(ctx context.Context, msg string) error { return c.out.Send(ctx, msg) }

// Close stops accepting outbound messages. The task serving the
// connection calls it on exit.
func (c *Conn) Close() error { return c.out.Close() }

func (c *Conn) recv(n int) kont.Eff[[]byte] {
	return sockio.RecvExact(c.sock, c.acc, n)
}

func (c *Conn) writeFrame(f Frame) kont.Eff[struct{}] {
	return sockio.SendAll(c.sock, AppendFrame(nil, f))
}

// Serve performs the handshake and then runs the message loop until the
// peer closes, a protocol error occurs, or the task is cancelled. It
// yields false when the handshake was refused.
func (c *Conn) Serve() kont.Eff[bool] {
	return reactor.DeferThen(func() { c.Close() },
		kont.Bind(Handshake(c.req), func(ok bool) kont.Eff[bool] {
			if !ok {
				return kont.Pure(false)
			}
			c.log.Debug("websocket open")
			if c.onOpen != nil {
				c.onOpen(c)
			}
			return reactor.TryBind(c.loop(), func(res kont.Either[error, struct{}]) kont.Eff[bool] {
				if c.onClose != nil {
					c.onClose(c)
				}
				err, failed := res.GetLeft()
				if !failed {
					c.log.Debug("websocket closed")
					return kont.Pure(true)
				}
				return kont.Then(c.closeOnError(err), kont.Pure(true))
			})
		}))
}

// closeOnError maps a loop failure to a close frame where the peer can
// still read one, or rethrows it.
func (c *Conn) closeOnError(err error) kont.Eff[struct{}] {
	var code uint16
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.log.Debug("websocket peer went away")
		return kont.Pure(struct{}{})
	case errors.Is(err, reactor.ErrCancelled):
		return reactor.Fail[struct{}](err)
	case errors.Is(err, ErrInvalidUTF8):
		code = CloseInvalidData
	case errors.Is(err, ErrMessageTooBig):
		code = CloseMessageTooBig
	case errors.Is(err, ErrProtocol):
		code = CloseProtocol
	default:
		return reactor.Fail[struct{}](err)
	}
	c.log.WithError(err).Warn("closing websocket")
	payload := binary.BigEndian.AppendUint16(nil, code)
	return kont.Map(reactor.Attempt(c.writeFrame(Frame{Fin: true, Op: OpClose, Payload: payload})),
		func(kont.Either[error, struct{}]) struct{} { return struct{}{} })
}

// loop alternates between flushing the outbox and reading messages.
// Bytes already buffered are processed before waiting again.
func (c *Conn) loop() kont.Eff[struct{}] {
	type step = kont.Either[struct{}, struct{}]
	next := func(open bool) kont.Eff[step] {
		if open {
			return reactor.Continue[struct{}, struct{}](struct{}{})
		}
		return reactor.Break[struct{}](struct{}{})
	}
	return reactor.Loop(struct{}{}, func(struct{}) kont.Eff[step] {
		return reactor.Delay(func() kont.Eff[step] {
			if c.acc.Len() > 0 {
				return kont.Bind(c.processMessage(), next)
			}
			wait := reactor.AwaitAny(reactor.ReadIntent(c.sock.Fd()), reactor.ReadIntent(c.out.Fd()))
			return kont.Bind(wait, func(w reactor.Wake) kont.Eff[step] {
				if w.Fd == c.out.Fd() {
					return kont.Then(c.flush(), next(true))
				}
				return kont.Bind(c.processMessage(), next)
			})
		})
	})
}

// flush sends every queued message, one final text frame each.
func (c *Conn) flush() kont.Eff[struct{}] {
	return reactor.Delay(func() kont.Eff[struct{}] {
		msgs := c.out.drain()
		if len(msgs) == 0 {
			return kont.Pure(struct{}{})
		}
		var buf []byte
		for _, m := range msgs {
			buf = AppendFrame(buf, Frame{Fin: true, Op: OpText, Payload: []byte(m)})
		}
		return sockio.SendAll(c.sock, buf)
	})
}

// processMessage reads one message and dispatches it. It yields false
// once the peer sent a close frame.
func (c *Conn) processMessage() kont.Eff[bool] {
	return kont.Bind(c.ReadMessage(), func(m Message) kont.Eff[bool] {
		switch m.Op {
		case OpClose:
			return kont.Pure(false)
		case OpBinary:
			c.log.WithField("size", len(m.Payload)).Debug("dropping binary message")
		default:
			c.dispatch(string(m.Payload))
		}
		return kont.Pure(true)
	})
}

// dispatch runs the handler, logging its error or panic.
func (c *Conn) dispatch(msg string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("message handler panicked")
		}
	}()
	if err := c.handler.HandleMessage(c, msg); err != nil {
		c.log.WithError(err).Error("message handler failed")
	}
}

// assembly is the ReadMessage loop state.
type assembly struct {
	op      OpCode
	started bool
	payload []byte
}

// ReadMessage reads frames until a complete data message arrives.
// Pings are answered with a pong echoing the payload and pongs are
// ignored. A close frame is echoed and returned as Message{Op: OpClose}.
func (c *Conn) ReadMessage() kont.Eff[Message] {
	type step = kont.Either[assembly, Message]
	return reactor.Loop(assembly{}, func(st assembly) kont.Eff[step] {
		return kont.Bind(ReadFrame(c.recv, c.limit), func(f Frame) kont.Eff[step] {
			switch f.Op {
			case OpPing:
				return kont.Then(c.writeFrame(Frame{Fin: true, Op: OpPong, Payload: f.Payload}),
					reactor.Continue[assembly, Message](st))
			case OpPong:
				return reactor.Continue[assembly, Message](st)
			case OpClose:
				echo := f.Payload
				if len(echo) > 2 {
					echo = echo[:2]
				}
				return kont.Then(c.writeFrame(Frame{Fin: true, Op: OpClose, Payload: echo}),
					reactor.Break[assembly](Message{Op: OpClose, Payload: f.Payload}))
			case OpContinuation:
				if !st.started {
					return reactor.Fail[step](fmt.Errorf("%w: continuation without a message", ErrProtocol))
				}
			default:
				if st.started {
					return reactor.Fail[step](fmt.Errorf("%w: new %s frame inside a fragmented message", ErrProtocol, f.Op))
				}
				st = assembly{op: f.Op, started: true}
			}
			st.payload = append(st.payload, f.Payload...)
			if c.limit > 0 && len(st.payload) > c.limit {
				return reactor.Fail[step](fmt.Errorf("%w: message of %d bytes", ErrMessageTooBig, len(st.payload)))
			}
			if !f.Fin {
				return reactor.Continue[assembly, Message](st)
			}
			if st.op == OpText && !utf8.Valid(st.payload) {
				return reactor.Fail[step](ErrInvalidUTF8)
			}
			return reactor.Break[assembly](Message{Op: st.op, Payload: st.payload})
		})
	})
}
