// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/httpx"
	"code.hybscloud.com/reactor/sockio"
	"code.hybscloud.com/reactor/websocket"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by Send when no WebSocket client is connected.
var ErrNotConnected = errors.New("server: no websocket connection")

// Server accepts HTTP connections on a reactor, serves static files and
// holds at most one WebSocket connection at a time.
type Server struct {
	r       *reactor.Reactor
	cfg     Config
	ln      *sockio.Socket
	port    int
	handler websocket.Handler
	log     logrus.FieldLogger

	mu     sync.Mutex
	active *websocket.Conn
}

// New validates cfg and binds the listener. Nothing is accepted until
// the acceptor runs, see Start and Serve.
func New(r *reactor.Reactor, cfg Config, h websocket.Handler) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	ln, err := sockio.Listen(cfg.Host, cfg.Port, cfg.Backlog)
	if err != nil {
		return nil, err
	}
	port, err := ln.Port()
	if err != nil {
		ln.Close()
		return nil, err
	}
	s := &Server{
		r:       r,
		cfg:     cfg,
		ln:      ln,
		port:    port,
		handler: h,
	}
	s.log = cfg.Logger.WithFields(logrus.Fields{"component": "server", "port": port})
	return s, nil
}

// Port returns the bound port.
func (s *Server) Port() int { return s.port }

// Addr returns host:port of the listener.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.port))
}

// Close releases the listener of a server whose acceptor never ran.
// A running acceptor closes it on exit.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Start spawns the acceptor as a task named name. Cancelling that task
// closes the listener and every connection it accepted.
func (s *Server) Start(name string) (*reactor.Task, error) {
	return reactor.Spawn(s.r, name, s.Serve())
}

// Serve is the acceptor task body. It accepts connections as they arrive
// and runs each in a child task. The listener is closed when it ends.
func (s *Server) Serve() kont.Eff[struct{}] {
	return reactor.DeferThen(func() { s.ln.Close() },
		reactor.Forever(func() kont.Eff[struct{}] {
			return kont.Bind(reactor.AwaitRead(s.ln.Fd()), func(reactor.Wake) kont.Eff[struct{}] {
				return s.acceptAll()
			})
		}))
}

// acceptAll accepts every pending connection.
func (s *Server) acceptAll() kont.Eff[struct{}] {
	return reactor.Delay(func() kont.Eff[struct{}] {
		c, err := s.ln.Accept()
		if err != nil {
			if !iox.IsWouldBlock(err) {
				s.log.WithError(err).Warn("accept failed")
			}
			return kont.Pure(struct{}{})
		}
		s.log.WithField("remote", c.RemoteAddr()).Debug("connection accepted")
		return reactor.GoThen("", s.handleConn(c), func(*reactor.Task) kont.Eff[struct{}] {
			return s.acceptAll()
		})
	})
}

// handleConn serves requests on c until the client stops keeping the
// connection alive. The socket is closed whatever the outcome.
func (s *Server) handleConn(c *sockio.Socket) kont.Eff[struct{}] {
	type step = kont.Either[struct{}, struct{}]
	log := s.log.WithField("remote", c.RemoteAddr())
	acc := new(bytes.Buffer)
	return reactor.DeferThen(func() { c.Close() },
		reactor.Loop(struct{}{}, func(struct{}) kont.Eff[step] {
			return reactor.TryBind(httpx.ReadRequest(c, acc), func(res kont.Either[error, *httpx.Request]) kont.Eff[step] {
				if err, ok := res.GetLeft(); ok {
					return s.requestFailed(log, c, err)
				}
				req, _ := res.GetRight()
				log.WithFields(logrus.Fields{"method": req.Method, "path": req.Path}).Debug("request")
				return kont.Bind(s.route(req, acc), func(keep bool) kont.Eff[step] {
					if keep {
						return reactor.Continue[struct{}, struct{}](struct{}{})
					}
					return reactor.Break[struct{}](struct{}{})
				})
			})
		}))
}

// requestFailed ends the connection after a failed read, answering 400
// when the client sent something unparseable.
func (s *Server) requestFailed(log logrus.FieldLogger, c *sockio.Socket, err error) kont.Eff[kont.Either[struct{}, struct{}]] {
	done := reactor.Break[struct{}](struct{}{})
	switch {
	case errors.Is(err, io.EOF):
		return done
	case errors.Is(err, httpx.ErrMalformedRequest), errors.Is(err, sockio.ErrTooLong):
		log.WithError(err).Info("bad request")
		req := &httpx.Request{Proto: "HTTP/1.1", Conn: c}
		return kont.Then(reactor.Attempt(httpx.NewResponse(req, http.StatusBadRequest).SendEmpty()), done)
	case errors.Is(err, sockio.ErrClosedPrematurely):
		log.Debug("client closed mid-request")
		return done
	}
	return reactor.Fail[kont.Either[struct{}, struct{}]](err)
}

// serveWebSocket upgrades req if no other WebSocket is active.
func (s *Server) serveWebSocket(req *httpx.Request, acc *bytes.Buffer) kont.Eff[struct{}] {
	return reactor.Delay(func() kont.Eff[struct{}] {
		s.mu.Lock()
		if s.active != nil {
			s.mu.Unlock()
			s.log.Info("refusing second websocket connection")
			return httpx.NewResponse(req, http.StatusBadRequest).SendEmpty()
		}
		conn, err := websocket.NewConn(req, acc, s.handler, websocket.Options{
			MaxMessageSize: s.cfg.MaxMessageSize,
			OutboxSize:     s.cfg.OutboxSize,
			OnOpen:         s.cfg.OnConnect,
			OnClose:        s.cfg.OnDisconnect,
			Logger:         s.cfg.Logger,
		})
		if err != nil {
			s.mu.Unlock()
			s.log.WithError(err).Error("websocket setup failed")
			return httpx.NewResponse(req, http.StatusInternalServerError).SendEmpty()
		}
		s.active = conn
		s.mu.Unlock()

		return reactor.TryBind(conn.Serve(), func(res kont.Either[error, bool]) kont.Eff[struct{}] {
			s.release(conn)
			if err, ok := res.GetLeft(); ok {
				return reactor.Fail[struct{}](err)
			}
			return kont.Pure(struct{}{})
		})
	})
}

// Send queues msg for the connected WebSocket client without blocking.
// Safe from any goroutine.
func (s *Server) Send(msg string) error {
	c := s.Conn()
	if c == nil {
		return ErrNotConnected
	}
	return c.Enqueue(msg)
}

// SendContext is Send that waits while the outbound queue is full.
func (s *Server) SendContext(ctx context.Context, msg string) error {
	c := s.Conn()
	if c == nil {
		return ErrNotConnected
	}
	return c.Send(ctx, msg)
}

// Conn returns the active WebSocket connection, or nil.
func (s *Server) Conn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Connected reports whether a WebSocket connection is active.
func (s *Server) Connected() bool {
	return s.Conn() != nil
}

func (s *Server) release(c *websocket.Conn) {
	s.mu.Lock()
	if s.active == c {
		s.active = nil
	}
	s.mu.Unlock()
}
