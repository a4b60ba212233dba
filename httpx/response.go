// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/sockio"
)

// ServerName is the value of the Server header on every response.
const ServerName = "reactor live webserver"

// fileChunk is the read size when streaming a file body.
const fileChunk = 64 << 10

// ErrHeadersSent is returned when a response is modified or sent after
// its head went out.
var ErrHeadersSent = errors.New("httpx: response already sent")

type headerField struct {
	name, value string
}

// Response accumulates a status and headers and writes them once.
type Response struct {
	conn   sockio.Conn
	proto  string
	code   int
	fields []headerField
	sent   bool
}

// NewResponse starts a response to req with status code.
func NewResponse(req *Request, code int) *Response {
	return &Response{
		conn:   req.Conn,
		proto:  req.Proto,
		code:   code,
		fields: []headerField{{"Server", ServerName}},
	}
}

// Code returns the status code.
func (r *Response) Code() int { return r.code }

// Sent reports whether the head was written.
func (r *Response) Sent() bool { return r.sent }

// AddHeader appends a header field. Order is preserved on the wire.
func (r *Response) AddHeader(name, value string) error {
	if r.sent {
		return ErrHeadersSent
	}
	r.fields = append(r.fields, headerField{name, value})
	return nil
}

// Head renders the status line and header fields, terminated by a blank line.
func (r *Response) Head() []byte {
	b := make([]byte, 0, 128)
	b = fmt.Appendf(b, "%s %d %s\r\n", r.proto, r.code, http.StatusText(r.code))
	for _, f := range r.fields {
		b = append(b, f.name...)
		b = append(b, ": "...)
		b = append(b, f.value...)
		b = append(b, "\r\n"...)
	}
	return append(b, "\r\n"...)
}

// markSent claims the single send.
func (r *Response) markSent() error {
	if r.sent {
		return ErrHeadersSent
	}
	r.sent = true
	return nil
}

// SendEmpty sends the head with Content-Length: 0. Informational
// responses, which carry no body, get no Content-Length.
func (r *Response) SendEmpty() kont.Eff[struct{}] {
	return reactor.Delay(func() kont.Eff[struct{}] {
		if r.code >= 200 {
			r.AddHeader("Content-Length", "0")
		}
		if err := r.markSent(); err != nil {
			return reactor.Fail[struct{}](err)
		}
		return sockio.SendAll(r.conn, r.Head())
	})
}

// SendBytes sends body with the given content type.
func (r *Response) SendBytes(body []byte, contentType string) kont.Eff[struct{}] {
	return reactor.Delay(func() kont.Eff[struct{}] {
		r.AddHeader("Content-Length", strconv.Itoa(len(body)))
		r.AddHeader("Content-Type", contentType)
		if err := r.markSent(); err != nil {
			return reactor.Fail[struct{}](err)
		}
		head := r.Head()
		return sockio.SendAll(r.conn, append(head, body...))
	})
}

// SendFile sends the file at path as the body, with Content-Length from
// its size and Content-Type from its extension. The file is closed
// whatever the outcome.
func (r *Response) SendFile(path string) kont.Eff[struct{}] {
	return r.sendFile(path, true)
}

// SendFileHead is SendFile for HEAD requests: same head, no body.
func (r *Response) SendFileHead(path string) kont.Eff[struct{}] {
	return r.sendFile(path, false)
}

func (r *Response) sendFile(path string, withBody bool) kont.Eff[struct{}] {
	return reactor.Delay(func() kont.Eff[struct{}] {
		f, err := os.Open(path)
		if err != nil {
			return reactor.Fail[struct{}](err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return reactor.Fail[struct{}](err)
		}
		r.AddHeader("Content-Length", strconv.FormatInt(info.Size(), 10))
		r.AddHeader("Content-Type", ContentType(path))
		if err := r.markSent(); err != nil {
			f.Close()
			return reactor.Fail[struct{}](err)
		}
		send := sockio.SendAll(r.conn, r.Head())
		if withBody {
			send = kont.Then(send, streamFile(r.conn, f))
		}
		return reactor.TryBind(send, func(res kont.Either[error, struct{}]) kont.Eff[struct{}] {
			f.Close()
			if err, ok := res.GetLeft(); ok {
				return reactor.Fail[struct{}](err)
			}
			return kont.Pure(struct{}{})
		})
	})
}

// streamFile copies f to c in fileChunk pieces.
func streamFile(c sockio.Conn, f *os.File) kont.Eff[struct{}] {
	buf := make([]byte, fileChunk)
	return reactor.Loop(struct{}{}, func(struct{}) kont.Eff[kont.Either[struct{}, struct{}]] {
		return reactor.Delay(func() kont.Eff[kont.Either[struct{}, struct{}]] {
			n, err := f.Read(buf)
			if n > 0 {
				return kont.Then(sockio.SendAll(c, buf[:n]), reactor.Continue[struct{}, struct{}](struct{}{}))
			}
			if err == io.EOF {
				return reactor.Break[struct{}](struct{}{})
			}
			if err != nil {
				return reactor.Fail[kont.Either[struct{}, struct{}]](err)
			}
			return reactor.Continue[struct{}, struct{}](struct{}{})
		})
	})
}
