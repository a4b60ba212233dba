// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/sockio"
)

// MaxHeadSize bounds the request line plus headers.
const MaxHeadSize = 64 << 10

// ErrMalformedRequest reports a request head that cannot be parsed.
var ErrMalformedRequest = errors.New("httpx: malformed request")

var headTerminator = []byte("\r\n\r\n")

// Header maps lower-cased field names to values. A repeated field keeps
// its last value.
type Header map[string]string

// Get returns the value of name, matched case-insensitively.
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// HasToken reports whether the comma-separated value of name contains
// token, compared case-insensitively.
func (h Header) HasToken(name, token string) bool {
	for part := range strings.SplitSeq(h.Get(name), ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// Request is a parsed HTTP/1.x request head.
type Request struct {
	Method string
	Path   string
	Proto  string
	Header Header

	// Conn is the connection the request arrived on. Responses are
	// written to it.
	Conn sockio.Conn
}

// ParseRequest parses a request head without its terminating blank line.
func ParseRequest(head []byte) (*Request, error) {
	lines := strings.Split(string(head), "\r\n")
	fields := strings.Fields(lines[0])
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformedRequest, lines[0])
	}
	req := &Request{
		Method: fields[0],
		Path:   fields[1],
		Proto:  fields[2],
		Header: make(Header, len(lines)-1),
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformedRequest, line)
		}
		req.Header[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return req, nil
}

// ReadRequest reads one request head from c, buffering through acc.
// Throws io.EOF when the peer closes between requests and
// sockio.ErrTooLong when the head exceeds MaxHeadSize.
func ReadRequest(c sockio.Conn, acc *bytes.Buffer) kont.Eff[*Request] {
	return kont.Bind(sockio.RecvUntilMax(c, acc, headTerminator, MaxHeadSize),
		func(head []byte) kont.Eff[*Request] {
			req, err := ParseRequest(head)
			if err != nil {
				return reactor.Fail[*Request](err)
			}
			req.Conn = c
			return kont.Pure(req)
		})
}

// KeepAlive reports whether the client asked to keep the connection open.
func (r *Request) KeepAlive() bool {
	return r.Header.HasToken("Connection", "keep-alive")
}

// PathOnly returns the request target without query or fragment.
func (r *Request) PathOnly() string {
	p := r.Path
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return p
}

// ContentLength returns the declared body length, 0 if absent.
func (r *Request) ContentLength() (int, error) {
	v := r.Header.Get("Content-Length")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: content-length %q", ErrMalformedRequest, v)
	}
	return n, nil
}

// DiscardBody consumes a Content-Length body so the next request on a
// kept-alive connection starts at the right byte.
func (r *Request) DiscardBody(acc *bytes.Buffer) kont.Eff[struct{}] {
	return reactor.Delay(func() kont.Eff[struct{}] {
		n, err := r.ContentLength()
		if err != nil {
			return reactor.Fail[struct{}](err)
		}
		if n == 0 {
			return kont.Pure(struct{}{})
		}
		return kont.Map(sockio.RecvExact(r.Conn, acc, n), func([]byte) struct{} { return struct{}{} })
	})
}
