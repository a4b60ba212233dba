// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpx_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/httpx"
	"code.hybscloud.com/reactor/sockio"
)

func TestParseRequest(t *testing.T) {
	head := "GET /index.html?x=1 HTTP/1.1\r\nHost: localhost\r\nConnection: Keep-Alive\r\nX-Odd:  spaced value "
	req, err := httpx.ParseRequest([]byte(head))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Method != "GET" || req.Path != "/index.html?x=1" || req.Proto != "HTTP/1.1" {
		t.Fatalf("request line got %q %q %q", req.Method, req.Path, req.Proto)
	}
	if got := req.Header.Get("host"); got != "localhost" {
		t.Fatalf("host got %q, want %q", got, "localhost")
	}
	if got := req.Header.Get("X-ODD"); got != "spaced value" {
		t.Fatalf("x-odd got %q, want %q", got, "spaced value")
	}
	if got := req.PathOnly(); got != "/index.html" {
		t.Fatalf("PathOnly got %q, want %q", got, "/index.html")
	}
	if !req.KeepAlive() {
		t.Fatalf("KeepAlive false for Connection: Keep-Alive")
	}
}

func TestParseRequestMalformed(t *testing.T) {
	cases := []string{
		"",
		"GET /",
		"GET / HTTP/1.1 extra",
		"GET / HTTP/1.1\r\nno colon here",
	}
	for _, head := range cases {
		if _, err := httpx.ParseRequest([]byte(head)); !errors.Is(err, httpx.ErrMalformedRequest) {
			t.Fatalf("ParseRequest(%q) got %v, want ErrMalformedRequest", head, err)
		}
	}
}

func TestHeaderHasToken(t *testing.T) {
	h := httpx.Header{"connection": "keep-alive, Upgrade"}
	if !h.HasToken("Connection", "upgrade") {
		t.Fatalf("upgrade token not found")
	}
	if !h.HasToken("connection", "KEEP-ALIVE") {
		t.Fatalf("keep-alive token not found")
	}
	if h.HasToken("Connection", "close") {
		t.Fatalf("close token found")
	}
	if h.HasToken("Upgrade", "websocket") {
		t.Fatalf("token found in missing header")
	}
}

func TestKeepAliveDefaultsToClose(t *testing.T) {
	req, err := httpx.ParseRequest([]byte("GET / HTTP/1.1"))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.KeepAlive() {
		t.Fatalf("KeepAlive true without a Connection header")
	}
}

func TestContentLength(t *testing.T) {
	for _, tc := range []struct {
		value string
		want  int
		bad   bool
	}{
		{"", 0, false},
		{"12", 12, false},
		{"-1", 0, true},
		{"ten", 0, true},
	} {
		req := &httpx.Request{Header: httpx.Header{}}
		if tc.value != "" {
			req.Header["content-length"] = tc.value
		}
		n, err := req.ContentLength()
		if tc.bad {
			if !errors.Is(err, httpx.ErrMalformedRequest) {
				t.Fatalf("ContentLength(%q) got %v, want ErrMalformedRequest", tc.value, err)
			}
			continue
		}
		if err != nil || n != tc.want {
			t.Fatalf("ContentLength(%q) got (%d, %v), want %d", tc.value, n, err, tc.want)
		}
	}
}

func TestReadRequestPipelined(t *testing.T) {
	r := newReactor(t)
	s, peer := pipe(t)
	raw := "POST /a HTTP/1.1\r\nContent-Length: 5\r\n\r\nhelloGET /b HTTP/1.1\r\n\r\n"
	if _, err := peer.Write([]byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
	acc := new(bytes.Buffer)
	first, err := reactor.RunTask(r, httpx.ReadRequest(s, acc))
	if err != nil {
		t.Fatalf("first ReadRequest: %v", err)
	}
	if first.Conn != sockio.Conn(s) {
		t.Fatalf("request not bound to its connection")
	}
	if _, err := reactor.RunTask(r, first.DiscardBody(acc)); err != nil {
		t.Fatalf("DiscardBody: %v", err)
	}
	second, err := reactor.RunTask(r, httpx.ReadRequest(s, acc))
	if err != nil {
		t.Fatalf("second ReadRequest: %v", err)
	}
	if first.Path != "/a" || second.Path != "/b" {
		t.Fatalf("paths got %q, %q, want /a, /b", first.Path, second.Path)
	}

	peer.Close()
	if _, err := reactor.RunTask(r, httpx.ReadRequest(s, acc)); err != io.EOF {
		t.Fatalf("after close got %v, want io.EOF", err)
	}
}

func TestReadRequestMalformed(t *testing.T) {
	r := newReactor(t)
	s, peer := pipe(t)
	if _, err := peer.Write([]byte("BROKEN\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := reactor.RunTask(r, httpx.ReadRequest(s, new(bytes.Buffer)))
	if !errors.Is(err, httpx.ErrMalformedRequest) {
		t.Fatalf("got %v, want ErrMalformedRequest", err)
	}
}
