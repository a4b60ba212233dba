// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/httpx"
)

// route answers one request and yields whether the connection should
// serve another.
func (s *Server) route(req *httpx.Request, acc *bytes.Buffer) kont.Eff[bool] {
	if req.PathOnly() == s.cfg.WebSocketPath {
		return kont.Then(s.serveWebSocket(req, acc), kont.Pure(false))
	}
	keep := req.KeepAlive()
	return kont.Then(req.DiscardBody(acc), kont.Then(s.serveStatic(req), kont.Pure(keep)))
}

// serveStatic answers GET and HEAD with a file under Root.
func (s *Server) serveStatic(req *httpx.Request) kont.Eff[struct{}] {
	return reactor.Delay(func() kont.Eff[struct{}] {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			resp := httpx.NewResponse(req, http.StatusMethodNotAllowed)
			resp.AddHeader("Allow", "GET, HEAD")
			return resp.SendEmpty()
		}
		path, ok := s.resolve(req.PathOnly())
		if !ok {
			return httpx.NewResponse(req, http.StatusNotFound).SendEmpty()
		}
		resp := httpx.NewResponse(req, http.StatusOK)
		if req.Method == http.MethodHead {
			return resp.SendFileHead(path)
		}
		return resp.SendFile(path)
	})
}

// resolve maps a URL path to a regular file under Root. "/" maps to the
// index file. Paths escaping Root, missing files, directories and
// anything else that is not a regular file do not resolve.
func (s *Server) resolve(urlPath string) (string, bool) {
	if s.cfg.Root == "" {
		return "", false
	}
	rel, err := url.PathUnescape(urlPath)
	if err != nil || strings.ContainsRune(rel, 0) {
		return "", false
	}
	root, err := filepath.Abs(s.cfg.Root)
	if err != nil {
		return "", false
	}
	full := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", false
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", false
	}
	if full == root {
		full = filepath.Join(root, s.cfg.IndexFile)
		if info, err = os.Stat(full); err != nil {
			return "", false
		}
	}
	if !info.Mode().IsRegular() {
		return "", false
	}
	return full, true
}
