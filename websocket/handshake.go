// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"strings"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor/httpx"
)

// acceptGUID is the fixed suffix from RFC 6455 section 1.3.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Version is the only protocol version accepted.
const Version = "13"

// AcceptKey computes Sec-WebSocket-Accept for a client key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Handshake validates an upgrade request and answers it. It yields true
// after sending 101 Switching Protocols, or false after sending 400.
// A version mismatch advertises the supported version.
func Handshake(req *httpx.Request) kont.Eff[bool] {
	reject := func(advertise bool) kont.Eff[bool] {
		resp := httpx.NewResponse(req, http.StatusBadRequest)
		if advertise {
			resp.AddHeader("Sec-WebSocket-Version", Version)
		}
		return kont.Then(resp.SendEmpty(), kont.Pure(false))
	}
	h := req.Header
	if req.Method != http.MethodGet ||
		!h.HasToken("Connection", "upgrade") ||
		!strings.EqualFold(h.Get("Upgrade"), "websocket") {
		return reject(false)
	}
	key := h.Get("Sec-WebSocket-Key")
	if key == "" {
		return reject(false)
	}
	if h.Get("Sec-WebSocket-Version") != Version {
		return reject(true)
	}
	resp := httpx.NewResponse(req, http.StatusSwitchingProtocols)
	resp.AddHeader("Upgrade", "websocket")
	resp.AddHeader("Connection", "Upgrade")
	resp.AddHeader("Sec-WebSocket-Accept", AcceptKey(key))
	return kont.Then(resp.SendEmpty(), kont.Pure(true))
}
