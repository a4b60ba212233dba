// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpx reads HTTP/1.x request heads and writes responses on
// reactor sockets. It covers what a static file server and a WebSocket
// upgrade need, nothing more.
package httpx
