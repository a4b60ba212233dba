// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server runs a loopback HTTP server on a reactor: static files
// from a root directory plus a single WebSocket endpoint.
package server
