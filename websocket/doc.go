// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package websocket implements the server side of RFC 6455 on reactor
// sockets.
//
// # Architecture
//
//   - Handshake: [Handshake] validates the upgrade request and answers
//     101 or 400. [AcceptKey] derives Sec-WebSocket-Accept.
//   - Framing: [ReadFrame] decodes masked client frames through a [Recv]
//     source; [AppendFrame] encodes unmasked server frames.
//     [AppendMaskedFrame] and [ParseFrame] cover the client role.
//   - Messages: [Conn.ReadMessage] reassembles fragments, answers pings
//     and reports close frames as a [Message] with Op [OpClose].
//   - Outbound: [Outbox] is a bounded lfq SPSC queue whose producer side
//     is serialized by a mutex. Enqueueing sets an EventFd that the
//     connection task polls together with the socket.
//
// A connection task runs [Conn.Serve]; other goroutines push text with
// [Conn.Enqueue] or [Conn.Send].
package websocket
