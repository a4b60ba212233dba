// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/reactor"
)

// OpCode is the frame type.
type OpCode byte

const (
	OpContinuation OpCode = 0x0
	OpText         OpCode = 0x1
	OpBinary       OpCode = 0x2
	OpClose        OpCode = 0x8
	OpPing         OpCode = 0x9
	OpPong         OpCode = 0xA
)

// IsControl reports whether op is a control opcode.
func (op OpCode) IsControl() bool { return op&0x8 != 0 }

func (op OpCode) valid() bool {
	switch op {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

func (op OpCode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	}
	return fmt.Sprintf("opcode(%#x)", byte(op))
}

// maxControlPayload is the largest payload a control frame may carry.
const maxControlPayload = 125

var (
	// ErrProtocol reports a frame sequence that violates RFC 6455.
	ErrProtocol = errors.New("websocket: protocol error")

	// ErrUnmaskedFrame reports a client frame without a mask.
	ErrUnmaskedFrame = fmt.Errorf("%w: client sent unmasked frame", ErrProtocol)

	// ErrMessageTooBig reports a frame or message over the size limit.
	ErrMessageTooBig = errors.New("websocket: message too big")

	// ErrInvalidUTF8 reports a text message that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("websocket: invalid utf-8 in text message")

	// ErrIncomplete is returned by ParseFrame when p ends mid-frame.
	ErrIncomplete = errors.New("websocket: incomplete frame")
)

// Frame is one decoded frame with its payload unmasked.
type Frame struct {
	Fin     bool
	Op      OpCode
	Payload []byte
}

// AppendFrame appends f encoded as a server frame: never masked.
func AppendFrame(dst []byte, f Frame) []byte {
	dst = appendHeader(dst, f.Fin, f.Op, len(f.Payload), false)
	return append(dst, f.Payload...)
}

// AppendMaskedFrame appends f encoded as a client frame masked with key.
func AppendMaskedFrame(dst []byte, f Frame, key [4]byte) []byte {
	dst = appendHeader(dst, f.Fin, f.Op, len(f.Payload), true)
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, f.Payload...)
	Mask(dst[start:], key)
	return dst
}

// EncodeText returns msg as a single final text frame.
func EncodeText(msg string) []byte {
	return AppendFrame(make([]byte, 0, len(msg)+10), Frame{Fin: true, Op: OpText, Payload: []byte(msg)})
}

func appendHeader(dst []byte, fin bool, op OpCode, n int, masked bool) []byte {
	b0 := byte(op) & 0x0F
	if fin {
		b0 |= 0x80
	}
	var mbit byte
	if masked {
		mbit = 0x80
	}
	switch {
	case n < 126:
		return append(dst, b0, mbit|byte(n))
	case n < 1<<16:
		dst = append(dst, b0, mbit|126)
		return binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, mbit|127)
		return binary.BigEndian.AppendUint64(dst, uint64(n))
	}
}

// Mask XORs p in place with key, byte i with key[i%4].
// Masking twice restores the input.
func Mask(p []byte, key [4]byte) {
	for i := range p {
		p[i] ^= key[i&3]
	}
}

// header is the fixed two-byte frame prefix.
type header struct {
	fin    bool
	op     OpCode
	masked bool
	len7   byte
}

func parseHeader(b0, b1 byte) (header, error) {
	h := header{
		fin:    b0&0x80 != 0,
		op:     OpCode(b0 & 0x0F),
		masked: b1&0x80 != 0,
		len7:   b1 & 0x7F,
	}
	if b0&0x70 != 0 {
		return h, fmt.Errorf("%w: reserved bits set", ErrProtocol)
	}
	if !h.op.valid() {
		return h, fmt.Errorf("%w: unknown %s", ErrProtocol, h.op)
	}
	if h.op.IsControl() && (!h.fin || h.len7 > maxControlPayload) {
		return h, fmt.Errorf("%w: fragmented or oversized %s frame", ErrProtocol, h.op)
	}
	return h, nil
}

// extLen returns the number of extended length bytes that follow.
func (h header) extLen() int {
	switch h.len7 {
	case 126:
		return 2
	case 127:
		return 8
	}
	return 0
}

func (h header) payloadLen(ext []byte, limit int) (int, error) {
	var n uint64
	switch len(ext) {
	case 0:
		n = uint64(h.len7)
	case 2:
		n = uint64(binary.BigEndian.Uint16(ext))
	default:
		n = binary.BigEndian.Uint64(ext)
		if n&(1<<63) != 0 {
			return 0, fmt.Errorf("%w: payload length has the top bit set", ErrProtocol)
		}
	}
	if limit > 0 && n > uint64(limit) {
		return 0, fmt.Errorf("%w: frame of %d bytes", ErrMessageTooBig, n)
	}
	return int(n), nil
}

// Recv yields exactly n bytes from the peer.
type Recv func(n int) kont.Eff[[]byte]

// ReadFrame reads one client frame through recv. The frame must be
// masked. limit bounds the payload length; limit <= 0 means no limit.
func ReadFrame(recv Recv, limit int) kont.Eff[Frame] {
	return kont.Bind(recv(2), func(b []byte) kont.Eff[Frame] {
		h, err := parseHeader(b[0], b[1])
		if err != nil {
			return reactor.Fail[Frame](err)
		}
		if !h.masked {
			return reactor.Fail[Frame](ErrUnmaskedFrame)
		}
		return kont.Bind(recv(h.extLen()), func(ext []byte) kont.Eff[Frame] {
			n, err := h.payloadLen(ext, limit)
			if err != nil {
				return reactor.Fail[Frame](err)
			}
			return kont.Bind(recv(4), func(key []byte) kont.Eff[Frame] {
				return kont.Bind(recv(n), func(p []byte) kont.Eff[Frame] {
					Mask(p, [4]byte(key))
					return kont.Pure(Frame{Fin: h.fin, Op: h.op, Payload: p})
				})
			})
		})
	})
}

// ParseFrame decodes one frame, masked or not, from the start of p and
// returns it with the number of bytes consumed. It returns ErrIncomplete
// when p holds only part of a frame. The payload is a fresh copy.
func ParseFrame(p []byte) (Frame, int, error) {
	if len(p) < 2 {
		return Frame{}, 0, ErrIncomplete
	}
	h, err := parseHeader(p[0], p[1])
	if err != nil {
		return Frame{}, 0, err
	}
	off := 2
	ext := h.extLen()
	if len(p) < off+ext {
		return Frame{}, 0, ErrIncomplete
	}
	n, err := h.payloadLen(p[off:off+ext], 0)
	if err != nil {
		return Frame{}, 0, err
	}
	off += ext
	var key [4]byte
	if h.masked {
		if len(p) < off+4 {
			return Frame{}, 0, ErrIncomplete
		}
		key = [4]byte(p[off : off+4])
		off += 4
	}
	if len(p)-off < n {
		return Frame{}, 0, ErrIncomplete
	}
	payload := append([]byte(nil), p[off:off+n]...)
	if h.masked {
		Mask(payload, key)
	}
	return Frame{Fin: h.fin, Op: h.op, Payload: payload}, off + n, nil
}
