// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"encoding/binary"
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"
	"golang.org/x/sys/unix"
)

// EventFd is a level-triggered wakeup flag backed by a Linux eventfd.
//
// Set may be called from any goroutine. While set, the descriptor polls
// readable, so a reactor blocked in poll on it returns. Clear resets it.
// Close may race with Set; the descriptor is never used after release.
type EventFd struct {
	mu sync.RWMutex // held for writing only while closing
	fd atomix.Int32
}

// NewEventFd creates a non-blocking, close-on-exec eventfd in the clear state.
func NewEventFd() (*EventFd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	e := &EventFd{}
	e.fd.Store(int32(fd))
	return e, nil
}

// Fd returns the descriptor to include in a poll set, or -1 after Close.
func (e *EventFd) Fd() int { return int(e.fd.Load()) }

// Set makes the descriptor readable. Setting an already set flag is a no-op.
func (e *EventFd) Set() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fd := int(e.fd.Load())
	if fd < 0 {
		return ErrEventFdClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(fd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			return nil
		case unix.EINTR:
			continue
		}
		return fmt.Errorf("reactor: eventfd set: %w", err)
	}
}

// Clear drains the counter so the descriptor stops polling readable.
func (e *EventFd) Clear() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fd := int(e.fd.Load())
	if fd < 0 {
		return ErrEventFdClosed
	}
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			return nil
		case unix.EINTR:
			continue
		}
		return fmt.Errorf("reactor: eventfd clear: %w", err)
	}
}

// IsSet polls the descriptor with a zero timeout.
func (e *EventFd) IsSet() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fd := e.fd.Load()
	if fd < 0 {
		return false
	}
	fds := []unix.PollFd{{Fd: fd, Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		return err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0
	}
}

// Close releases the descriptor. It waits for in-flight Set, Clear and
// IsSet calls, and is idempotent.
func (e *EventFd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fd := e.fd.Swap(-1)
	if fd < 0 {
		return nil
	}
	return unix.Close(int(fd))
}
