// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// readiness is one descriptor reported by poll.
type readiness struct {
	fd    int
	read  bool
	write bool
	bad   bool
}

// poller builds a poll set from the registered descriptors on each call.
// The wakeup descriptor always occupies slot 0.
type poller struct {
	fds []unix.PollFd
	out []readiness
}

// wait polls wake plus every descriptor in readers and writers.
// timeout is in milliseconds; -1 blocks. EINTR is retried.
// It reports whether wake fired and which registered descriptors are ready.
func (p *poller) wait(wake int, readers, writers map[int]*Task, timeout int) (bool, []readiness, error) {
	p.fds = append(p.fds[:0], unix.PollFd{Fd: int32(wake), Events: unix.POLLIN})
	index := make(map[int]int, len(readers)+len(writers))
	add := func(fd int, ev int16) {
		if i, ok := index[fd]; ok {
			p.fds[i].Events |= ev
			return
		}
		index[fd] = len(p.fds)
		p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: ev})
	}
	for fd := range readers {
		add(fd, unix.POLLIN)
	}
	for fd := range writers {
		add(fd, unix.POLLOUT)
	}

	for {
		_, err := unix.Poll(p.fds, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, nil, fmt.Errorf("reactor: poll: %w", err)
		}
		break
	}

	p.out = p.out[:0]
	woke := p.fds[0].Revents != 0
	for _, pfd := range p.fds[1:] {
		rev := pfd.Revents
		if rev == 0 {
			continue
		}
		r := readiness{fd: int(pfd.Fd)}
		switch {
		case rev&unix.POLLNVAL != 0:
			r.bad = true
		case rev&(unix.POLLERR|unix.POLLHUP) != 0:
			// Errors and hangups surface on the next read or write.
			r.read = pfd.Events&unix.POLLIN != 0
			r.write = pfd.Events&unix.POLLOUT != 0
		default:
			r.read = rev&(unix.POLLIN|unix.POLLRDHUP) != 0
			r.write = rev&unix.POLLOUT != 0
		}
		p.out = append(p.out, r)
	}
	return woke, p.out, nil
}
