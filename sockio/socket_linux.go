// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sockio

import (
	"fmt"
	"io"
	"net/netip"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// Socket is a non-blocking stream socket on a raw descriptor.
// Read, Write and Accept never block: they return iox.ErrWouldBlock
// and the caller waits for readiness on the reactor.
type Socket struct {
	fd     int
	remote string
	closed bool
}

// NewSocket wraps fd, switching it to non-blocking mode.
func NewSocket(fd int) (*Socket, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("sockio: set nonblock: %w", err)
	}
	return &Socket{fd: fd}, nil
}

// Listen opens a TCP listener on host:port. Port 0 picks a free port.
func Listen(host string, port, backlog int) (*Socket, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil, fmt.Errorf("sockio: listen address %q: %w", host, err)
	}
	family := unix.AF_INET
	if addr.Is6() && !addr.Is4In6() {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("sockio: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sockio: reuseaddr: %w", err)
	}
	var sa unix.Sockaddr
	if family == unix.AF_INET {
		sa = &unix.SockaddrInet4{Port: port, Addr: addr.Unmap().As4()}
	} else {
		sa = &unix.SockaddrInet6{Port: port, Addr: addr.As16()}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sockio: bind %s: %w", netip.AddrPortFrom(addr, uint16(port)), err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sockio: listen: %w", err)
	}
	return &Socket{fd: fd}, nil
}

// Fd returns the descriptor.
func (s *Socket) Fd() int { return s.fd }

// RemoteAddr returns the peer address of an accepted socket, or "".
func (s *Socket) RemoteAddr() string { return s.remote }

// Port returns the bound local port.
func (s *Socket) Port() (int, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return 0, fmt.Errorf("sockio: getsockname: %w", err)
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port, nil
	case *unix.SockaddrInet6:
		return a.Port, nil
	}
	return 0, fmt.Errorf("sockio: unexpected address family %T", sa)
}

// Accept takes one pending connection.
// Returns iox.ErrWouldBlock when none is pending.
func (s *Socket) Accept() (*Socket, error) {
	for {
		nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			return &Socket{fd: nfd, remote: sockaddrString(sa)}, nil
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			return nil, iox.ErrWouldBlock
		}
		return nil, fmt.Errorf("sockio: accept: %w", err)
	}
}

// Read reads what is available into p.
// Returns io.EOF once the peer has shut down its side.
func (s *Socket) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(s.fd, p)
		switch err {
		case nil:
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, iox.ErrWouldBlock
		case unix.ECONNRESET:
			return 0, io.EOF
		}
		return 0, fmt.Errorf("sockio: read: %w", err)
	}
}

// Write writes as much of p as the kernel buffer accepts.
func (s *Socket) Write(p []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(s.fd, p, nil, nil, unix.MSG_NOSIGNAL)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, iox.ErrWouldBlock
		}
		return 0, fmt.Errorf("sockio: write: %w", err)
	}
}

// Close shuts the connection down in both directions and releases the
// descriptor. Closing twice is a no-op.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = unix.Shutdown(s.fd, unix.SHUT_RDWR)
	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("sockio: close: %w", err)
	}
	return nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrUnix:
		return a.Name
	}
	return ""
}
