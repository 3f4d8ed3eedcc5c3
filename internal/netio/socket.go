//go:build linux

// Package netio wraps the raw non-blocking TCP socket operations the
// reactor needs: listen, accept, read and close over plain file
// descriptors.
//
// The standard library's net package hides file descriptors behind its own
// runtime poller, which cannot be combined with an explicit readiness loop.
// This package talks to the kernel directly so the epoll-based reactor in
// internal/poller can own readiness for every handle.
package netio

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock reports that a non-blocking operation found no data or no
// pending connection. It is not a failure; the caller should wait for the
// next readiness event.
var ErrWouldBlock = errors.New("operation would block")

// TCPSocket is an exclusively owned, non-blocking TCP socket.
//
// A TCPSocket is either a listening socket created by Listen or a connected
// socket returned by Accept. It is not safe for concurrent use; the reactor
// model guarantees a single goroutine touches it.
type TCPSocket struct {
	fd   int
	peer string
}

// Listen creates a non-blocking IPv4 listening socket bound to every local
// interface on the given port. SO_REUSEADDR and SO_REUSEPORT are set so the
// service restarts cleanly and multiple receiver processes can share a
// port.
func Listen(port uint16) (*TCPSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set SO_REUSEPORT: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: int(port)}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &TCPSocket{fd: fd}, nil
}

// Accept accepts exactly one pending connection. It returns ErrWouldBlock
// when the backlog is empty.
func (s *TCPSocket) Accept() (*TCPSocket, error) {
	for {
		fd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, ErrWouldBlock
		}
		if err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
		return &TCPSocket{fd: fd, peer: peerIP(sa)}, nil
	}
}

// Read reads currently available bytes into p.
//
// A return of (0, nil) signals orderly end of stream: the peer closed its
// write side. ErrWouldBlock means no bytes are available right now.
func (s *TCPSocket) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		if err != nil {
			return 0, fmt.Errorf("read: %w", err)
		}
		return n, nil
	}
}

// FD exposes the file descriptor for readiness registration.
func (s *TCPSocket) FD() int {
	return s.fd
}

// PeerIP returns the remote IP of an accepted socket, or "" for a listening
// socket.
func (s *TCPSocket) PeerIP() string {
	return s.peer
}

// LocalPort reports the port the socket is bound to. Needed when listening
// on port 0 (kernel-assigned), which the tests rely on.
func (s *TCPSocket) LocalPort() (uint16, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return 0, fmt.Errorf("getsockname: %w", err)
	}
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return uint16(v.Port), nil
	case *unix.SockaddrInet6:
		return uint16(v.Port), nil
	default:
		return 0, fmt.Errorf("unexpected sockaddr type %T", sa)
	}
}

// Close releases the descriptor. Closing twice returns an error from the
// kernel; the reactor destroys each connection exactly once.
func (s *TCPSocket) Close() error {
	return unix.Close(s.fd)
}

func peerIP(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(v.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(v.Addr[:]).String()
	default:
		return ""
	}
}
