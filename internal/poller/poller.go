//go:build linux

// Package poller implements the readiness primitive behind the reactor: a
// set of registered file descriptors, each with a callback, and a blocking
// wait that dispatches the callbacks whose descriptors became readable.
//
// Dispatch is strictly single-threaded. Poll blocks in epoll_wait, then
// runs every fired callback to completion before the next wait. Callbacks
// therefore never race with each other or with Register/Unregister, which
// must be called from the same goroutine.
package poller

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Action is the control signal a callback returns to the poller.
type Action int

const (
	// Continue keeps the registration active.
	Continue Action = iota
	// Cancel removes this handle's registration. The callback will not
	// fire again.
	Cancel
)

// Callback runs when the registered descriptor is readable.
type Callback func() Action

// Poller multiplexes read-readiness over registered descriptors.
type Poller struct {
	epfd      int
	callbacks map[int32]Callback
	events    []unix.EpollEvent
}

// New creates an epoll instance.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Poller{
		epfd:      epfd,
		callbacks: make(map[int32]Callback),
		events:    make([]unix.EpollEvent, 64),
	}, nil
}

// Register adds fd with read-readiness interest. Level-triggered, so a
// callback that does not drain the socket simply fires again on the next
// wait.
func (p *Poller) Register(fd int, cb Callback) error {
	if cb == nil {
		return fmt.Errorf("register fd %d: nil callback", fd)
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLHUP, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	p.callbacks[int32(fd)] = cb
	return nil
}

// Unregister removes fd's registration. It is idempotent: removing a
// descriptor that was never added, was already removed, or was already
// closed is not an error, so connection teardown cannot fail halfway.
func (p *Poller) Unregister(fd int) {
	if _, ok := p.callbacks[int32(fd)]; !ok {
		return
	}
	delete(p.callbacks, int32(fd))
	// EBADF/ENOENT happen when the descriptor is already closed; the
	// kernel dropped the registration for us.
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Registered reports whether fd currently has a live registration.
func (p *Poller) Registered(fd int) bool {
	_, ok := p.callbacks[int32(fd)]
	return ok
}

// Poll blocks until at least one registered descriptor is readable, then
// dispatches the fired callbacks. A callback returning Cancel has its
// registration removed before the next callback runs.
//
// Returns an error only when the wait itself fails; that failure is fatal
// to the reactor, per the error model of the service.
func (p *Poller) Poll() error {
	var n int
	var err error
	for {
		n, err = unix.EpollWait(p.epfd, p.events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("epoll_wait: %w", err)
		}
		break
	}

	for i := 0; i < n; i++ {
		fd := p.events[i].Fd
		// An earlier callback in this batch may have cancelled this
		// registration; its events are then stale and must not fire.
		cb, ok := p.callbacks[fd]
		if !ok {
			continue
		}
		if cb() == Cancel {
			p.Unregister(int(fd))
		}
	}

	return nil
}

// Close releases the epoll descriptor. Registered sockets are not closed;
// their owners close them.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
