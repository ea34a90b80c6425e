//go:build linux

package httpcore

import (
	"time"

	"golang.org/x/sys/unix"
)

// poller manages interest-set registration using epoll (Linux).
//
// Direct array indexing by fd (no map) keeps lookup O(1); no lock is needed
// because the poller is touched only by the I/O thread — every cross-thread
// interest change arrives via the update queue and is applied here, on this
// thread, in order.
type poller struct {
	epfd     int
	eventBuf [maxPollEvents]unix.EpollEvent
	fds      [maxFDs]pollDesc
	closed   bool
}

// init initializes the epoll instance.
func (p *poller) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	return nil
}

// close closes the epoll instance.
func (p *poller) close() error {
	p.closed = true
	if p.epfd > 0 {
		return unix.Close(p.epfd)
	}
	return nil
}

// register adds fd under tok with the given interest set.
func (p *poller) register(fd int, tok Token, readable, writable bool) error {
	if p.closed {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	if p.fds[fd].active {
		return ErrFDAlreadyRegistered
	}

	ev := unix.EpollEvent{Events: epollInterest(readable, writable), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	p.fds[fd] = pollDesc{tok: tok, readable: readable, writable: writable, active: true}
	return nil
}

// reregister replaces fd's interest set.
func (p *poller) reregister(fd int, tok Token, readable, writable bool) error {
	if p.closed {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	if !p.fds[fd].active {
		return ErrFDNotRegistered
	}

	ev := unix.EpollEvent{Events: epollInterest(readable, writable), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return err
	}
	p.fds[fd] = pollDesc{tok: tok, readable: readable, writable: writable, active: true}
	return nil
}

// deregister removes fd from the interest set entirely.
func (p *poller) deregister(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	if !p.fds[fd].active {
		return ErrFDNotRegistered
	}

	p.fds[fd] = pollDesc{}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks for readiness events up to the given timeout (zero blocks
// indefinitely) and translates them into out. A zero return with nil error
// means the timeout elapsed or the wait was interrupted (EINTR).
func (p *poller) wait(out []pollEvent, timeout time.Duration) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}

	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 {
			ms = 1
		}
	}

	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for i := 0; i < n && count < len(out); i++ {
		ev := &p.eventBuf[i]
		fd := int(ev.Fd)
		if fd < 0 || fd >= maxFDs || !p.fds[fd].active {
			// Stale event for an fd torn down earlier in this batch.
			continue
		}
		out[count] = pollEvent{
			tok:         p.fds[fd].tok,
			readable:    ev.Events&unix.EPOLLIN != 0,
			writable:    ev.Events&unix.EPOLLOUT != 0,
			isError:     ev.Events&unix.EPOLLERR != 0,
			readClosed:  ev.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0,
			writeClosed: ev.Events&unix.EPOLLHUP != 0,
		}
		count++
	}
	return count, nil
}

// epollInterest converts the interest flag pair to epoll event flags.
// EPOLLRDHUP is always requested so peer half-close is observable.
func epollInterest(readable, writable bool) uint32 {
	events := uint32(unix.EPOLLRDHUP)
	if readable {
		events |= unix.EPOLLIN
	}
	if writable {
		events |= unix.EPOLLOUT
	}
	return events
}
