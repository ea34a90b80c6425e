//go:build darwin

package httpcore

import (
	"time"

	"golang.org/x/sys/unix"
)

// poller manages interest-set registration using kqueue (Darwin).
//
// kqueue has no single "modify" call covering both filters, so reregister
// computes the per-filter delta against the stored descriptor and issues
// EV_ADD/EV_DELETE changes accordingly. Like the Linux poller this is
// lock-free: only the I/O thread touches it.
type poller struct {
	kq       int
	eventBuf [maxPollEvents]unix.Kevent_t
	fds      [maxFDs]pollDesc
	closed   bool
}

// init initializes the kqueue instance.
func (p *poller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	return nil
}

// close closes the kqueue instance.
func (p *poller) close() error {
	p.closed = true
	if p.kq > 0 {
		return unix.Close(p.kq)
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

	changes := filterChanges(fd, readable, writable, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return err
		}
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
	d := p.fds[fd]
	if !d.active {
		return ErrFDNotRegistered
	}

	if del := filterChanges(fd, d.readable && !readable, d.writable && !writable, unix.EV_DELETE); len(del) > 0 {
		unix.Kevent(p.kq, del, nil, nil) // Ignore errors on delete
	}
	if add := filterChanges(fd, readable && !d.readable, writable && !d.writable, unix.EV_ADD|unix.EV_ENABLE); len(add) > 0 {
		if _, err := unix.Kevent(p.kq, add, nil, nil); err != nil {
			return err
		}
	}
	p.fds[fd] = pollDesc{tok: tok, readable: readable, writable: writable, active: true}
	return nil
}

// deregister removes fd from the interest set entirely.
func (p *poller) deregister(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	d := p.fds[fd]
	if !d.active {
		return ErrFDNotRegistered
	}

	p.fds[fd] = pollDesc{}
	if del := filterChanges(fd, d.readable, d.writable, unix.EV_DELETE); len(del) > 0 {
		unix.Kevent(p.kq, del, nil, nil) // Ignore errors on delete
	}
	return nil
}

// wait blocks for readiness events up to the given timeout (zero blocks
// indefinitely) and translates them into out. A zero return with nil error
// means the timeout elapsed or the wait was interrupted (EINTR).
func (p *poller) wait(out []pollEvent, timeout time.Duration) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}

	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for i := 0; i < n && count < len(out); i++ {
		kev := &p.eventBuf[i]
		fd := int(kev.Ident)
		if fd < 0 || fd >= maxFDs || !p.fds[fd].active {
			// Stale event for an fd torn down earlier in this batch.
			continue
		}
		ev := pollEvent{tok: p.fds[fd].tok}
		switch kev.Filter {
		case unix.EVFILT_READ:
			ev.readable = true
			if kev.Flags&unix.EV_EOF != 0 {
				ev.readClosed = true
			}
		case unix.EVFILT_WRITE:
			ev.writable = true
			if kev.Flags&unix.EV_EOF != 0 {
				ev.writeClosed = true
			}
		}
		if kev.Flags&unix.EV_ERROR != 0 {
			ev.isError = true
		}
		out[count] = ev
		count++
	}
	return count, nil
}

// filterChanges builds kevent changes for the selected filters.
func filterChanges(fd int, read, write bool, flags uint16) []unix.Kevent_t {
	var changes []unix.Kevent_t
	if read {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}
	if write {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}
	return changes
}
