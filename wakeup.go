//go:build linux || darwin

package httpcore

import (
	"golang.org/x/sys/unix"
)

// waker is the I/O-loop wake-up primitive: an eventfd on Linux, a self-pipe
// on Darwin. The read end is registered in the poller under wakeToken; the
// write end is poked from any goroutine. Wakes are idempotent: multiple
// wakes coalesce into at most one poller iteration, and the I/O thread
// drains to empty on each wake-up.
type waker struct {
	readFd  int
	writeFd int
}

// newWaker creates the platform wake fd pair.
func newWaker() (*waker, error) {
	readFd, writeFd, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &waker{readFd: readFd, writeFd: writeFd}, nil
}

// wake makes the next (or current) poll return with a wakeToken event.
// Safe from any goroutine. A full pipe/counter is fine: a wake is already
// pending, which is all that is needed.
func (w *waker) wake() {
	var buf [8]byte
	buf[0] = 1 // eventfd requires a non-zero 8-byte counter increment
	for {
		_, err := unix.Write(w.writeFd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

// drain consumes all pending wake signals. Called only by the I/O thread
// when a wakeToken event fires.
func (w *waker) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.readFd, buf[:])
		if err != nil {
			return
		}
	}
}

// close releases the wake fds.
func (w *waker) close() {
	closeWakeFd(w.readFd, w.writeFd)
}
