//go:build linux || darwin

package httpcore

import (
	"golang.org/x/sys/unix"
)

// readBuf reads one OS-level chunk from fd into the unwritten tail of b,
// advancing b's logical length. Neither this nor writeBuf loops internally;
// the caller loops until EAGAIN.
func readBuf(fd int, b *streamBuffer) (int, error) {
	n, err := unix.Read(fd, b.tail())
	if n > 0 {
		b.advance(n)
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

// writeBuf writes one OS-level chunk from the head of b to fd, consuming the
// written prefix.
func writeBuf(fd int, b *streamBuffer) (int, error) {
	if b.Len() == 0 {
		return 0, nil
	}
	n, err := unix.Write(fd, b.bytes())
	if n > 0 {
		b.consume(n)
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

// closeFD closes a file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// shutdownWrite closes the write half of a socket, leaving the read half to
// drain. Errors are ignored: the fd may already be fully closed by the peer.
func shutdownWrite(fd int) {
	_ = unix.Shutdown(fd, unix.SHUT_WR)
}
