//go:build darwin

package httpcore

import (
	"golang.org/x/sys/unix"
)

// newNonblockSocket creates a nonblocking, close-on-exec TCP socket. Darwin
// has no SOCK_NONBLOCK/SOCK_CLOEXEC creation flags, so they are set after.
func newNonblockSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// acceptConn accepts one pending connection, then marks it nonblocking and
// close-on-exec.
func acceptConn(listenFd int) (int, unix.Sockaddr, error) {
	fd, sa, err := unix.Accept(listenFd)
	if err != nil {
		return -1, nil, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, nil, err
	}
	return fd, sa, nil
}
