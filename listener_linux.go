//go:build linux

package httpcore

import (
	"golang.org/x/sys/unix"
)

// newNonblockSocket creates a nonblocking, close-on-exec TCP socket (Linux
// supports both flags at creation).
func newNonblockSocket(family int) (int, error) {
	return unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
}

// acceptConn accepts one pending connection, nonblocking and close-on-exec.
func acceptConn(listenFd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}
