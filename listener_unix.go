//go:build linux || darwin

package httpcore

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// listenBacklog is the listen(2) backlog for the accept queue.
const listenBacklog = 1024

// createListener binds a nonblocking listening TCP socket on host:port.
// Only IPv4 and IPv6 literal hosts are accepted; name resolution belongs to
// the host layer.
func createListener(host string, port uint16) (int, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return -1, wrapError("httpcore: invalid listen host "+strconv.Quote(host), unix.EINVAL)
	}

	family := unix.AF_INET
	if ip.To4() == nil {
		family = unix.AF_INET6
	}

	fd, err := newNonblockSocket(family)
	if err != nil {
		return -1, wrapError("httpcore: socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, wrapError("httpcore: setsockopt SO_REUSEADDR", err)
	}

	var sa unix.Sockaddr
	if family == unix.AF_INET {
		sa4 := &unix.SockaddrInet4{Port: int(port)}
		copy(sa4.Addr[:], ip.To4())
		sa = sa4
	} else {
		sa6 := &unix.SockaddrInet6{Port: int(port)}
		copy(sa6.Addr[:], ip.To16())
		sa = sa6
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, wrapError("httpcore: bind", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return -1, wrapError("httpcore: listen", err)
	}

	return fd, nil
}

// localAddr reports the socket's bound address, resolving port 0 binds.
func localAddr(fd int) net.Addr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(sa.Addr[:]), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(sa.Addr[:]), Port: sa.Port}
	}
	return nil
}

// peerAddrString formats an accepted peer's address for diagnostics.
func peerAddrString(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	}
	return "unknown"
}
