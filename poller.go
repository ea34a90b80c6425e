//go:build linux || darwin

package httpcore

import (
	"errors"
)

// Maximum file descriptor we support with direct indexing.
const maxFDs = 65536

// maxPollEvents is the most readiness events a single poll can return.
const maxPollEvents = 128

// Poller errors.
var (
	ErrFDOutOfRange        = errors.New("httpcore: fd out of range (max 65535)")
	ErrFDAlreadyRegistered = errors.New("httpcore: fd already registered")
	ErrFDNotRegistered     = errors.New("httpcore: fd not registered")
	ErrPollerClosed        = errors.New("httpcore: poller closed")
)

// pollDesc stores per-FD registration state: the owning token and the
// currently registered interest set.
type pollDesc struct {
	tok      Token
	readable bool
	writable bool
	active   bool
}

// pollEvent is one readiness event, translated from the OS representation.
// readClosed/writeClosed report half-close of the peer's respective ends;
// either one means communication cannot continue on this stream.
type pollEvent struct {
	tok         Token
	readable    bool
	writable    bool
	isError     bool
	readClosed  bool
	writeClosed bool
}

// halfClosed reports whether at least one direction of the stream has been
// shut down, or the poller reported an error on it.
func (e *pollEvent) halfClosed() bool {
	return e.readClosed || e.writeClosed || e.isError
}
