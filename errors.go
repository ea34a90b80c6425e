package httpcore

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Standard errors.
var (
	// ErrServerAlreadyRunning is returned when Run() is called on a server
	// that is already running.
	ErrServerAlreadyRunning = errors.New("httpcore: server is already running")

	// ErrServerClosed is returned when operations are attempted on a server
	// that has been closed.
	ErrServerClosed = errors.New("httpcore: server closed")

	// ErrChannelFull is returned by DataSender.Call when the per-connection
	// response channel is at capacity. The send is rejected without blocking;
	// the application applies its own backpressure.
	ErrChannelFull = errors.New("httpcore: response channel full")

	// ErrChannelClosed is returned by handle calls after the connection has
	// been torn down.
	ErrChannelClosed = errors.New("httpcore: connection channel closed")

	// ErrTooManyHeaders is returned by the request parser when a request
	// carries more than maxHeaders header fields.
	ErrTooManyHeaders = errors.New("httpcore: too many headers")

	// ErrMalformedRequest is returned by the request parser on any byte
	// sequence that cannot be the prefix of a valid HTTP/1.x request.
	ErrMalformedRequest = errors.New("httpcore: malformed request")
)

// wrapError wraps an error with a message, preserving errors.Is matching.
func wrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

// isWouldBlock reports whether err is the transient "no data / no space"
// condition that terminates an inner I/O loop without being surfaced.
func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// isDisconnect reports whether err is a peer-initiated teardown, which
// triggers sockShutdown rather than propagating.
func isDisconnect(err error) bool {
	return errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.ECONNABORTED) ||
		errors.Is(err, unix.EPIPE)
}
