package httpcore

import (
	"time"
)

// client is one connection slot: the accepted socket, its peer address, the
// interest-flag state mirrored from the poller, and the protocol
// multiplexer. Slots are owned by the registry and reused across
// connections; handleNew is the hot path, construction is rare.
//
// Invariants: isReading/isWriting mirror the poller's registered interest
// set and are modified only by the event-loop driver. isIdle implies the
// socket is shut for writing and the slot is eligible for reuse.
type client struct {
	tok   Token
	fd    int
	addr  string
	proto *autoProtocol

	isReading bool
	isWriting bool
	isIdle    bool

	// lastActive drives the keep-alive sweep: bumped on every successful
	// read or write.
	lastActive time.Time
}

// newClient constructs a slot around a freshly accepted socket.
func newClient(tok Token, fd int, addr string, proto *autoProtocol) *client {
	return &client{
		tok:        tok,
		fd:         fd,
		addr:       addr,
		proto:      proto,
		lastActive: time.Now(),
	}
}

// handleNew rebinds the slot to a freshly accepted socket, clearing the
// interest and idle flags. Used when the registry elects to reuse an idle
// slot; the multiplexer and its buffers are retained.
func (c *client) handleNew(fd int, addr string) {
	c.fd = fd
	c.addr = addr
	c.isReading = false
	c.isWriting = false
	c.isIdle = false
	c.lastActive = time.Now()
	c.proto.newConnection()
}

// readReady drives buffered reads until the socket would block: acquire the
// read buffer, read one chunk, hand it to the multiplexer, repeat. Peer
// teardown marks the slot idle instead of propagating.
func (c *client) readReady() error {
	for {
		buf := c.proto.readBufferAcquire()
		n, err := readBuf(c.fd, buf)
		switch {
		case err == nil && n == 0:
			// Clean EOF from the peer.
			c.proto.eofReceived()
			c.sockShutdown()
			return nil
		case err == nil:
			c.lastActive = time.Now()
			if err := c.proto.readBufferFilled(n); err != nil {
				return err
			}
			c.proto.maybeSwitch()
		case isWouldBlock(err):
			return c.reparsePipelined()
		case isDisconnect(err):
			c.sockShutdown()
			return nil
		default:
			return err
		}
	}
}

// reparsePipelined re-enters the protocol over bytes left in the read buffer
// behind a consumed request head — pipelined requests — until it stops
// making progress (partial head, body bytes, or parse error).
func (c *client) reparsePipelined() error {
	for !c.isIdle {
		buf := c.proto.readBufferAcquire()
		before := buf.Len()
		if before == 0 {
			return nil
		}
		if err := c.proto.readBufferFilled(0); err != nil {
			return err
		}
		if c.proto.readBufferAcquire().Len() == before {
			return nil
		}
		c.proto.maybeSwitch()
	}
	return nil
}

// writeReady drains the write buffer until it empties or the socket would
// block, topping the buffer up from the protocol before each chunk.
func (c *client) writeReady() error {
	for {
		buf := c.proto.writeBufferAcquire()
		if buf.Len() == 0 {
			// Nothing pending: quiesce the write side.
			c.proto.writeBufferDrained(0)
			return nil
		}
		n, err := writeBuf(c.fd, buf)
		switch {
		case err == nil:
			c.lastActive = time.Now()
			c.proto.writeBufferDrained(n)
		case isWouldBlock(err):
			return nil
		case isDisconnect(err):
			c.sockShutdown()
			return nil
		default:
			return err
		}
	}
}

// sockShutdown notifies the multiplexer of the lost connection, marks the
// slot idle, and shuts the write half of the socket. Idempotent; the driver
// releases the fd and the poller registration afterwards.
func (c *client) sockShutdown() {
	if c.isIdle {
		return
	}
	c.proto.lostConnection()
	c.isIdle = true
	if c.fd >= 0 {
		shutdownWrite(c.fd)
	}
}

// checkKeepAlive shuts the slot down if it has been quiet longer than the
// keep-alive timeout. A zero timeout disables enforcement. Reports whether
// the slot was shut down by this call.
func (c *client) checkKeepAlive(now time.Time, timeout time.Duration) bool {
	if c.isIdle || timeout <= 0 {
		return false
	}
	if now.Sub(c.lastActive) <= timeout {
		return false
	}
	c.sockShutdown()
	return true
}
