package httpcore

import (
	"github.com/joeycumines/logiface"
)

// autoProtocol is the per-connection protocol multiplexer: it owns the one
// read buffer and one write buffer shared by all protocols on the
// connection, holds one instance of each supported protocol, and routes
// lifecycle and I/O events to the currently selected one.
//
// One shared 256 KiB buffer pair per connection — not per protocol — because
// connection count dominates protocol count.
//
// At most one protocol is selected at any time; only the selected protocol
// observes the buffers, and the public surface never exposes both buffers
// simultaneously (the I/O loop sequences read-ready and write-ready).
type autoProtocol struct {
	tok       Token
	selected  selectedProtocol
	transport *Transport

	h1 *h1Protocol

	readBuffer  *streamBuffer
	writeBuffer *streamBuffer
}

// newAutoProtocol creates a multiplexer with the given protocol selected.
func newAutoProtocol(tok Token, selected selectedProtocol, callback Callback, transport *Transport, logger *logiface.Logger[logiface.Event]) *autoProtocol {
	return &autoProtocol{
		tok:         tok,
		selected:    selected,
		transport:   transport,
		h1:          newH1Protocol(tok, callback, transport, logger),
		readBuffer:  newStreamBuffer(maxBufferLimit),
		writeBuffer: newStreamBuffer(maxBufferLimit),
	}
}

// newConnection is called when the multiplexer takes charge of a new socket
// on this slot.
func (a *autoProtocol) newConnection() {
	switch a.selected {
	case protoH1:
		a.h1.newConnection()
	}
}

// lostConnection clears both buffers and resets the selected protocol.
func (a *autoProtocol) lostConnection() {
	a.readBuffer.clear()
	a.writeBuffer.clear()

	switch a.selected {
	case protoH1:
		a.h1.lostConnection()
	}
}

// eofReceived forwards the peer's EOF to the selected protocol.
func (a *autoProtocol) eofReceived() {
	switch a.selected {
	case protoH1:
		a.h1.eofReceived()
	}
}

// maybeSwitch gives the selected protocol the chance to yield just after
// reading has finished, swapping the selection before the next I/O event
// when it does.
func (a *autoProtocol) maybeSwitch() {
	var status switchStatus
	switch a.selected {
	case protoH1:
		status = a.h1.switchProtocol()
	}
	if status.yield {
		a.selected = status.switchTo
	}
}

// readBufferAcquire returns the read buffer for the I/O shim to fill.
func (a *autoProtocol) readBufferAcquire() *streamBuffer {
	return a.readBuffer
}

// readBufferFilled delegates freshly read bytes to the selected protocol.
func (a *autoProtocol) readBufferFilled(_ int) error {
	switch a.selected {
	case protoH1:
		return a.h1.dataReceived(a.readBuffer)
	}
	return nil
}

// writeBufferAcquire asks the selected protocol to top up the write buffer,
// then returns it for the I/O shim to drain.
func (a *autoProtocol) writeBufferAcquire() *streamBuffer {
	switch a.selected {
	case protoH1:
		a.h1.fillWriteBuffer(a.writeBuffer)
	}
	return a.writeBuffer
}

// pendingWrite reports whether response bytes are still in flight: unflushed
// write-buffer content or payloads sitting in the selected protocol's
// channel.
func (a *autoProtocol) pendingWrite() bool {
	if a.writeBuffer.Len() > 0 {
		return true
	}
	switch a.selected {
	case protoH1:
		return len(a.h1.sender.ch) > 0
	}
	return false
}

// writeBufferDrained requests pause-writing once the socket consumed
// nothing or the buffer is empty.
func (a *autoProtocol) writeBufferDrained(amount int) {
	if amount == 0 || a.writeBuffer.Len() == 0 {
		a.transport.PauseWriting(a.tok)
	}
}
