package httpcore

import (
	"sync/atomic"
)

// channelCapacity bounds each per-connection payload channel. A full channel
// rejects the send visibly rather than buffering unboundedly, which is the
// backpressure signal to the application.
const channelCapacity = 10

// Payload is one chunk of body bytes plus the flag reporting whether more
// chunks follow.
type Payload struct {
	MoreBody bool
	Body     []byte
}

// senderHandler owns the response channel for one connection: application
// DataSender handles feed it, the HTTP/1 write path drains it.
type senderHandler struct {
	tok       Token
	transport *Transport
	ch        chan Payload
	closed    atomic.Bool
}

func newSenderHandler(tok Token, transport *Transport) *senderHandler {
	return &senderHandler{
		tok:       tok,
		transport: transport,
		ch:        make(chan Payload, channelCapacity),
	}
}

// makeHandle returns a new application-facing handle bound to this
// connection. Handles are cheap; one is minted per request dispatch.
func (h *senderHandler) makeHandle() *DataSender {
	return &DataSender{handler: h}
}

// tryRecv drains one payload without blocking.
func (h *senderHandler) tryRecv() (Payload, bool) {
	select {
	case p := <-h.ch:
		return p, true
	default:
		return Payload{}, false
	}
}

// reset reopens the handler for a fresh connection on the same slot,
// discarding any payloads stranded by the previous connection.
func (h *senderHandler) reset() {
	for {
		select {
		case <-h.ch:
		default:
			h.closed.Store(false)
			return
		}
	}
}

// close marks the connection torn down; subsequent handle calls fail with
// ErrChannelClosed.
func (h *senderHandler) close() {
	h.closed.Store(true)
}

// receiverHandler owns the request-body delivery channel for one connection:
// the protocol feeds it, application DataReceiver handles drain it.
type receiverHandler struct {
	tok       Token
	transport *Transport
	ch        chan Payload
	closed    atomic.Bool
}

func newReceiverHandler(tok Token, transport *Transport) *receiverHandler {
	return &receiverHandler{
		tok:       tok,
		transport: transport,
		ch:        make(chan Payload, channelCapacity),
	}
}

// makeHandle returns a new application-facing handle bound to this
// connection.
func (h *receiverHandler) makeHandle() *DataReceiver {
	return &DataReceiver{handler: h}
}

// send enqueues one request-body payload for the application without
// blocking. ErrChannelFull when the application has not drained.
func (h *receiverHandler) send(p Payload) error {
	if h.closed.Load() {
		return ErrChannelClosed
	}
	select {
	case h.ch <- p:
		return nil
	default:
		return ErrChannelFull
	}
}

// reset reopens the handler for a fresh connection on the same slot.
func (h *receiverHandler) reset() {
	for {
		select {
		case <-h.ch:
		default:
			h.closed.Store(false)
			return
		}
	}
}

// close marks the connection torn down.
func (h *receiverHandler) close() {
	h.closed.Store(true)
}

// DataSender is the application's handle for sending one response chunk.
// Safe to call from any goroutine.
type DataSender struct {
	handler *senderHandler
}

// Call enqueues (moreBody, body) for the connection's write path.
//
// The resume-writing request is posted BEFORE the payload is enqueued, so
// the I/O thread, upon wake-up, finds either the update or the
// already-drained queue — never an idle socket with bytes stuck behind it.
//
// Fails with ErrChannelClosed after teardown, and with ErrChannelFull when
// the bounded channel is at capacity; neither blocks.
func (s *DataSender) Call(moreBody bool, body []byte) error {
	h := s.handler
	if h.closed.Load() {
		return ErrChannelClosed
	}

	h.transport.ResumeWriting(h.tok)

	select {
	case h.ch <- Payload{MoreBody: moreBody, Body: body}:
		return nil
	default:
		return ErrChannelFull
	}
}

// DataReceiver is the application's handle for pulling request body bytes.
// Safe to call from any goroutine.
type DataReceiver struct {
	handler *receiverHandler
}

// Call signals the I/O thread to resume reading request-body bytes from the
// socket.
func (r *DataReceiver) Call() error {
	h := r.handler
	if h.closed.Load() {
		return ErrChannelClosed
	}
	h.transport.ResumeReading(h.tok)
	return nil
}

// TryRecv drains one request-body payload without blocking. The second
// return is false when no payload is pending.
func (r *DataReceiver) TryRecv() (Payload, bool) {
	select {
	case p := <-r.handler.ch:
		return p, true
	default:
		return Payload{}, false
	}
}
