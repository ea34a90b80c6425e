package httpcore

import (
	"math"
	"strings"

	"github.com/joeycumines/logiface"
)

// Callback is the host application entry point, invoked once per parsed
// request. It must return promptly and without blocking; the response is
// produced asynchronously through the sender handle as fully-framed bytes
// (status line, headers, CRLFs, body).
type Callback func(sender *DataSender, receiver *DataReceiver, headers []Header, method, path string, version uint8) error

// h1Protocol is the HTTP/1.x protocol state machine for one connection.
// Parsing state lives on the stack during a single dataReceived call; the
// struct persists only what outlives a request.
type h1Protocol struct {
	tok       Token
	transport *Transport
	callback  Callback
	logger    *logiface.Logger[logiface.Event]

	// The sender/receiver handlers bound to this connection's token. They
	// survive slot reuse; reset/close track connection lifetime.
	sender   *senderHandler
	receiver *receiverHandler

	// expectedContentLength is the parsed Content-Length of the most recent
	// request (0 if absent or unparseable). Stored, not yet consumed: body
	// bytes accumulate in the read buffer rather than streaming to the
	// receiver channel.
	expectedContentLength uint64

	// chunkedEncoding records a Transfer-Encoding containing "chunked".
	// Chunk framing is not decoded.
	chunkedEncoding bool
}

// newH1Protocol creates the HTTP/1 state machine for one connection slot.
func newH1Protocol(tok Token, callback Callback, transport *Transport, logger *logiface.Logger[logiface.Event]) *h1Protocol {
	return &h1Protocol{
		tok:       tok,
		transport: transport,
		callback:  callback,
		logger:    logger,
		sender:    newSenderHandler(tok, transport),
		receiver:  newReceiverHandler(tok, transport),
	}
}

// newConnection resets per-connection state; equivalent to construction.
func (h *h1Protocol) newConnection() {
	h.expectedContentLength = 0
	h.chunkedEncoding = false
	h.sender.reset()
	h.receiver.reset()
}

// lostConnection resets parsing state and closes the handles so in-flight
// application sends fail with ErrChannelClosed.
func (h *h1Protocol) lostConnection() {
	h.expectedContentLength = 0
	h.chunkedEncoding = false
	h.sender.close()
	h.receiver.close()
}

// eofReceived pauses both directions: the peer will send nothing further,
// and nothing more can usefully be written.
func (h *h1Protocol) eofReceived() {
	h.transport.PauseReading(h.tok)
	h.transport.PauseWriting(h.tok)
}

// switchProtocol offers the chance to yield to another protocol just after
// a parse completes. HTTP/1 never yields.
func (h *h1Protocol) switchProtocol() switchStatus {
	return noSwitch()
}

// dataReceived attempts a single parse over the head of the read buffer.
//
// On a parse error nothing is consumed and the connection stays open:
// malformed input is indistinguishable from not-enough-bytes-yet at this
// layer, so the poller's next event (more data, half-close, reset) decides
// the connection's fate. On partial, likewise nothing is consumed. On
// complete, the head is split off — any remainder is pipelined body or the
// next request — and the request is dispatched to the host callback.
func (h *h1Protocol) dataReceived(buf *streamBuffer) error {
	var headers [maxHeaders]Header

	req, headerCount, n, complete, err := parseRequest(buf.bytes(), headers[:])
	if err != nil {
		if logAllowed("h1-parse") {
			h.logger.Warning().
				Int("token", int(h.tok)).
				Err(err).
				Log("request parse failed")
		}
		return nil
	}
	if !complete {
		return nil
	}

	h.checkHeaders(headers[:headerCount])

	// Materialize header values: they alias the read buffer, which is about
	// to be consumed and refilled.
	dispatched := make([]Header, headerCount)
	for i, hdr := range headers[:headerCount] {
		value := make([]byte, len(hdr.Value))
		copy(value, hdr.Value)
		dispatched[i] = Header{Name: hdr.Name, Value: value}
	}

	buf.consume(n)

	return h.onRequestParse(&req, dispatched)
}

// fillWriteBuffer drains the response channel without blocking, extending
// the write buffer with each chunk in order, then posts PauseWriting: the
// write side quiesces until the next application send re-arms it.
func (h *h1Protocol) fillWriteBuffer(buf *streamBuffer) {
	for {
		p, ok := h.sender.tryRecv()
		if !ok {
			break
		}
		buf.extend(p.Body)
	}

	h.transport.PauseWriting(h.tok)
}

// onRequestParse invokes the host callback with fresh handles.
func (h *h1Protocol) onRequestParse(req *requestLine, headers []Header) error {
	sender := h.sender.makeHandle()
	receiver := h.receiver.makeHandle()

	if err := h.callback(sender, receiver, headers, req.method, req.path, req.version); err != nil {
		if logAllowed("h1-callback") {
			h.logger.Err().
				Int("token", int(h.tok)).
				Str("method", req.method).
				Str("path", req.path).
				Err(err).
				Log("host callback failed")
		}
		return err
	}
	return nil
}

// checkHeaders walks the parsed headers for the two the protocol itself
// consumes.
func (h *h1Protocol) checkHeaders(headers []Header) {
	h.expectedContentLength = 0
	h.chunkedEncoding = false
	for i := range headers {
		if strings.EqualFold(headers[i].Name, "Content-Length") {
			h.expectedContentLength = parseContentLength(headers[i].Value)
		} else if strings.EqualFold(headers[i].Name, "Transfer-Encoding") {
			h.chunkedEncoding = containsChunked(headers[i].Value)
		}
	}
}

// parseContentLength parses an unsigned decimal, 0 on any parse failure.
func parseContentLength(value []byte) uint64 {
	if len(value) == 0 {
		return 0
	}
	var n uint64
	for _, b := range value {
		if b < '0' || b > '9' {
			return 0
		}
		d := uint64(b - '0')
		if n > (math.MaxUint64-d)/10 {
			return 0
		}
		n = n*10 + d
	}
	return n
}

// containsChunked reports a case-insensitive "chunked" substring.
func containsChunked(value []byte) bool {
	return strings.Contains(strings.ToLower(string(value)), "chunked")
}
