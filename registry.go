package httpcore

import (
	"time"

	"github.com/joeycumines/logiface"
)

// clientRegistry maps tokens to connection slots and amortizes slot
// construction by reusing idle slots: the 2×256 KiB buffer pair and the
// protocol instances are expensive relative to an accept.
//
// Owned exclusively by the event-loop driver; never touched off the I/O
// thread.
type clientRegistry struct {
	clients   map[Token]*client
	counter   tokenCounter
	callback  Callback
	transport *Transport
	logger    *logiface.Logger[logiface.Event]
}

// newClientRegistry creates an empty registry with its counter seeded past
// the reserved tokens.
func newClientRegistry(callback Callback, transport *Transport, logger *logiface.Logger[logiface.Event]) *clientRegistry {
	return &clientRegistry{
		clients:   make(map[Token]*client),
		counter:   newTokenCounter(),
		callback:  callback,
		transport: transport,
		logger:    logger,
	}
}

// selectToken prefers any idle slot's token, falling back to a fresh token
// from the counter. Reuse is by slot, not by token alone: the existing slot
// keeps its multiplexer and buffers.
func (r *clientRegistry) selectToken() Token {
	for tok, c := range r.clients {
		if c.isIdle {
			return tok
		}
	}
	return r.counter.next()
}

// clientAccepted binds an accepted socket to a slot — rebinding an idle one
// when available — and posts ResumeReading so the socket starts listening
// for input on the next loop turn.
func (r *clientRegistry) clientAccepted(fd int, addr string) {
	tok := r.selectToken()

	if c, ok := r.clients[tok]; ok {
		c.handleNew(fd, addr)
	} else {
		proto := newAutoProtocol(tok, protoH1, r.callback, r.transport, r.logger)
		r.clients[tok] = newClient(tok, fd, addr, proto)
	}

	r.transport.ResumeReading(tok)
}

// getClient looks up the slot for a token issued by the poller. Absence is
// a programmer error: tokens only reach the poller via this registry.
func (r *clientRegistry) getClient(tok Token) *client {
	c, ok := r.clients[tok]
	if !ok {
		panic("httpcore: no client at token")
	}
	return c
}

// lookup is the non-asserting variant, for update-queue entries that may
// race teardown.
func (r *clientRegistry) lookup(tok Token) (*client, bool) {
	c, ok := r.clients[tok]
	return c, ok
}

// keepAliveTick visits every slot, shutting down those idle past the timeout
// and logging each expiry at debug level.
func (r *clientRegistry) keepAliveTick(now time.Time, timeout time.Duration) {
	for tok, c := range r.clients {
		if c.checkKeepAlive(now, timeout) {
			r.logger.Debug().
				Int("token", int(tok)).
				Str("addr", c.addr).
				Log("keep-alive expired")
		}
	}
}
