package httpcore

// Token identifies a source of poller events: the listener, the update-queue
// wake-up, or one connection slot. Tokens for connection slots may be reused
// after the slot's connection terminates.
type Token int

const (
	// serverToken is the reserved token for the listening socket.
	serverToken Token = 0

	// wakeToken is the reserved token for the update-queue wake-up fd.
	wakeToken Token = 1

	// firstClientToken is the lowest token value a connection slot can
	// receive. The counter is seeded one below and pre-incremented.
	firstClientToken Token = 3
)

// tokenCounter issues monotonically increasing slot tokens, seeded past the
// reserved values.
type tokenCounter struct {
	internal Token
}

func newTokenCounter() tokenCounter {
	return tokenCounter{internal: firstClientToken - 1}
}

// next returns a fresh, never-before-issued token.
func (c *tokenCounter) next() Token {
	c.internal++
	return c.internal
}
