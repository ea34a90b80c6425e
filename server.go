//go:build linux || darwin

package httpcore

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"golang.org/x/sys/unix"
)

// Test-only injection points, set before Run and cleared after Close.
var (
	// testHookKeepAliveTick is invoked after every keep-alive sweep.
	testHookKeepAliveTick func()

	// testHookLoopTurn is invoked at the end of every loop iteration, on
	// the I/O thread, so tests can observe loop-owned state without racing.
	testHookLoopTurn func(*Server)
)

// Server is the event-loop driver: it owns the poller, the listener, the
// registry, and the shared update queue + wake-up, and runs the readiness
// loop on a single goroutine.
type Server struct {
	listenFd  int
	poller    poller
	waker     *waker
	transport *Transport
	registry  *clientRegistry
	keepAlive time.Duration
	logger    *logiface.Logger[logiface.Event]

	state    runState
	loopDone chan struct{}
	doneOnce sync.Once

	events [maxPollEvents]pollEvent
}

// NewServer binds host:port and constructs the engine. Setup errors (bind,
// poller construction, wake-up creation) are surfaced; nothing is logged on
// success.
func NewServer(host string, port uint16, callback Callback, opts ...Option) (*Server, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	listenFd, err := createListener(host, port)
	if err != nil {
		return nil, err
	}

	w, err := newWaker()
	if err != nil {
		_ = closeFD(listenFd)
		return nil, wrapError("httpcore: wake fd", err)
	}

	s := &Server{
		listenFd:  listenFd,
		waker:     w,
		keepAlive: cfg.keepAlive,
		logger:    cfg.logger,
		loopDone:  make(chan struct{}),
	}

	if err := s.poller.init(); err != nil {
		w.close()
		_ = closeFD(listenFd)
		return nil, wrapError("httpcore: poller", err)
	}

	s.transport = newTransport(w)
	s.registry = newClientRegistry(callback, s.transport, s.log())

	return s, nil
}

// log resolves the effective logger: the per-server option, falling back to
// the package logger. Both may be nil; logiface no-ops on nil.
func (s *Server) log() *logiface.Logger[logiface.Event] {
	if s.logger != nil {
		return s.logger
	}
	return getGlobalLogger()
}

// Addr reports the bound listen address (useful with port 0).
func (s *Server) Addr() net.Addr {
	return localAddr(s.listenFd)
}

// Transport returns the shared update-queue handle. It is the only channel
// through which goroutines other than the I/O thread may influence poller
// state.
func (s *Server) Transport() *Transport {
	return s.transport
}

// Run executes the event loop on the calling goroutine, blocking until
// Close. Per-event errors are logged and the loop continues; nothing short
// of Close (or a dead poller) terminates it.
func (s *Server) Run() error {
	if !s.state.tryTransition(stateCreated, stateRunning) {
		if s.state.load() == stateClosed {
			return ErrServerClosed
		}
		return ErrServerAlreadyRunning
	}
	defer s.shutdown()

	if err := s.poller.register(s.listenFd, serverToken, true, false); err != nil {
		return wrapError("httpcore: register listener", err)
	}
	if err := s.poller.register(s.waker.readFd, wakeToken, true, false); err != nil {
		return wrapError("httpcore: register wake fd", err)
	}

	for s.state.load() == stateRunning {
		n, err := s.poller.wait(s.events[:], s.keepAlive)
		if err != nil {
			if errors.Is(err, ErrPollerClosed) {
				break
			}
			s.log().Err().Err(err).Log("poll failed")
			continue
		}

		if n == 0 {
			// Timeout: visit every slot.
			s.registry.keepAliveTick(time.Now(), s.keepAlive)
			s.releaseIdle()
			if testHookKeepAliveTick != nil {
				testHookKeepAliveTick()
			}
		}

		for i := 0; i < n; i++ {
			s.dispatch(&s.events[i])
		}

		if testHookLoopTurn != nil {
			testHookLoopTurn(s)
		}
	}

	return nil
}

// Close stops the loop and releases every fd. It is NOT graceful: in-flight
// connections are dropped. Blocks until the loop goroutine has exited.
func (s *Server) Close() error {
	if s.state.tryTransition(stateCreated, stateClosed) {
		// Never ran; tear down directly.
		s.shutdown()
		return nil
	}
	if s.state.tryTransition(stateRunning, stateClosed) {
		s.waker.wake()
		<-s.loopDone
		return nil
	}
	<-s.loopDone
	return ErrServerClosed
}

// shutdown releases all loop-owned resources. Runs at most once, on
// whichever of Run/Close loses the race to finish last.
func (s *Server) shutdown() {
	s.doneOnce.Do(func() {
		for _, c := range s.registry.clients {
			c.sockShutdown()
			s.releaseSlot(c)
		}
		_ = s.poller.close()
		_ = closeFD(s.listenFd)
		s.waker.close()
		close(s.loopDone)
	})
}

// dispatch routes one readiness event: all accepted connections from a
// SERVER wake-up, then all queued updates from a wake-token event, then
// per-connection state changes.
func (s *Server) dispatch(ev *pollEvent) {
	switch ev.tok {
	case serverToken:
		s.onClientIncoming()
	case wakeToken:
		s.onUpdateWakeup()
	default:
		s.onSocketStateChange(ev)
	}
}

// onClientIncoming accepts in a loop until the listener would block.
func (s *Server) onClientIncoming() {
	for {
		fd, sa, err := acceptConn(s.listenFd)
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			if errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EINTR) {
				continue
			}
			if logAllowed("accept") {
				s.log().Err().Err(err).Log("accept failed")
			}
			return
		}
		s.registry.clientAccepted(fd, peerAddrString(sa))
	}
}

// onUpdateWakeup drains the wake signal, then the update queue to empty.
// A push landing after this drain re-arms the wake fd, so it is observed on
// a later iteration rather than lost.
func (s *Server) onUpdateWakeup() {
	s.waker.drain()
	for {
		u, ok := s.transport.queue.Pop()
		if !ok {
			return
		}
		s.applyUpdate(u)
	}
}

// onSocketStateChange handles a connection event. Branches, in order:
// readable, writable, half-closed (the latter pausing both directions so
// the slot stops receiving events but remains allocated for reuse).
func (s *Server) onSocketStateChange(ev *pollEvent) {
	c := s.registry.getClient(ev.tok)
	if c.fd < 0 {
		return // released earlier in this batch
	}

	if ev.readable && !c.isIdle {
		if err := c.readReady(); err != nil {
			if logAllowed("read") {
				s.log().Err().Int("token", int(c.tok)).Err(err).Log("read event failed")
			}
		}
	}
	if ev.writable && !c.isIdle {
		if err := c.writeReady(); err != nil {
			if logAllowed("write") {
				s.log().Err().Int("token", int(c.tok)).Err(err).Log("write event failed")
			}
		}
	}
	if ev.halfClosed() && !c.isIdle {
		c.sockShutdown()
		s.pauseReading(c)
		s.pauseWriting(c)
	}

	if c.isIdle {
		s.releaseSlot(c)
	}
}

// applyUpdate performs one queued interest-set change. Updates racing a
// teardown are dropped: the handle that posted them outlived its
// connection.
func (s *Server) applyUpdate(u EventUpdate) {
	c, ok := s.registry.lookup(u.tok)
	if !ok || c.isIdle || c.fd < 0 {
		return
	}

	switch u.op {
	case opPauseReading:
		s.pauseReading(c)
	case opPauseWriting:
		// A pause racing unflushed bytes (or payloads enqueued after the
		// last channel drain) is dropped: deregistering WRITABLE now would
		// strand them. The drain path posts a fresh pause once the write
		// side is truly quiescent.
		if c.proto.pendingWrite() {
			return
		}
		s.pauseWriting(c)
	case opResumeReading:
		s.resumeReading(c)
	case opResumeWriting:
		s.resumeWriting(c)
	}
}

// Interest-set transitions. Under partial-readiness semantics the poller
// distinguishes register (no current interest), reregister (changing an
// existing registration), and deregister (dropping the last interest); the
// slot's flags are updated only after the poller call succeeds.

func (s *Server) resumeReading(c *client) {
	if c.isReading {
		return
	}
	var err error
	if c.isWriting {
		err = s.poller.reregister(c.fd, c.tok, true, true)
	} else {
		err = s.poller.register(c.fd, c.tok, true, false)
	}
	if err != nil {
		s.logInterestError(c, "resume reading", err)
		return
	}
	c.isReading = true
}

func (s *Server) resumeWriting(c *client) {
	if c.isWriting {
		return
	}
	var err error
	if c.isReading {
		err = s.poller.reregister(c.fd, c.tok, true, true)
	} else {
		err = s.poller.register(c.fd, c.tok, false, true)
	}
	if err != nil {
		s.logInterestError(c, "resume writing", err)
		return
	}
	c.isWriting = true
}

func (s *Server) pauseReading(c *client) {
	if !c.isReading {
		return
	}
	var err error
	if c.isWriting {
		err = s.poller.reregister(c.fd, c.tok, false, true)
	} else {
		err = s.poller.deregister(c.fd)
	}
	if err != nil {
		s.logInterestError(c, "pause reading", err)
		return
	}
	c.isReading = false
}

func (s *Server) pauseWriting(c *client) {
	if !c.isWriting {
		return
	}
	var err error
	if c.isReading {
		err = s.poller.reregister(c.fd, c.tok, true, false)
	} else {
		err = s.poller.deregister(c.fd)
	}
	if err != nil {
		s.logInterestError(c, "pause writing", err)
		return
	}
	c.isWriting = false
}

func (s *Server) logInterestError(c *client, op string, err error) {
	if logAllowed("interest") {
		s.log().Err().Int("token", int(c.tok)).Str("op", op).Err(err).Log("interest update failed")
	}
}

// releaseSlot drops the slot's remaining poller registration and closes its
// fd. The slot itself stays in the registry for reuse.
func (s *Server) releaseSlot(c *client) {
	if c.fd < 0 {
		return
	}
	if c.isReading || c.isWriting {
		_ = s.poller.deregister(c.fd)
		c.isReading = false
		c.isWriting = false
	}
	_ = closeFD(c.fd)
	c.fd = -1
}

// releaseIdle closes fds of slots shut down by the keep-alive sweep.
func (s *Server) releaseIdle() {
	for _, c := range s.registry.clients {
		if c.isIdle {
			s.releaseSlot(c)
		}
	}
}

// CreateServer binds host:port, constructs the engine with a JSON logger on
// stderr, and drives the loop until it stops. keepAlive is in seconds.
// Setup errors are returned; an error stopping the loop is logged and also
// returned.
func CreateServer(host string, port uint16, keepAlive float64, callback Callback) error {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(logiface.LevelInformational),
	).Logger()

	srv, err := NewServer(host, port, callback,
		WithKeepAlive(time.Duration(keepAlive*float64(time.Second))),
		WithLogger(logger),
	)
	if err != nil {
		return err
	}

	logger.Info().
		Str("addr", srv.Addr().String()).
		Dur("keep_alive", srv.keepAlive).
		Log("server listening")

	if err := srv.Run(); err != nil {
		logger.Err().Err(err).Log("server stopped")
		return err
	}
	return nil
}
