//go:build linux || darwin

package httpcore

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// startTestServer binds 127.0.0.1:0, runs the loop on its own goroutine,
// and tears everything down with the test.
func startTestServer(t *testing.T, callback Callback, opts ...Option) *Server {
	t.Helper()

	s, err := NewServer("127.0.0.1", 0, callback, opts...)
	if err != nil {
		t.Fatal(err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run() }()

	t.Cleanup(func() {
		s.Close()
		select {
		case err := <-runErr:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not exit after Close")
		}
	})

	return s
}

func dialTest(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// echoPathCallback responds to every request with a body naming the path.
func echoPathCallback(sender *DataSender, _ *DataReceiver, _ []Header, _ string, path string, _ uint8) error {
	body := "path=" + path
	return sender.Call(false, []byte(fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body)))
}

// TestServer_SingleRequestResponse is the basic round-trip: one GET, one
// fully-framed response from the application, the exact bytes back on the
// wire, and the connection left open for the next request.
func TestServer_SingleRequestResponse(t *testing.T) {
	const response = "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"

	var dispatches atomic.Int64
	s := startTestServer(t, func(sender *DataSender, _ *DataReceiver, headers []Header, method, path string, version uint8) error {
		dispatches.Add(1)
		if method != "GET" || path != "/" || version != 1 {
			t.Errorf("unexpected request line: %s %s %d", method, path, version)
		}
		if len(headers) != 1 || headers[0].Name != "Host" || string(headers[0].Value) != "x" {
			t.Errorf("unexpected headers: %+v", headers)
		}
		return sender.Call(false, []byte(response))
	}, WithKeepAlive(5*time.Second))

	conn := dialTest(t, s)
	if _, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	got := make([]byte, len(response))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != response {
		t.Fatalf("response mismatch: %q", got)
	}
	if dispatches.Load() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", dispatches.Load())
	}

	// The connection must remain open (reading stays armed): a short read
	// now times out instead of hitting EOF.
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("expected deadline timeout, got %v", err)
	}
}

// TestServer_PipelinedRequests sends two GETs in one TCP segment and
// expects both responses in order.
func TestServer_PipelinedRequests(t *testing.T) {
	s := startTestServer(t, echoPathCallback, WithKeepAlive(5*time.Second))

	conn := dialTest(t, s)
	if _, err := conn.Write([]byte("GET /one HTTP/1.1\r\nHost: a\r\n\r\nGET /two HTTP/1.1\r\nHost: b\r\n\r\n")); err != nil {
		t.Fatal(err)
	}

	want := "HTTP/1.1 200 OK\r\nContent-Length: 9\r\n\r\npath=/one" +
		"HTTP/1.1 200 OK\r\nContent-Length: 9\r\n\r\npath=/two"

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	got := make([]byte, len(want))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Fatalf("pipelined responses mismatch:\n got %q\nwant %q", got, want)
	}
}

// TestServer_RequestBodyResume covers the POST flow: headers complete with
// a partial body, the application invokes the receiver to resume reading,
// and the rest of the body lands in the read buffer without being mistaken
// for a request.
func TestServer_RequestBodyResume(t *testing.T) {
	var mu sync.Mutex
	var readBuffer string
	var contentLength uint64
	testHookLoopTurn = func(s *Server) {
		if c, ok := s.registry.clients[firstClientToken]; ok {
			mu.Lock()
			readBuffer = string(c.proto.readBuffer.bytes())
			contentLength = c.proto.h1.expectedContentLength
			mu.Unlock()
		}
	}
	t.Cleanup(func() { testHookLoopTurn = nil })

	received := make(chan *DataReceiver, 1)
	s := startTestServer(t, func(_ *DataSender, receiver *DataReceiver, _ []Header, _, _ string, _ uint8) error {
		received <- receiver
		return nil
	}, WithKeepAlive(5*time.Second))

	conn := dialTest(t, s)
	if _, err := conn.Write([]byte("POST /x HTTP/1.1\r\nContent-Length: 5\r\n\r\nhel")); err != nil {
		t.Fatal(err)
	}

	var receiver *DataReceiver
	select {
	case receiver = <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("request not dispatched")
	}

	if err := receiver.Call(); err != nil {
		t.Fatal(err)
	}

	if _, err := conn.Write([]byte("lo")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.HasSuffix(readBuffer, "hello") && contentLength == 5
	}, "body bytes never reached the read buffer")
}

// TestServer_PeerResetReusesSlot aborts a connection mid-use and verifies
// the slot is reused for the next accept and still serves correctly.
func TestServer_PeerResetReusesSlot(t *testing.T) {
	var mu sync.Mutex
	var slotIdle bool
	var slotCount int
	testHookLoopTurn = func(s *Server) {
		mu.Lock()
		defer mu.Unlock()
		slotCount = len(s.registry.clients)
		if c, ok := s.registry.clients[firstClientToken]; ok {
			slotIdle = c.isIdle && c.fd < 0
		}
	}
	t.Cleanup(func() { testHookLoopTurn = nil })

	s := startTestServer(t, echoPathCallback, WithKeepAlive(5*time.Second))

	first, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	first.Write([]byte("GET /dead HTTP/1.1\r\nHo"))
	// Abort with RST rather than FIN.
	first.(*net.TCPConn).SetLinger(0)
	first.Close()

	// Wait for the server to notice the teardown and mark the slot idle.
	eventually(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slotIdle
	}, "slot never became idle after reset")

	second := dialTest(t, s)
	if _, err := second.Write([]byte("GET /alive HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatal(err)
	}

	want := "HTTP/1.1 200 OK\r\nContent-Length: 11\r\n\r\npath=/alive"
	second.SetReadDeadline(time.Now().Add(3 * time.Second))
	got := make([]byte, len(want))
	if _, err := io.ReadFull(second, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Fatalf("response after reuse mismatch: %q", got)
	}

	// Reuse, not growth: still exactly one slot.
	mu.Lock()
	defer mu.Unlock()
	if slotCount != 1 {
		t.Fatalf("registry grew to %d slots instead of reusing the idle one", slotCount)
	}
}

// TestServer_LargeResponseDrains pushes a response far larger than the
// kernel send buffer through multiple write-ready events.
func TestServer_LargeResponseDrains(t *testing.T) {
	const chunk = 64 * 1024
	const chunks = 6
	body := strings.Repeat("abcdefgh", chunk*chunks/8)

	s := startTestServer(t, func(sender *DataSender, _ *DataReceiver, _ []Header, _, _ string, _ uint8) error {
		head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", len(body))
		if err := sender.Call(true, []byte(head)); err != nil {
			return err
		}
		for i := 0; i < chunks; i++ {
			if err := sender.Call(i != chunks-1, []byte(body[i*chunk:(i+1)*chunk])); err != nil {
				return err
			}
		}
		return nil
	}, WithKeepAlive(5*time.Second))

	conn := dialTest(t, s)
	if _, err := conn.Write([]byte("GET /big HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", len(body))
	got := make([]byte, len(head)+len(body))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatal(err)
	}
	if string(got[len(head):]) != body {
		t.Fatal("large response corrupted in flight")
	}
}

// TestServer_KeepAliveSweep verifies the sweep runs repeatedly in an idle
// server and shuts down connections idle past the timeout.
func TestServer_KeepAliveSweep(t *testing.T) {
	var ticks atomic.Int64
	testHookKeepAliveTick = func() { ticks.Add(1) }
	t.Cleanup(func() { testHookKeepAliveTick = nil })

	s := startTestServer(t, echoPathCallback, WithKeepAlive(100*time.Millisecond))

	conn := dialTest(t, s)

	// The idle connection must be shut down by the sweep: EOF, not timeout.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF from keep-alive shutdown, got %v", err)
	}

	// With keepAlive = 100ms the sweep runs at least 5 times per second.
	start := ticks.Load()
	eventually(t, time.Second, func() bool {
		return ticks.Load()-start >= 5
	}, "keep-alive sweep ran fewer than 5 times")
}

// TestServer_InterestTransitions exercises the full transition table against
// a real poller registration, including the idempotent no-op rows.
func TestServer_InterestTransitions(t *testing.T) {
	s, err := NewServer("127.0.0.1", 0, nopCallback)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[1])

	proto := newAutoProtocol(firstClientToken, protoH1, nopCallback, s.transport, nil)
	c := newClient(firstClientToken, fds[0], "test", proto)
	s.registry.clients[c.tok] = c

	check := func(reading, writing bool, step string) {
		t.Helper()
		if c.isReading != reading || c.isWriting != writing {
			t.Fatalf("%s: flags (%v,%v), want (%v,%v)", step, c.isReading, c.isWriting, reading, writing)
		}
	}

	s.resumeReading(c) // (F,F) → register R
	check(true, false, "resume read from idle")
	s.resumeReading(c) // no-op row
	check(true, false, "double resume read")

	s.resumeWriting(c) // (T,F) → reregister R+W
	check(true, true, "resume write while reading")
	s.resumeWriting(c) // no-op row: at most one reregistration
	check(true, true, "double resume write")

	s.pauseReading(c) // (T,T) → reregister W
	check(false, true, "pause read while both")

	s.pauseWriting(c) // (F,T) → deregister
	check(false, false, "pause write drops registration")

	s.pauseWriting(c) // no-op row
	check(false, false, "double pause write")

	s.resumeWriting(c) // (F,F) → register W
	check(false, true, "resume write from idle")

	s.resumeReading(c) // (F,T) → reregister R+W
	check(true, true, "resume read while writing")

	s.pauseWriting(c) // (T,T) → reregister R
	check(true, false, "pause write while both")

	s.pauseReading(c) // (T,F) → deregister
	check(false, false, "pause read drops registration")

	// applyUpdate drops updates for torn-down slots instead of resurrecting
	// poller state.
	c.sockShutdown()
	s.releaseSlot(c)
	s.applyUpdate(EventUpdate{op: opResumeReading, tok: c.tok})
	check(false, false, "update after teardown")
}

// TestServer_CloseIdempotence verifies Close before Run, after Run, and
// doubled.
func TestServer_CloseIdempotence(t *testing.T) {
	s, err := NewServer("127.0.0.1", 0, nopCallback)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("expected ErrServerClosed from Run, got %v", err)
	}
	if err := s.Close(); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("expected ErrServerClosed from second Close, got %v", err)
	}
}
