//go:build linux || darwin

package httpcore

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// readableFd fails the test unless fd becomes readable within a second.
func readableFd(t *testing.T, fd int) {
	t.Helper()
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 1000)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if n == 0 {
			t.Fatal("fd did not become readable")
		}
		return
	}
}

// drainQueue pops every queued update, returning them in order.
func drainQueue(tr *Transport) []EventUpdate {
	var updates []EventUpdate
	for {
		u, ok := tr.queue.Pop()
		if !ok {
			return updates
		}
		updates = append(updates, u)
	}
}

// newTestTransport builds a Transport over a real waker, cleaned up with the
// test.
func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	w, err := newWaker()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.close)
	return newTransport(w)
}

// eventually polls cond until it returns true or the deadline lapses.
func eventually(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
