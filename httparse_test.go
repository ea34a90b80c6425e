package httpcore

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func parseAll(t *testing.T, raw string) (requestLine, []Header, int) {
	t.Helper()
	var headers [maxHeaders]Header
	req, count, n, complete, err := parseRequest([]byte(raw), headers[:])
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !complete {
		t.Fatal("parse incomplete")
	}
	return req, headers[:count], n
}

// TestParseRequest_Simple verifies a minimal GET parses with the right
// request line, headers, and consumed length.
func TestParseRequest_Simple(t *testing.T) {
	raw := "GET /index.html HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n"
	req, headers, n := parseAll(t, raw)

	if req.method != "GET" || req.path != "/index.html" || req.version != 1 {
		t.Fatalf("unexpected request line: %+v", req)
	}
	if n != len(raw) {
		t.Fatalf("expected %d consumed, got %d", len(raw), n)
	}
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	if headers[0].Name != "Host" || !bytes.Equal(headers[0].Value, []byte("example.com")) {
		t.Fatalf("unexpected header 0: %+v", headers[0])
	}
	if headers[1].Name != "Accept" || !bytes.Equal(headers[1].Value, []byte("*/*")) {
		t.Fatalf("unexpected header 1: %+v", headers[1])
	}
}

// TestParseRequest_TrailingBytesNotConsumed verifies n stops at the blank
// line so pipelined data stays in the buffer.
func TestParseRequest_TrailingBytesNotConsumed(t *testing.T) {
	head := "POST /x HTTP/1.1\r\nContent-Length: 5\r\n\r\n"
	raw := head + "hello"
	_, _, n := parseAll(t, raw)
	if n != len(head) {
		t.Fatalf("expected %d consumed, got %d", len(head), n)
	}
}

// TestParseRequest_HTTP10 verifies minor version 0 round-trips.
func TestParseRequest_HTTP10(t *testing.T) {
	req, _, _ := parseAll(t, "GET / HTTP/1.0\r\n\r\n")
	if req.version != 0 {
		t.Fatalf("expected version 0, got %d", req.version)
	}
}

// TestParseRequest_IncrementalChunks verifies a request delivered in N
// readable chunks parses identically for N ∈ {1, 2, message length}: every
// strict prefix is partial, the full message is complete.
func TestParseRequest_IncrementalChunks(t *testing.T) {
	raw := "GET /path HTTP/1.1\r\nHost: x\r\nUser-Agent: test\r\n\r\n"

	for split := 1; split < len(raw); split++ {
		var headers [maxHeaders]Header
		_, _, _, complete, err := parseRequest([]byte(raw[:split]), headers[:])
		if err != nil {
			t.Fatalf("prefix %d: unexpected error %v", split, err)
		}
		if complete {
			t.Fatalf("prefix %d: reported complete", split)
		}
	}

	req, headers, n := parseAll(t, raw)
	if req.method != "GET" || len(headers) != 2 || n != len(raw) {
		t.Fatalf("full parse mismatch: %+v headers=%d n=%d", req, len(headers), n)
	}
}

// TestParseRequest_HeaderLimit verifies a request with exactly maxHeaders
// headers parses and one more fails.
func TestParseRequest_HeaderLimit(t *testing.T) {
	build := func(count int) string {
		var sb strings.Builder
		sb.WriteString("GET / HTTP/1.1\r\n")
		for i := 0; i < count; i++ {
			fmt.Fprintf(&sb, "X-Header-%d: v\r\n", i)
		}
		sb.WriteString("\r\n")
		return sb.String()
	}

	_, headers, _ := parseAll(t, build(maxHeaders))
	if len(headers) != maxHeaders {
		t.Fatalf("expected %d headers, got %d", maxHeaders, len(headers))
	}

	var scratch [maxHeaders]Header
	_, _, _, _, err := parseRequest([]byte(build(maxHeaders+1)), scratch[:])
	if !errors.Is(err, ErrTooManyHeaders) {
		t.Fatalf("expected ErrTooManyHeaders, got %v", err)
	}
}

// TestParseRequest_Malformed verifies byte sequences that cannot prefix a
// valid request are rejected rather than reported partial.
func TestParseRequest_Malformed(t *testing.T) {
	cases := []string{
		"GET\x01 / HTTP/1.1\r\n\r\n",
		"GET / HTTQ/1.1\r\n\r\n",
		"GET / HTTP/2.0\r\n\r\n",
		"GET / HTTP/1.1\r\nBad Header: v\r\n\r\n",
		"GET / HTTP/1.1\nHost: x\n\n",
		" / HTTP/1.1\r\n\r\n",
	}
	for _, raw := range cases {
		var headers [maxHeaders]Header
		_, _, _, _, err := parseRequest([]byte(raw), headers[:])
		if !errors.Is(err, ErrMalformedRequest) {
			t.Fatalf("%q: expected ErrMalformedRequest, got %v", raw, err)
		}
	}
}

// TestParseRequest_ValueWhitespace verifies optional whitespace around
// header values is trimmed and interior bytes are preserved exactly.
func TestParseRequest_ValueWhitespace(t *testing.T) {
	_, headers, _ := parseAll(t, "GET / HTTP/1.1\r\nX-Pad: \t a b\t \r\n\r\n")
	if got := string(headers[0].Value); got != "a b" {
		t.Fatalf("expected %q, got %q", "a b", got)
	}
}

// TestParseRequest_LeadingCRLF verifies blank lines between pipelined
// messages are tolerated.
func TestParseRequest_LeadingCRLF(t *testing.T) {
	raw := "\r\nGET / HTTP/1.1\r\n\r\n"
	req, _, n := parseAll(t, raw)
	if req.method != "GET" || n != len(raw) {
		t.Fatalf("unexpected parse: %+v n=%d", req, n)
	}
}
