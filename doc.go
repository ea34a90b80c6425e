// Package httpcore implements the native core of an asynchronous HTTP/1.x
// application server: a single-threaded, readiness-driven event loop that
// bridges an OS I/O poller to a host application callback.
//
// # Architecture
//
// A [Server] owns the listening socket, the poller, and a registry of
// connection slots. Each slot pairs one accepted socket with a protocol
// multiplexer holding a 256 KiB read buffer and a 256 KiB write buffer.
// Readiness events drive buffered reads into the HTTP/1 state machine, which
// parses requests and dispatches them to the registered [Callback] together
// with a [DataSender] and a [DataReceiver] handle.
//
// The application produces the response asynchronously: each DataSender call
// enqueues a fully-framed chunk on a bounded per-connection channel and posts
// a resume-writing request on the shared update queue. The next loop turn
// re-arms the socket for writing and drains the channel into the write buffer.
//
// # Platform Support
//
// I/O polling uses platform-native readiness mechanisms:
//   - Linux: epoll, with an eventfd wake-up
//   - macOS: kqueue, with a self-pipe wake-up
//
// # Thread Safety
//
// The poller, the registry, and all slot state belong exclusively to the
// goroutine running [Server.Run] ("the I/O thread"). The only cross-thread
// channels into the loop are:
//   - the update queue ([Transport]): lock-free MPSC of interest-set changes,
//     each push followed by a wake-up
//   - the per-connection sender/receiver channels: bounded, non-blocking on
//     both ends
//
// Handles are safe to call from any goroutine; everything else is not.
//
// # Usage
//
//	err := httpcore.CreateServer("127.0.0.1", 8080, 5.0,
//		func(s *httpcore.DataSender, r *httpcore.DataReceiver, headers []httpcore.Header, method, path string, version uint8) error {
//			return s.Call(false, []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"))
//		})
package httpcore
