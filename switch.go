package httpcore

// selectedProtocol identifies which protocol currently observes a
// connection's buffers.
type selectedProtocol uint8

const (
	// protoH1 is the HTTP/1.x protocol handler.
	protoH1 selectedProtocol = iota
)

// switchStatus is the result of offering a protocol the chance to yield to
// another (e.g. an HTTP/2 upgrade), reported just after a parse completes.
type switchStatus struct {
	switchTo selectedProtocol
	yield    bool
}

// noSwitch reports that the current protocol remains selected.
func noSwitch() switchStatus {
	return switchStatus{}
}

// switchTo requests an atomic swap of the selected protocol before the next
// I/O event.
func switchTo(p selectedProtocol) switchStatus {
	return switchStatus{switchTo: p, yield: true}
}
