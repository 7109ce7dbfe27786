package inet

// TCPState is the connection state of a TCPEndpoint. One endpoint instance
// represents one connection attempt or established connection; a listening
// endpoint spawns a fresh instance per accepted connection.
type TCPState uint8

const (
	// StateReady is the initial state of a fresh endpoint.
	StateReady TCPState = iota
	// StateBound follows a successful Bind.
	StateBound
	// StateListening follows a successful Listen.
	StateListening
	// StateConnecting covers an in-flight Connect.
	StateConnecting
	// StateConnected is an established connection, both directions open.
	StateConnected
	// StateSendShutdown means the local side has finished sending.
	StateSendShutdown
	// StateReceiveShutdown means the peer has finished sending.
	StateReceiveShutdown
	// StateClosing is a graceful close draining queued sends.
	StateClosing
	// StateClosed is terminal; the slot returns to the pool.
	StateClosed
)

func (s TCPState) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateBound:
		return "Bound"
	case StateListening:
		return "Listening"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateSendShutdown:
		return "SendShutdown"
	case StateReceiveShutdown:
		return "ReceiveShutdown"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// canSend reports whether Send is legal: an established connection whose
// send direction is still open. ReceiveShutdown still permits sending.
func (s TCPState) canSend() bool {
	return s == StateConnected || s == StateReceiveShutdown
}

// dataBearing reports whether received data may be delivered or acked in
// this state. Data that arrives or sits queued outside these states is held,
// never dropped.
func (s TCPState) dataBearing() bool {
	switch s {
	case StateConnected, StateSendShutdown, StateReceiveShutdown, StateClosing:
		return true
	default:
		return false
	}
}
