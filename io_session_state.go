package aio

import "fmt"

type State uint32

const (
	StateConnecting State = iota
	StateConnected
	// StateClosing means WriteAndClose is flushing the send queue.
	StateClosing
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", uint32(st))
	}
}
