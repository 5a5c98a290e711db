package toolchannel

// State is the connection lifecycle of a Channel
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRetrying
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRetrying:
		return "retrying"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
