package domain

// SessionState is the lifecycle position of one viewer session in one party.
//
//	Idle -> Joining -> Active -> Left
//	Active -> Disconnected -> Left
//
// A failed join goes straight from Joining to Left.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionJoining
	SessionActive
	SessionDisconnected
	SessionLeft
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionJoining:
		return "joining"
	case SessionActive:
		return "active"
	case SessionDisconnected:
		return "disconnected"
	case SessionLeft:
		return "left"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
