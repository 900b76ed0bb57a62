package session

// State is the position of the session in the handshake.
type State int

const (
	// StateUnauthenticated means there is no client token.
	StateUnauthenticated State = iota
	// StateClientOnly means a client token exists but the backend has not acknowledged it.
	StateClientOnly
	// StateAcknowledged means both slots are present.
	StateAcknowledged
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateClientOnly:
		return "client-only"
	case StateAcknowledged:
		return "acknowledged"
	default:
		return "unknown"
	}
}

// Snapshot is a side-effect free view of both slots.
type Snapshot struct {
	// State is derived from the presence of the slots.
	State State
	// ClientToken is the value of the client slot.
	ClientToken string
	// ServerToken is the value of the server slot.
	ServerToken string
}

func stateOf(clientToken, serverToken string) State {
	switch {
	case clientToken == "":
		return StateUnauthenticated
	case serverToken == "":
		return StateClientOnly
	default:
		return StateAcknowledged
	}
}
