package session

// State is a session lifecycle state
type State string

const (
	StateCreated        State = "CREATED"
	StateQRPending      State = "QR_PENDING"
	StateQRReady        State = "QR_READY"
	StateAuthenticating State = "AUTHENTICATING"
	StateConnected      State = "CONNECTED"
	StateDisconnected   State = "DISCONNECTED"
	StateReconnecting   State = "RECONNECTING"
	StateFailed         State = "FAILED"
)

var transitions = map[State][]State{
	StateCreated:        {StateQRPending},
	StateQRPending:      {StateQRReady, StateFailed},
	StateQRReady:        {StateAuthenticating, StateQRPending, StateFailed},
	StateAuthenticating: {StateConnected, StateFailed},
	StateConnected:      {StateDisconnected},
	StateDisconnected:   {StateReconnecting},
	StateReconnecting:   {StateConnected, StateFailed},
	StateFailed:         {StateCreated},
}

// pairingPath is the forward order a fresh session walks while binding
var pairingPath = []State{StateQRPending, StateQRReady, StateAuthenticating, StateConnected}

// CanTransition reports whether from -> to is a lifecycle edge
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsPairing reports whether the session is still binding to its provider
func (s State) IsPairing() bool {
	switch s {
	case StateQRPending, StateQRReady, StateAuthenticating:
		return true
	}
	return false
}

// AcceptsChallengeRequest reports whether a QR challenge may be requested
func (s State) AcceptsChallengeRequest() bool {
	switch s {
	case StateCreated, StateQRPending, StateQRReady:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// pathTo returns the legal steps along the pairing path from s up to and
// including target, or nil when target is not ahead of s on that path.
func (s State) pathTo(target State) []State {
	from := -1
	for i, p := range pairingPath {
		if p == s {
			from = i
		}
	}
	if from < 0 {
		return nil
	}
	for i := from + 1; i < len(pairingPath); i++ {
		if pairingPath[i] == target {
			return pairingPath[from+1 : i+1]
		}
	}
	return nil
}
