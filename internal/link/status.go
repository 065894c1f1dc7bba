package link

import "time"

// State is the single authoritative connection state for the pair. Only the
// coordinator writes it.
type State int

const (
	StateDisconnected State = iota
	StateScanning
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "Scanning"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// SideStatus is one side's slice of a status snapshot.
type SideStatus struct {
	Connected     bool
	Errors        int
	LastError     string
	RSSI          *int16
	LastHeartbeat time.Time // last keep-alive response seen from this side
}

// Status is a point-in-time snapshot for external presentation layers.
type Status struct {
	State         State
	Left          SideStatus
	Right         SideStatus
	HeartbeatSent time.Time
	SilentMode    bool
}
