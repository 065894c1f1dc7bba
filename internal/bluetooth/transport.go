package bluetooth

import "time"

// Side identifies one of the two lens units.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Sides lists both sides in the order connection attempts are made.
var Sides = [2]Side{Left, Right}

// DeviceInfo describes a peripheral known to the host (bonded or connected).
type DeviceInfo struct {
	Name    string
	Address string
}

// Advertisement is one result of an active scan.
type Advertisement struct {
	Name    string
	Address string
	RSSI    int16
}

// Transport is an open link to one lens unit. A Transport is owned by exactly
// one session; it is replaced, never mutated, on reconnect.
type Transport interface {
	// Connected reports whether the underlying link is still up.
	Connected() bool

	// DiscoverSerial performs a single lookup of the serial tunnel service
	// and its two characteristics. It must succeed before Write or
	// StartNotifications are used.
	DiscoverSerial() error

	// Write sends a frame to the outbound characteristic.
	Write(p []byte) error

	// StartNotifications subscribes to the inbound characteristic. fn is
	// invoked for every notification until the transport closes.
	StartNotifications(fn func(p []byte)) error

	// Disconnect closes the link. Safe to call on a dead transport.
	Disconnect() error

	// Address returns the peripheral address this transport is bound to.
	Address() string
}

// Dialer opens transports directly by address, bypassing any scan.
// onDisconnect fires asynchronously when the transport drops for any reason
// other than an explicit Disconnect call.
type Dialer interface {
	Dial(address string, timeout time.Duration, onDisconnect func()) (Transport, error)
}

// Scanner runs an active radio scan for the given duration and returns
// everything heard.
type Scanner interface {
	Scan(timeout time.Duration) ([]Advertisement, error)
}

// Enumerator lists peripherals the host OS already considers bonded or
// connected. Implementations should tolerate failure by returning an empty
// list; enumeration is an optimization, not a requirement.
type Enumerator interface {
	Bonded() ([]DeviceInfo, error)
}

// PairingVerifier checks (and if needed establishes) host-level pairing for
// both addresses. Used as a fallback when direct connects fail.
type PairingVerifier interface {
	VerifyPairing(leftAddr, rightAddr string) bool
}

// AddressStore persists the side-to-address mapping across runs.
type AddressStore interface {
	Address(side Side) string
	Name(side Side) string
	SetDevice(side Side, address, name string)
	BothKnown() bool
	Save() error
}
