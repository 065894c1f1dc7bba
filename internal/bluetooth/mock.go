package bluetooth

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// MockPeripheral scripts one fake lens unit for tests and demo mode.
type MockPeripheral struct {
	Name    string
	Address string

	Advertised bool // appears in active scans
	Bonded     bool // appears in host enumeration

	DialFailures   int   // consecutive dial errors before a dial succeeds
	DialErr        error // error returned while failing (default: not found)
	VerifyFailures int   // serial lookups that fail before one succeeds
	MissingService bool  // serial lookup never succeeds
}

// MockCentral is an in-memory radio: dialer, scanner, enumerator and pairing
// verifier in one. Everything is scriptable per address.
type MockCentral struct {
	mu          sync.Mutex
	peripherals []*MockPeripheral
	byAddr      map[string]*MockPeripheral
	dials       map[string][]time.Duration
	transports  map[string]*MockTransport
	scanErr     error
	pairingOK   bool
	pairCalls   int
}

func NewMockCentral() *MockCentral {
	return &MockCentral{
		byAddr:     make(map[string]*MockPeripheral),
		dials:      make(map[string][]time.Duration),
		transports: make(map[string]*MockTransport),
	}
}

func (c *MockCentral) AddPeripheral(p *MockPeripheral) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peripherals = append(c.peripherals, p)
	c.byAddr[p.Address] = p
}

// SetScanError makes active scans fail.
func (c *MockCentral) SetScanError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanErr = err
}

// SetPairingOK scripts the pairing verifier outcome.
func (c *MockCentral) SetPairingOK(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairingOK = ok
}

// PairCalls reports how often pairing verification ran.
func (c *MockCentral) PairCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairCalls
}

// FailNextDials re-arms n consecutive dial failures for an address, counted
// from the attempts already made.
func (c *MockCentral) FailNextDials(address string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.byAddr[address]; p != nil {
		p.DialFailures = len(c.dials[address]) + n
	}
}

// DialAttempts returns the timeouts of every dial made to an address.
func (c *MockCentral) DialAttempts(address string) []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.dials[address]))
	copy(out, c.dials[address])
	return out
}

// Transport returns the most recent transport dialed for an address.
func (c *MockCentral) Transport(address string) *MockTransport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transports[address]
}

func (c *MockCentral) Dial(address string, timeout time.Duration, onDisconnect func()) (Transport, error) {
	c.mu.Lock()
	p := c.byAddr[address]
	c.dials[address] = append(c.dials[address], timeout)
	attempts := len(c.dials[address])
	var failures int
	var dialErr error
	if p != nil {
		failures, dialErr = p.DialFailures, p.DialErr
	}
	c.mu.Unlock()

	if p == nil {
		return nil, fmt.Errorf("peripheral %s not found", address)
	}
	if attempts <= failures {
		if dialErr != nil {
			return nil, dialErr
		}
		return nil, errors.New("device not found")
	}

	t := &MockTransport{peripheral: p, address: address, up: true, onDisconnect: onDisconnect}
	c.mu.Lock()
	c.transports[address] = t
	c.mu.Unlock()
	return t, nil
}

func (c *MockCentral) Scan(timeout time.Duration) ([]Advertisement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanErr != nil {
		return nil, c.scanErr
	}
	var out []Advertisement
	for _, p := range c.peripherals {
		if p.Advertised {
			out = append(out, Advertisement{Name: p.Name, Address: p.Address, RSSI: -60})
		}
	}
	return out, nil
}

func (c *MockCentral) Bonded() ([]DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []DeviceInfo
	for _, p := range c.peripherals {
		if p.Bonded {
			out = append(out, DeviceInfo{Name: p.Name, Address: p.Address})
		}
	}
	return out, nil
}

func (c *MockCentral) VerifyPairing(leftAddr, rightAddr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairCalls++
	return c.pairingOK
}

var (
	_ Dialer          = (*MockCentral)(nil)
	_ Scanner         = (*MockCentral)(nil)
	_ Enumerator      = (*MockCentral)(nil)
	_ PairingVerifier = (*MockCentral)(nil)
)

// MockTransport is the fake link a MockCentral dial produces.
type MockTransport struct {
	peripheral *MockPeripheral
	address    string

	mu           sync.Mutex
	up           bool
	verifyCalls  int
	writes       [][]byte
	writeErr     error
	notifyFn     func([]byte)
	onDisconnect func()
}

func (t *MockTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.up
}

func (t *MockTransport) Address() string { return t.address }

func (t *MockTransport) DiscoverSerial() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peripheral.MissingService {
		return errors.New("serial service not present")
	}
	t.verifyCalls++
	if t.verifyCalls <= t.peripheral.VerifyFailures {
		return errors.New("service table not yet populated")
	}
	return nil
}

func (t *MockTransport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if !t.up {
		return errors.New("transport closed")
	}
	frame := make([]byte, len(p))
	copy(frame, p)
	t.writes = append(t.writes, frame)
	return nil
}

func (t *MockTransport) StartNotifications(fn func([]byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifyFn = fn
	return nil
}

func (t *MockTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.up = false
	return nil
}

// Drop simulates the remote end killing the link: the transport dies and the
// disconnect callback fires in the caller's goroutine.
func (t *MockTransport) Drop() {
	t.mu.Lock()
	t.up = false
	fn := t.onDisconnect
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetWriteError scripts subsequent writes to fail.
func (t *MockTransport) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// Writes returns a copy of every frame written so far.
func (t *MockTransport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

// Notify injects an inbound frame as if the peripheral had notified.
func (t *MockTransport) Notify(p []byte) {
	t.mu.Lock()
	fn := t.notifyFn
	t.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

var _ Transport = (*MockTransport)(nil)
