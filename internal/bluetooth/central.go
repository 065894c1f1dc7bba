package bluetooth

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// Serial tunnel service and characteristics every lens unit must expose.
// The units speak the Nordic UART profile: RX is host-to-device (write),
// TX is device-to-host (notify).
var (
	serialServiceUUID = bluetooth.ServiceUUIDNordicUART
	serialWriteUUID   = bluetooth.CharacteristicUUIDUARTRX
	serialNotifyUUID  = bluetooth.CharacteristicUUIDUARTTX
)

// Central is the tinygo-backed radio: it dials peripherals by address and
// runs active scans on the default adapter.
type Central struct {
	adapter *bluetooth.Adapter
	log     *logrus.Logger

	mu       sync.Mutex
	enabled  bool
	handlers map[string]func() // address -> disconnect callback
}

func NewCentral(log *logrus.Logger) *Central {
	return &Central{
		adapter:  bluetooth.DefaultAdapter,
		log:      log,
		handlers: make(map[string]func()),
	}
}

// Enable powers the adapter once and installs the disconnect dispatcher.
func (c *Central) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return nil
	}
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("enable BLE adapter: %w (try running with sudo or setcap cap_net_admin+ep)", err)
	}
	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		c.mu.Lock()
		fn := c.handlers[addr]
		c.mu.Unlock()
		if fn != nil {
			go fn()
		}
	})
	c.enabled = true
	return nil
}

// Dial opens a connection directly by address, without a pre-scan.
func (c *Central) Dial(address string, timeout time.Duration, onDisconnect func()) (Transport, error) {
	if err := c.Enable(); err != nil {
		return nil, err
	}

	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return nil, fmt.Errorf("bad peripheral address %q: %w", address, err)
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}

	// The handler must be in place before Connect returns, otherwise a drop
	// in that window is lost.
	t := &deviceTransport{address: address}
	c.mu.Lock()
	c.handlers[address] = dropHandler(t, onDisconnect)
	c.mu.Unlock()

	device, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(timeout),
	})
	if err != nil {
		c.mu.Lock()
		delete(c.handlers, address)
		c.mu.Unlock()
		return nil, err
	}

	t.device = device
	t.up.Store(true)
	return t, nil
}

// dropHandler builds the disconnect callback for one dialed transport. It
// fires the upstream callback exactly once, and only when the transport had
// actually come up.
func dropHandler(t *deviceTransport, onDisconnect func()) func() {
	return func() {
		if t.up.Swap(false) && onDisconnect != nil {
			onDisconnect()
		}
	}
}

// Scan listens for advertisements until the timeout elapses and returns
// everything heard, deduplicated by address.
func (c *Central) Scan(timeout time.Duration) ([]Advertisement, error) {
	if err := c.Enable(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	seen := make(map[string]Advertisement)

	timer := time.AfterFunc(timeout, func() {
		_ = c.adapter.StopScan()
	})
	defer timer.Stop()

	err := c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		mu.Lock()
		seen[result.Address.String()] = Advertisement{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    result.RSSI,
		}
		mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make([]Advertisement, 0, len(seen))
	for _, adv := range seen {
		out = append(out, adv)
	}
	c.log.Debugf("scan heard %d peripherals", len(out))
	return out, nil
}

var (
	_ Dialer  = (*Central)(nil)
	_ Scanner = (*Central)(nil)
)
