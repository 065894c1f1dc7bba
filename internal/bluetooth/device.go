package bluetooth

import (
	"fmt"
	"sync"
	"sync/atomic"

	"tinygo.org/x/bluetooth"
)

// deviceTransport adapts one connected bluetooth.Device to the Transport
// interface. The serial characteristics are resolved by DiscoverSerial and
// the liveness flag flips when the central's disconnect dispatcher fires.
type deviceTransport struct {
	device  bluetooth.Device
	address string
	up      atomic.Bool

	mu     sync.Mutex
	write  bluetooth.DeviceCharacteristic
	notify bluetooth.DeviceCharacteristic
	ready  bool
}

func (t *deviceTransport) Connected() bool {
	return t.up.Load()
}

func (t *deviceTransport) Address() string {
	return t.address
}

// DiscoverSerial looks up the serial tunnel service and both characteristics.
// One attempt only; retrying is the caller's concern because the service
// table can lag the connection by a few hundred milliseconds.
func (t *deviceTransport) DiscoverSerial() error {
	services, err := t.device.DiscoverServices([]bluetooth.UUID{serialServiceUUID})
	if err != nil {
		return fmt.Errorf("discover serial service: %w", err)
	}
	if len(services) == 0 {
		return fmt.Errorf("serial service %s not present", serialServiceUUID.String())
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{serialWriteUUID, serialNotifyUUID})
	if err != nil {
		return fmt.Errorf("discover serial characteristics: %w", err)
	}

	var haveWrite, haveNotify bool
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range chars {
		switch ch.UUID() {
		case serialWriteUUID:
			t.write = ch
			haveWrite = true
		case serialNotifyUUID:
			t.notify = ch
			haveNotify = true
		}
	}
	if !haveWrite || !haveNotify {
		return fmt.Errorf("serial characteristics incomplete (write=%v notify=%v)", haveWrite, haveNotify)
	}
	t.ready = true
	return nil
}

func (t *deviceTransport) Write(p []byte) error {
	t.mu.Lock()
	ready := t.ready
	ch := t.write
	t.mu.Unlock()
	if !ready {
		return fmt.Errorf("transport %s: serial service not verified", t.address)
	}
	// NUS RX is write-without-response on this firmware.
	if _, err := ch.WriteWithoutResponse(p); err != nil {
		return err
	}
	return nil
}

func (t *deviceTransport) StartNotifications(fn func(p []byte)) error {
	t.mu.Lock()
	ready := t.ready
	ch := t.notify
	t.mu.Unlock()
	if !ready {
		return fmt.Errorf("transport %s: serial service not verified", t.address)
	}
	return ch.EnableNotifications(fn)
}

func (t *deviceTransport) Disconnect() error {
	t.up.Store(false)
	return t.device.Disconnect()
}

var _ Transport = (*deviceTransport)(nil)
