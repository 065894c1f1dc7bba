package bluetooth

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const bluezAdapterPath = "/org/bluez/hci0"

// BlueZPairer verifies host-level pairing for both sides through BlueZ,
// pairing first when a device has never been bonded.
type BlueZPairer struct {
	conn *dbus.Conn
	log  *logrus.Logger
}

func NewBlueZPairer(log *logrus.Logger) (*BlueZPairer, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system D-Bus: %w", err)
	}
	return &BlueZPairer{conn: conn, log: log}, nil
}

// VerifyPairing checks both addresses are paired with the host, attempting
// a fresh pair where they are not. It only ever reports an overall verdict.
func (p *BlueZPairer) VerifyPairing(leftAddr, rightAddr string) bool {
	if leftAddr == "" || rightAddr == "" {
		return false
	}
	for _, addr := range []string{leftAddr, rightAddr} {
		if !p.ensurePaired(addr) {
			return false
		}
	}
	return true
}

func (p *BlueZPairer) ensurePaired(addr string) bool {
	dev := p.conn.Object(bluezBusName, devicePath(addr))

	v, err := dev.GetProperty(bluezDeviceInterface + ".Paired")
	if err == nil {
		if paired, ok := v.Value().(bool); ok && paired {
			return true
		}
	}

	p.log.Infof("pairing with %s (first-time setup, this only happens once)", addr)
	if err := dev.Call(bluezDeviceInterface+".Pair", 0).Err; err != nil {
		if strings.Contains(err.Error(), "AlreadyExists") {
			return true
		}
		p.log.Warnf("pairing %s failed: %v", addr, err)
		return false
	}
	return true
}

// devicePath maps a MAC to its BlueZ object path, e.g.
// AA:BB:CC:DD:EE:FF -> /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func devicePath(addr string) dbus.ObjectPath {
	return dbus.ObjectPath(bluezAdapterPath + "/dev_" + strings.ReplaceAll(addr, ":", "_"))
}

var _ PairingVerifier = (*BlueZPairer)(nil)
