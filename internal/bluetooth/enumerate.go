package bluetooth

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	bluezBusName         = "org.bluez"
	bluezDeviceInterface = "org.bluez.Device1"
)

// BlueZEnumerator lists peripherals BlueZ already considers connected or
// paired, via the object manager on the system bus.
type BlueZEnumerator struct {
	conn *dbus.Conn
	log  *logrus.Logger
}

func NewBlueZEnumerator(log *logrus.Logger) (*BlueZEnumerator, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system D-Bus: %w", err)
	}
	return &BlueZEnumerator{conn: conn, log: log}, nil
}

// Bonded returns every named device BlueZ reports as connected or paired.
// Enumeration failure is downgraded to an empty result; discovery falls back
// to an active scan.
func (e *BlueZEnumerator) Bonded() ([]DeviceInfo, error) {
	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	obj := e.conn.Object(bluezBusName, "/")
	if err := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&objects); err != nil {
		e.log.Debugf("bluez enumeration failed: %v", err)
		return nil, nil
	}

	var devices []DeviceInfo
	for _, interfaces := range objects {
		dev, ok := interfaces[bluezDeviceInterface]
		if !ok {
			continue
		}
		var info DeviceInfo
		if v, ok := dev["Address"]; ok {
			info.Address, _ = v.Value().(string)
		}
		if v, ok := dev["Name"]; ok {
			info.Name, _ = v.Value().(string)
		}
		if info.Address == "" {
			continue
		}
		connected, _ := boolProp(dev, "Connected")
		paired, _ := boolProp(dev, "Paired")
		if !connected && !paired {
			continue
		}
		devices = append(devices, info)
	}
	return devices, nil
}

func boolProp(props map[string]dbus.Variant, name string) (bool, bool) {
	v, ok := props[name]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

var _ Enumerator = (*BlueZEnumerator)(nil)
