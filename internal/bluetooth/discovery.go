package bluetooth

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Name substrings that mark a peripheral as a lens unit at all.
var productPatterns = []string{"_L_", "_R_", "G1", "Even", "LE-"}

// ClassifySide maps a peripheral name to a side. Matching is case-insensitive
// and a left tag always wins over the right side and vice versa; ambiguous or
// empty names are never classified.
func ClassifySide(name string) (Side, bool) {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "_L_") || strings.Contains(upper, "LEFT"):
		return Left, true
	case strings.Contains(upper, "_R_") || strings.Contains(upper, "RIGHT"):
		return Right, true
	}
	return Left, false
}

func matchesProduct(name string) bool {
	for _, p := range productPatterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// Discovery resolves both sides to physical addresses: host-bonded devices
// first, then an active scan, then arbitrary assignment of leftover product
// matches.
type Discovery struct {
	store   AddressStore
	enum    Enumerator
	scanner Scanner
	log     *logrus.Logger
	timeout time.Duration

	mu   sync.Mutex
	rssi map[Side]int16
}

func NewDiscovery(store AddressStore, enum Enumerator, scanner Scanner, timeout time.Duration, log *logrus.Logger) *Discovery {
	return &Discovery{
		store:   store,
		enum:    enum,
		scanner: scanner,
		timeout: timeout,
		log:     log,
		rssi:    make(map[Side]int16),
	}
}

// Scan runs discovery. It returns true only when both sides resolved, in
// which case the addresses have been persisted.
func (d *Discovery) Scan() bool {
	resolved := map[Side]bool{}

	// Devices the host already holds a link or bond for are the highest
	// confidence source; a side resolved here skips the active scan.
	var bonded []DeviceInfo
	if d.enum != nil {
		var err error
		bonded, err = d.enum.Bonded()
		if err != nil {
			d.log.Debugf("bonded enumeration failed: %v", err)
		}
	}
	for _, dev := range bonded {
		if dev.Name == "" {
			continue
		}
		side, ok := ClassifySide(dev.Name)
		if !ok || resolved[side] {
			continue
		}
		d.store.SetDevice(side, dev.Address, dev.Name)
		resolved[side] = true
		d.log.Infof("found connected %s unit: %s (%s)", side, dev.Name, dev.Address)
	}

	if !resolved[Left] || !resolved[Right] {
		d.scanRemaining(resolved)
	}

	if !resolved[Left] || !resolved[Right] {
		d.guidance()
		return false
	}

	if err := d.store.Save(); err != nil {
		d.log.Warnf("could not persist addresses: %v", err)
	}
	return true
}

func (d *Discovery) scanRemaining(resolved map[Side]bool) {
	d.log.Info("scanning for lens units...")
	advs, err := d.scanner.Scan(d.timeout)
	if err != nil {
		d.log.Errorf("scan failed: %v", err)
		return
	}
	d.log.Infof("scan found %d peripherals", len(advs))

	var candidates []Advertisement
	seen := map[string]bool{}
	for _, adv := range advs {
		if adv.Name == "" || seen[adv.Address] {
			continue
		}
		seen[adv.Address] = true
		if !matchesProduct(adv.Name) {
			continue
		}
		candidates = append(candidates, adv)
		d.log.Infof("candidate lens unit: %s (%s)", adv.Name, adv.Address)

		if side, ok := ClassifySide(adv.Name); ok && !resolved[side] {
			d.store.SetDevice(side, adv.Address, adv.Name)
			d.setRSSI(side, adv.RSSI)
			resolved[side] = true
			d.log.Infof("found %s unit: %s", side, adv.Name)
		}
	}

	// Tagged names settled what they could; hand any leftover candidates to
	// the still-missing sides, skipping addresses already bound.
	if len(candidates) >= 1 && (!resolved[Left] || !resolved[Right]) {
		var spare []Advertisement
		for _, adv := range candidates {
			if adv.Address == d.store.Address(Left) || adv.Address == d.store.Address(Right) {
				continue
			}
			spare = append(spare, adv)
		}
		for _, side := range Sides {
			if resolved[side] || len(spare) == 0 {
				continue
			}
			d.store.SetDevice(side, spare[0].Address, spare[0].Name)
			d.setRSSI(side, spare[0].RSSI)
			resolved[side] = true
			d.log.Infof("assigned %s as %s unit", spare[0].Name, side)
			spare = spare[1:]
		}
	}
}

func (d *Discovery) setRSSI(side Side, rssi int16) {
	d.mu.Lock()
	d.rssi[side] = rssi
	d.mu.Unlock()
}

// RSSI reports the signal strength heard for a side during the most recent
// scan. Absent for sides resolved from host bonds alone.
func (d *Discovery) RSSI(side Side) (int16, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.rssi[side]
	return v, ok
}

func (d *Discovery) guidance() {
	d.log.Warn("lens units not found. Please check:")
	d.log.Warn("  1. units are seated in the powered cradle (close the left arm first, then the right)")
	d.log.Warn("  2. Bluetooth is enabled on this machine (2.4GHz wifi can interfere)")
	d.log.Warn("  3. no nearby device with a previous pairing is holding the units")
	d.log.Warn("  4. the units are not claimed by another Bluetooth manager (remove stale bonds)")
	d.log.Warn("  5. if nothing helps, restart the units with the official app and retry")
}
