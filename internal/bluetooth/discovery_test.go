package bluetooth

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// memStore is an in-memory AddressStore for discovery tests.
type memStore struct {
	addrs map[Side]string
	names map[Side]string
	saves int
}

func newMemStore() *memStore {
	return &memStore{addrs: make(map[Side]string), names: make(map[Side]string)}
}

func (s *memStore) Address(side Side) string { return s.addrs[side] }
func (s *memStore) Name(side Side) string    { return s.names[side] }
func (s *memStore) SetDevice(side Side, address, name string) {
	s.addrs[side] = address
	s.names[side] = name
}
func (s *memStore) BothKnown() bool { return s.addrs[Left] != "" && s.addrs[Right] != "" }
func (s *memStore) Save() error {
	s.saves++
	return nil
}

func newTestDiscovery(store AddressStore, central *MockCentral) *Discovery {
	return NewDiscovery(store, central, central, 10*time.Millisecond, testLogger())
}

func TestClassifySide(t *testing.T) {
	cases := []struct {
		name string
		side Side
		ok   bool
	}{
		{"Even G1_L_F3A2", Left, true},
		{"Even G1_R_F3A2", Right, true},
		{"even g1_l_f3a2", Left, true},
		{"G1 LEFT ARM", Left, true},
		{"g1 right arm", Right, true},
		{"Even G1", Left, false},
		{"", Left, false},
		{"LE-Speaker", Left, false},
	}
	for _, tc := range cases {
		side, ok := ClassifySide(tc.name)
		if ok != tc.ok || (ok && side != tc.side) {
			t.Errorf("ClassifySide(%q) = %v, %v; want %v, %v", tc.name, side, ok, tc.side, tc.ok)
		}
	}
}

func TestScanResolvesBothFromAdvertisements(t *testing.T) {
	central := NewMockCentral()
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_L_A1", Address: "C4:00:00:00:00:01", Advertised: true})
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_R_A1", Address: "C4:00:00:00:00:02", Advertised: true})
	store := newMemStore()

	if !newTestDiscovery(store, central).Scan() {
		t.Fatal("Scan = false, want true")
	}
	if store.Address(Left) != "C4:00:00:00:00:01" || store.Address(Right) != "C4:00:00:00:00:02" {
		t.Fatalf("resolved %q / %q", store.Address(Left), store.Address(Right))
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestScanPrefersBondedDevices(t *testing.T) {
	central := NewMockCentral()
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_L_A1", Address: "C4:00:00:00:00:01", Bonded: true})
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_R_A1", Address: "C4:00:00:00:00:02", Bonded: true})
	// A competing advertised left unit must not displace the bonded one.
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_L_ZZ", Address: "C4:00:00:00:00:09", Advertised: true})
	store := newMemStore()

	if !newTestDiscovery(store, central).Scan() {
		t.Fatal("Scan = false, want true")
	}
	if store.Address(Left) != "C4:00:00:00:00:01" {
		t.Fatalf("left = %q, want the bonded unit", store.Address(Left))
	}
}

func TestScanIgnoresUnnamedPeripherals(t *testing.T) {
	central := NewMockCentral()
	central.AddPeripheral(&MockPeripheral{Name: "", Address: "C4:00:00:00:00:01", Advertised: true, Bonded: true})
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_R_A1", Address: "C4:00:00:00:00:02", Advertised: true})
	store := newMemStore()

	if newTestDiscovery(store, central).Scan() {
		t.Fatal("Scan resolved both sides from an unnamed peripheral")
	}
	if store.Address(Left) != "" {
		t.Fatalf("left = %q, want unassigned", store.Address(Left))
	}
}

func TestScanIgnoresForeignDevices(t *testing.T) {
	central := NewMockCentral()
	central.AddPeripheral(&MockPeripheral{Name: "JBL Flip", Address: "C4:00:00:00:00:01", Advertised: true})
	central.AddPeripheral(&MockPeripheral{Name: "Mi Band", Address: "C4:00:00:00:00:02", Advertised: true})
	store := newMemStore()

	if newTestDiscovery(store, central).Scan() {
		t.Fatal("Scan = true with only foreign devices in range")
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0 on failure", store.saves)
	}
}

func TestScanAssignsUntaggedCandidates(t *testing.T) {
	// One tagged left unit plus one untagged product match: the spare
	// candidate fills the right slot.
	central := NewMockCentral()
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_L_A1", Address: "C4:00:00:00:00:01", Advertised: true})
	central.AddPeripheral(&MockPeripheral{Name: "Even G1", Address: "C4:00:00:00:00:02", Advertised: true})
	store := newMemStore()

	if !newTestDiscovery(store, central).Scan() {
		t.Fatal("Scan = false, want true")
	}
	if store.Address(Left) != "C4:00:00:00:00:01" {
		t.Fatalf("left = %q", store.Address(Left))
	}
	if store.Address(Right) != "C4:00:00:00:00:02" {
		t.Fatalf("right = %q, want the spare candidate", store.Address(Right))
	}
}

func TestScanFailureLeavesStoreUnsaved(t *testing.T) {
	central := NewMockCentral()
	central.SetScanError(errors.New("adapter busy"))
	store := newMemStore()

	if newTestDiscovery(store, central).Scan() {
		t.Fatal("Scan = true despite a scan error")
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0", store.saves)
	}
}

func TestScanRecordsRSSI(t *testing.T) {
	central := NewMockCentral()
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_L_A1", Address: "C4:00:00:00:00:01", Advertised: true})
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_R_A1", Address: "C4:00:00:00:00:02", Bonded: true})
	store := newMemStore()

	d := newTestDiscovery(store, central)
	if !d.Scan() {
		t.Fatal("Scan = false, want true")
	}
	if v, ok := d.RSSI(Left); !ok || v != -60 {
		t.Fatalf("left RSSI = %d, %v; want -60 from the advertisement", v, ok)
	}
	if _, ok := d.RSSI(Right); ok {
		t.Fatal("right RSSI present although the side resolved from a bond")
	}
}

func TestScanWithoutEnumerator(t *testing.T) {
	central := NewMockCentral()
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_L_A1", Address: "C4:00:00:00:00:01", Advertised: true})
	central.AddPeripheral(&MockPeripheral{Name: "Even G1_R_A1", Address: "C4:00:00:00:00:02", Advertised: true})
	store := newMemStore()

	d := NewDiscovery(store, nil, central, 10*time.Millisecond, testLogger())
	if !d.Scan() {
		t.Fatal("Scan = false without an enumerator")
	}
}
