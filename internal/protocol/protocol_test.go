package protocol

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeTransport is a minimal transport double scripted per write.
type fakeTransport struct {
	mu       sync.Mutex
	writes   [][]byte
	failures int // writes that fail before one succeeds
	err      error
}

func (t *fakeTransport) Connected() bool                       { return true }
func (t *fakeTransport) Address() string                       { return "AA:BB:CC:DD:EE:FF" }
func (t *fakeTransport) DiscoverSerial() error                 { return nil }
func (t *fakeTransport) StartNotifications(func([]byte)) error { return nil }
func (t *fakeTransport) Disconnect() error                     { return nil }

func (t *fakeTransport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, append([]byte(nil), p...))
	if t.failures > 0 {
		t.failures--
		if t.err != nil {
			return t.err
		}
		return errors.New("write rejected")
	}
	return nil
}

func (t *fakeTransport) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}

func TestHeartbeatFrameLayout(t *testing.T) {
	got := HeartbeatFrame(0x2a)
	want := []byte{0x25, 0x06, 0x00, 0x2a, 0x04, 0x2a}
	if !bytes.Equal(got, want) {
		t.Fatalf("HeartbeatFrame(0x2a) = % x, want % x", got, want)
	}
}

func TestSilentModeFrame(t *testing.T) {
	if got := SilentModeFrame(true); !bytes.Equal(got, []byte{0x04, 0x01}) {
		t.Fatalf("on frame = % x", got)
	}
	if got := SilentModeFrame(false); !bytes.Equal(got, []byte{0x05, 0x01}) {
		t.Fatalf("off frame = % x", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		raw   []byte
		kind  EventKind
		label string
	}{
		{"heartbeat", []byte{0x25, 0x06, 0x00, 0x01, 0x04, 0x01}, EventHeartbeat, "heartbeat"},
		{"response", []byte{0x03, 0x00}, EventResponse, "response"},
		{"error", []byte{0x04, 0x01}, EventError, "error"},
		{"wearing", []byte{0xF5, 0x06}, EventPhysicalState, "wearing"},
		{"cradle closed", []byte{0xF5, 0x0b}, EventPhysicalState, "cradle closed"},
		{"double tap", []byte{0xF5, 0x00}, EventInteraction, "double tap"},
		{"long press", []byte{0xF5, 0x17}, EventInteraction, "long press"},
		{"silent mode on", []byte{0xF5, 0x04}, EventInteraction, "silent mode enabled"},
		{"cradle charged", []byte{0xF5, 0x0f}, EventBattery, "cradle fully charged"},
		{"device connected", []byte{0xF5, 0x11}, EventDevice, "connected"},
		{"unnamed state", []byte{0xF5, 0x7e}, EventDevice, "device state 0x7e"},
		{"truncated state", []byte{0xF5}, EventUnknown, "truncated state event"},
		{"unknown category", []byte{0x99}, EventUnknown, "category 0x99"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := Classify(tc.raw)
			if ev.Kind != tc.kind {
				t.Errorf("kind = %v, want %v", ev.Kind, tc.kind)
			}
			if ev.Label != tc.label {
				t.Errorf("label = %q, want %q", ev.Label, tc.label)
			}
		})
	}
	if ev := Classify(nil); ev.Kind != EventUnknown {
		t.Errorf("empty frame kind = %v, want unknown", ev.Kind)
	}
}

func TestClassifyStateCodeUsesSecondByte(t *testing.T) {
	ev := Classify([]byte{0xF5, 0x08})
	if ev.Code != 0x08 {
		t.Fatalf("code = 0x%02x, want 0x08", ev.Code)
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	m := NewCommandManager(testLogger())
	ft := &fakeTransport{failures: 2}
	if err := m.Send(ft, []byte{0x01}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := ft.writeCount(); got != 3 {
		t.Fatalf("writes = %d, want 3", got)
	}
}

func TestSendGivesUpAfterRetries(t *testing.T) {
	m := NewCommandManager(testLogger())
	ft := &fakeTransport{failures: 99, err: errors.New("gatt busy")}
	err := m.Send(ft, []byte{0x01})
	if err == nil {
		t.Fatal("Send succeeded, want error")
	}
	if !errors.Is(err, ft.err) {
		t.Fatalf("error %v does not wrap the write error", err)
	}
	if got := ft.writeCount(); got != 3 {
		t.Fatalf("writes = %d, want 3", got)
	}
}

func TestQueueRequiresStart(t *testing.T) {
	m := NewCommandManager(testLogger())
	if m.Queue(&fakeTransport{}, []byte{0x01}) {
		t.Fatal("Queue accepted a command before Start")
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()
	if !m.Queue(&fakeTransport{}, []byte{0x01}) {
		t.Fatal("Queue rejected a command after Start")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m := NewCommandManager(testLogger())
	m.Stop()
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()
	m.Stop()
}

func TestSendHeartbeatWritesFrame(t *testing.T) {
	m := NewCommandManager(testLogger())
	ft := &fakeTransport{}
	if err := m.SendHeartbeat(ft, 7); err != nil {
		t.Fatalf("SendHeartbeat: %v", err)
	}
	if len(ft.writes) != 1 || !bytes.Equal(ft.writes[0], HeartbeatFrame(7)) {
		t.Fatalf("wrote % x, want % x", ft.writes, HeartbeatFrame(7))
	}
}
