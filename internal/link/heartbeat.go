package link

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/glasskit/lenslink/internal/bluetooth"
)

// CommandLayer is the outbound command collaborator: lifecycle hooks plus the
// primitives the monitors and coordinator send through.
type CommandLayer interface {
	Start() error
	Stop()
	Send(t bluetooth.Transport, frame []byte) error
	SendHeartbeat(t bluetooth.Transport, seq byte) error
}

// HeartbeatMonitor sends the keep-alive frame to both sides on a fixed
// interval. One shared 8-bit counter is incremented once per round and the
// same value goes to both sides; silent link death shows up as send errors.
type HeartbeatMonitor struct {
	cmd      CommandLayer
	handle   func(bluetooth.Side) bluetooth.Transport
	interval time.Duration
	onError  func(error)
	log      *logrus.Logger

	// Gap between the left and right sends, and the backoff after a send
	// failure. Defaults match the device firmware's expectations; tests
	// compress them.
	Gap     time.Duration
	Backoff time.Duration

	mu       sync.Mutex
	seq      byte
	lastSent time.Time
	done     chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func NewHeartbeatMonitor(cmd CommandLayer, handle func(bluetooth.Side) bluetooth.Transport, interval time.Duration, onError func(error), log *logrus.Logger) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		cmd:      cmd,
		handle:   handle,
		interval: interval,
		onError:  onError,
		log:      log,
		Gap:      200 * time.Millisecond,
		Backoff:  2 * time.Second,
	}
}

// Start launches the keep-alive loop.
func (m *HeartbeatMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})
	m.wg.Add(1)
	go m.loop(m.done)
}

// Stop cancels the loop and waits for it to exit.
func (m *HeartbeatMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *HeartbeatMonitor) loop(done chan struct{}) {
	defer m.wg.Done()
	for {
		next := m.round(done)
		select {
		case <-done:
			return
		case <-time.After(next):
		}
	}
}

// round sends one heartbeat to each side and returns how long to sleep before
// the next round.
func (m *HeartbeatMonitor) round(done chan struct{}) time.Duration {
	left := m.handle(bluetooth.Left)
	right := m.handle(bluetooth.Right)
	if left == nil || right == nil {
		return m.interval
	}

	seq := m.nextSeq()

	if err := m.cmd.SendHeartbeat(left, seq); err != nil {
		m.fail(err)
		return m.Backoff
	}
	m.log.Debugf("heartbeat %d sent to left", seq)

	select {
	case <-done:
		return m.interval
	case <-time.After(m.Gap):
	}

	if err := m.cmd.SendHeartbeat(right, seq); err != nil {
		m.fail(err)
		return m.Backoff
	}
	m.log.Debugf("heartbeat %d sent to right", seq)

	m.mu.Lock()
	m.lastSent = time.Now()
	m.mu.Unlock()
	return m.interval
}

func (m *HeartbeatMonitor) nextSeq() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++ // wraps at 256 by byte arithmetic
	return m.seq
}

func (m *HeartbeatMonitor) fail(err error) {
	m.log.Errorf("heartbeat failed: %v", err)
	if m.onError != nil {
		m.onError(err)
	}
}

// Seq returns the counter value of the most recent round.
func (m *HeartbeatMonitor) Seq() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// LastSent returns when the last fully successful round completed.
func (m *HeartbeatMonitor) LastSent() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSent
}
