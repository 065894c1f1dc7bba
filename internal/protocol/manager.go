package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/glasskit/lenslink/internal/bluetooth"
)

const (
	writeRetries  = 3
	writeRetryGap = 500 * time.Millisecond
)

type queued struct {
	transport bluetooth.Transport
	frame     []byte
}

// CommandManager is the command layer: it serializes all outbound writes so
// concurrent senders cannot interleave frames, and retries failed writes.
type CommandManager struct {
	log *logrus.Logger

	mu      sync.Mutex // serializes writes across Send and the queue worker
	queue   chan queued
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewCommandManager(log *logrus.Logger) *CommandManager {
	return &CommandManager{log: log}
}

// Start launches the background worker draining queued commands.
func (m *CommandManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	m.queue = make(chan queued, 64)
	m.done = make(chan struct{})
	m.started = true

	m.wg.Add(1)
	go m.drain()
	return nil
}

// Stop halts the worker and waits for it. Queued commands not yet written are
// dropped.
func (m *CommandManager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *CommandManager) drain() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case q := <-m.queue:
			if err := m.Send(q.transport, q.frame); err != nil {
				m.log.Warnf("queued command failed: %v", err)
			}
		}
	}
}

// Queue enqueues a command for asynchronous delivery. Returns false when the
// manager is stopped or the queue is full.
func (m *CommandManager) Queue(t bluetooth.Transport, frame []byte) bool {
	m.mu.Lock()
	started := m.started
	queue := m.queue
	m.mu.Unlock()
	if !started {
		return false
	}
	select {
	case queue <- queued{transport: t, frame: frame}:
		return true
	default:
		return false
	}
}

// Send writes a frame with bounded retries. Writes are serialized with all
// other senders.
func (m *CommandManager) Send(t bluetooth.Transport, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(writeRetryGap)
		}
		if err := t.Write(frame); err != nil {
			last = err
			m.log.Debugf("command write failed (attempt %d): %v", attempt+1, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("command write failed after %d attempts: %w", writeRetries, last)
}

// SendHeartbeat writes a keep-alive frame carrying seq to one side.
func (m *CommandManager) SendHeartbeat(t bluetooth.Transport, seq byte) error {
	return m.Send(t, HeartbeatFrame(seq))
}
