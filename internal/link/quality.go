package link

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/glasskit/lenslink/internal/bluetooth"
)

// QualityMonitor polls link liveness for both sides. It is purely
// observational: a dead handle is logged and counted, never reconnected here
// (the session's disconnect callback owns recovery).
type QualityMonitor struct {
	handle   func(bluetooth.Side) bluetooth.Transport
	interval time.Duration
	onDead   func(side bluetooth.Side)
	log      *logrus.Logger

	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func NewQualityMonitor(handle func(bluetooth.Side) bluetooth.Transport, interval time.Duration, onDead func(bluetooth.Side), log *logrus.Logger) *QualityMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &QualityMonitor{handle: handle, interval: interval, onDead: onDead, log: log}
}

func (m *QualityMonitor) Start() {
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

// Stop cancels the loop and waits for it.
func (m *QualityMonitor) Stop() {
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

func (m *QualityMonitor) loop(done chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-done:
			return
		default:
		}

		for _, side := range bluetooth.Sides {
			// Cancellation between per-side checks keeps shutdown prompt.
			select {
			case <-done:
				return
			default:
			}
			t := m.handle(side)
			if t != nil && !t.Connected() {
				m.log.Warnf("%s unit link is down", side)
				if m.onDead != nil {
					m.onDead(side)
				}
			}
		}

		select {
		case <-done:
			return
		case <-time.After(m.interval):
		}
	}
}
