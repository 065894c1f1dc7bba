package link

import (
	"sync"
	"testing"
	"time"

	"github.com/glasskit/lenslink/internal/bluetooth"
)

func TestQualityReportsDeadLink(t *testing.T) {
	left := &stubTransport{addr: leftAddr, up: true}
	right := &stubTransport{addr: rightAddr, up: false}

	var mu sync.Mutex
	dead := map[bluetooth.Side]int{}
	m := NewQualityMonitor(bothSides(left, right), time.Millisecond, func(side bluetooth.Side) {
		mu.Lock()
		dead[side]++
		mu.Unlock()
	}, testLogger())

	m.Start()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dead[bluetooth.Right] >= 2
	})
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if dead[bluetooth.Left] != 0 {
		t.Fatalf("healthy left side reported dead %d times", dead[bluetooth.Left])
	}
}

func TestQualityIgnoresMissingHandles(t *testing.T) {
	var mu sync.Mutex
	var calls int
	m := NewQualityMonitor(bothSides(nil, nil), time.Millisecond, func(bluetooth.Side) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, testLogger())

	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("onDead fired %d times with no handles", calls)
	}
}

func TestQualityStopIsPromptAndIdempotent(t *testing.T) {
	left := &stubTransport{addr: leftAddr, up: true}
	right := &stubTransport{addr: rightAddr, up: true}
	m := NewQualityMonitor(bothSides(left, right), time.Hour, nil, testLogger())

	m.Stop() // before Start: no-op
	m.Start()

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while the loop was sleeping")
	}
}
