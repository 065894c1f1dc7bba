// Package link owns the connection lifecycle for the two lens units: the
// per-side session, the coordinator that drives both, and the keep-alive and
// liveness monitors.
package link

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/glasskit/lenslink/internal/bluetooth"
)

// ErrAddressMissing means a side has no resolved address; connecting fails
// fast without retrying.
var ErrAddressMissing = errors.New("no address configured for side")

const (
	// Fallback dial timeout when the first open fails with a not-found
	// class error. Deliberately longer than the configured timeout.
	notFoundFallbackTimeout = 15 * time.Second

	verifyAttempts = 3
)

// SessionState is the lifecycle of one side's link.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionConnected
	SessionClosed
)

// NotificationSink receives inbound frames from a verified side.
type NotificationSink interface {
	HandleNotification(side bluetooth.Side, data []byte)
}

// SessionOpts wires a session's collaborators.
type SessionOpts struct {
	Dialer         bluetooth.Dialer
	Store          bluetooth.AddressStore
	Attempts       int
	RetryDelay     time.Duration
	ConnectTimeout time.Duration
	Sink           NotificationSink
	OnDrop         func(side bluetooth.Side, err error)
	ShuttingDown   *atomic.Bool
	Log            *logrus.Logger

	// VerifyBackoff spaces the service lookups; tests compress it.
	VerifyBackoff time.Duration
}

// Session owns the connection lifecycle of one side. Connect attempts for the
// same side are strictly sequential; the transport handle is replaced, never
// mutated, on reconnect.
type Session struct {
	side bluetooth.Side
	opts SessionOpts
	log  *logrus.Entry

	connMu sync.Mutex // serializes connect attempts, incl. auto-reconnect

	mu        sync.Mutex
	transport bluetooth.Transport
	state     SessionState
	lastErr   error
	retries   int // failed attempts in the most recent Connect
	closed    bool
}

func NewSession(side bluetooth.Side, opts SessionOpts) *Session {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.ShuttingDown == nil {
		opts.ShuttingDown = &atomic.Bool{}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.VerifyBackoff <= 0 {
		opts.VerifyBackoff = time.Second
	}
	return &Session{
		side: side,
		opts: opts,
		log:  opts.Log.WithField("side", side.String()),
	}
}

// Connect runs the bounded retry loop for this side. It returns true once a
// verified transport is up and notifications are flowing.
func (s *Session) Connect() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	address := s.opts.Store.Address(s.side)
	if address == "" {
		s.log.Warn("no address configured, skipping")
		s.fail(ErrAddressMissing)
		return false
	}

	s.mu.Lock()
	s.retries = 0
	s.closed = false
	s.mu.Unlock()

	return s.run(address)
}

// reconnect is the disconnect-callback path into the same retry loop. Unlike
// Connect it never clears the closed flag: a Close that lands before or
// during the loop stays final.
func (s *Session) reconnect() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.isClosed() {
		return false
	}
	address := s.opts.Store.Address(s.side)
	if address == "" {
		s.fail(ErrAddressMissing)
		return false
	}

	s.mu.Lock()
	s.retries = 0
	s.mu.Unlock()

	return s.run(address)
}

func (s *Session) run(address string) bool {
	for attempt := 0; attempt < s.opts.Attempts; attempt++ {
		if s.opts.ShuttingDown.Load() || s.isClosed() {
			return false
		}
		if attempt > 0 {
			time.Sleep(s.opts.RetryDelay)
		}
		s.log.Infof("connecting (attempt %d)", attempt+1)
		if s.attempt(address) {
			s.log.Info("connected and verified")
			return true
		}
		s.mu.Lock()
		s.retries++
		s.mu.Unlock()
	}
	s.log.Warnf("failed to connect after %d attempts", s.opts.Attempts)
	return false
}

// attempt makes one dial + verify + subscribe pass.
func (s *Session) attempt(address string) bool {
	s.setState(SessionConnecting)

	onDisconnect := func() { s.handleDisconnect() }

	t, err := s.opts.Dialer.Dial(address, s.opts.ConnectTimeout, onDisconnect)
	if err != nil {
		if failureClass(err) == "not-found" {
			s.log.Info("not found on first open, retrying with a longer timeout")
			t, err = s.opts.Dialer.Dial(address, notFoundFallbackTimeout, onDisconnect)
		}
	}
	if err != nil {
		// Classification is diagnostics only; every class retries the same.
		switch failureClass(err) {
		case "not-found":
			s.log.Warnf("unit not found (address %s)", address)
		case "timeout":
			s.log.Warn("connection timed out")
		case "in-use":
			s.log.Warn("unit already claimed by another process")
		default:
			s.log.Warnf("connection error: %v", err)
		}
		s.fail(err)
		return false
	}

	if err := s.verify(t); err != nil {
		s.log.Warnf("connected but verification failed: %v", err)
		_ = t.Disconnect()
		s.fail(err)
		return false
	}

	if err := t.StartNotifications(func(p []byte) {
		if s.opts.Sink != nil {
			s.opts.Sink.HandleNotification(s.side, p)
		}
	}); err != nil {
		s.log.Warnf("could not start notifications: %v", err)
		_ = t.Disconnect()
		s.fail(err)
		return false
	}

	s.mu.Lock()
	if s.closed {
		// Close won the race while this attempt was in flight; the fresh
		// transport must not outlive the session.
		s.mu.Unlock()
		_ = t.Disconnect()
		return false
	}
	s.transport = t
	s.state = SessionConnected
	s.mu.Unlock()
	return true
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// verify confirms the serial tunnel service and both characteristics are
// present, retrying while the service table populates.
func (s *Session) verify(t bluetooth.Transport) error {
	var err error
	for i := 0; i < verifyAttempts; i++ {
		if err = t.DiscoverSerial(); err == nil {
			return nil
		}
		if i < verifyAttempts-1 {
			s.log.Debugf("verification attempt %d failed: %v", i+1, err)
			time.Sleep(s.opts.VerifyBackoff)
		}
	}
	return fmt.Errorf("verification failed: %w", err)
}

// handleDisconnect runs when the transport layer reports the link dropped.
// During deliberate shutdown it does nothing; otherwise it records the error
// and runs the same bounded retry loop, scoped to this side only.
func (s *Session) handleDisconnect() {
	if s.opts.ShuttingDown.Load() {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.transport = nil
	s.state = SessionIdle
	s.mu.Unlock()

	err := fmt.Errorf("%s unit disconnected", s.side)
	s.log.Warn(err.Error())
	if s.opts.OnDrop != nil {
		s.opts.OnDrop(s.side, err)
	}

	if s.reconnect() {
		s.log.Info("reconnected")
	}
}

// Close tears the session down deliberately. The disconnect callback is
// suppressed and the handle released. Safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.state = SessionClosed
	s.closed = true
	s.mu.Unlock()

	if t != nil {
		_ = t.Disconnect()
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.state = SessionIdle
	s.mu.Unlock()
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Connected reports whether this side holds a verified, open transport.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SessionConnected && s.transport != nil && s.transport.Connected()
}

// Transport returns the current handle, or nil when not connected.
func (s *Session) Transport() bluetooth.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// LastError returns the most recent attempt failure.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Retries reports how many attempts failed in the most recent Connect.
func (s *Session) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// failureClass buckets a dial error for diagnostics. It never changes retry
// behavior.
func failureClass(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return "not-found"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "already connected") || strings.Contains(msg, "in use") || strings.Contains(msg, "busy"):
		return "in-use"
	default:
		return "other"
	}
}
