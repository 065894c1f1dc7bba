package link

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/glasskit/lenslink/internal/bluetooth"
	"github.com/glasskit/lenslink/internal/config"
	"github.com/glasskit/lenslink/internal/protocol"
)

// Options wires the coordinator's collaborators. Dialer, Scanner, Enumerator
// and Pairer are required; Commands, Sink and Log have defaults.
type Options struct {
	Config     *config.Config
	Dialer     bluetooth.Dialer
	Scanner    bluetooth.Scanner
	Enumerator bluetooth.Enumerator
	Pairer     bluetooth.PairingVerifier
	Commands   CommandLayer
	Sink       NotificationSink // optional upstream consumer of inbound frames
	Log        *logrus.Logger

	// Test hooks; zero values mean production defaults.
	QualityInterval time.Duration
	VerifyBackoff   time.Duration
}

type sideQuality struct {
	errors    int
	lastError string
	rssi      *int16
}

// Coordinator drives both sides as one logical connection: it owns the global
// state machine, runs the layered connection strategies, and supervises the
// keep-alive and liveness monitors.
type Coordinator struct {
	cfg       *config.Config
	dialer    bluetooth.Dialer
	pairer    bluetooth.PairingVerifier
	cmd       CommandLayer
	sink      NotificationSink
	discovery *bluetooth.Discovery
	log       *logrus.Logger

	verifyBackoff time.Duration

	shuttingDown atomic.Bool

	mu            sync.Mutex
	state         State
	sessions      map[bluetooth.Side]*Session
	quality       map[bluetooth.Side]*sideQuality
	heartbeatSeen map[bluetooth.Side]time.Time
	silent        bool

	hb *HeartbeatMonitor
	qm *QualityMonitor
}

func New(opts Options) *Coordinator {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Commands == nil {
		opts.Commands = protocol.NewCommandManager(opts.Log)
	}

	c := &Coordinator{
		cfg:           opts.Config,
		dialer:        opts.Dialer,
		pairer:        opts.Pairer,
		cmd:           opts.Commands,
		sink:          opts.Sink,
		log:           opts.Log,
		verifyBackoff: opts.VerifyBackoff,
		state:         StateDisconnected,
		sessions:      make(map[bluetooth.Side]*Session),
		quality: map[bluetooth.Side]*sideQuality{
			bluetooth.Left:  {},
			bluetooth.Right: {},
		},
		heartbeatSeen: make(map[bluetooth.Side]time.Time),
	}
	c.discovery = bluetooth.NewDiscovery(opts.Config, opts.Enumerator, opts.Scanner, opts.Config.ScanTimeout(), opts.Log)
	c.hb = NewHeartbeatMonitor(c.cmd, c.transportOf, opts.Config.HeartbeatInterval(), c.recordHeartbeatError, opts.Log)
	c.qm = NewQualityMonitor(c.transportOf, opts.QualityInterval, c.recordDeadLink, opts.Log)
	return c
}

// State returns the current global connection state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState is the only writer of the global state.
func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) session(side bluetooth.Side) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[side]
}

// transportOf hands the monitors the current handle for a side, nil when the
// side is down.
func (c *Coordinator) transportOf(side bluetooth.Side) bluetooth.Transport {
	s := c.session(side)
	if s == nil {
		return nil
	}
	return s.Transport()
}

// resetSessions replaces both sessions. A fresh session per connect round
// keeps stale disconnect callbacks from touching live state.
func (c *Coordinator) resetSessions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, side := range bluetooth.Sides {
		c.sessions[side] = NewSession(side, SessionOpts{
			Dialer:         c.dialer,
			Store:          c.cfg,
			Attempts:       c.cfg.ReconnectAttempts,
			RetryDelay:     c.cfg.ReconnectDelay(),
			ConnectTimeout: c.cfg.ConnectTimeout(),
			Sink:           c,
			OnDrop:         c.recordDrop,
			ShuttingDown:   &c.shuttingDown,
			Log:            c.log,
			VerifyBackoff:  c.verifyBackoff,
		})
	}
}

// ConnectBoth runs the layered connection chain. Success requires both sides;
// anything else tears down whatever did connect and reports which side failed.
func (c *Coordinator) ConnectBoth() error {
	c.shuttingDown.Store(false)
	c.setState(StateConnecting)
	c.resetSessions()

	var leftOK, rightOK bool

	// Strategy 1: both addresses known, dial directly.
	if c.cfg.BothKnown() {
		c.log.Infof("connecting with saved addresses (left %s, right %s)",
			c.cfg.Address(bluetooth.Left), c.cfg.Address(bluetooth.Right))
		leftOK = c.session(bluetooth.Left).Connect()
		rightOK = c.session(bluetooth.Right).Connect()
	}

	// Strategy 2: both failed; re-verify host pairing and retry.
	if !leftOK && !rightOK {
		c.log.Info("saved addresses failed or absent, verifying pairing")
		if c.pairer != nil && c.pairer.VerifyPairing(c.cfg.Address(bluetooth.Left), c.cfg.Address(bluetooth.Right)) {
			leftOK = c.session(bluetooth.Left).Connect()
			rightOK = c.session(bluetooth.Right).Connect()
		}
	}

	// Strategy 3: still nothing; forget the addresses and rediscover. A
	// failed scan restores them so a transient radio problem loses nothing.
	if !leftOK && !rightOK {
		c.log.Info("clearing saved addresses and rescanning")
		restore := c.cfg.ClearAddresses()
		_ = c.cfg.Save()
		if c.runDiscovery() {
			leftOK = c.session(bluetooth.Left).Connect()
			rightOK = c.session(bluetooth.Right).Connect()
		} else {
			restore()
			_ = c.cfg.Save()
		}
	}

	// Strategy 4: exactly one side up. Never terminal: drop the good side,
	// forget both addresses and rescan from scratch. Stale host bonds make
	// a targeted reconnect of just the bad side unreliable.
	if leftOK != rightOK {
		c.log.Info("asymmetric connection, escalating to a full rescan")
		c.cfg.ClearAddresses()
		_ = c.cfg.Save()
		if leftOK {
			c.session(bluetooth.Left).Close()
		} else {
			c.session(bluetooth.Right).Close()
		}
		leftOK, rightOK = false, false
		c.resetSessions()
		if c.runDiscovery() {
			leftOK = c.session(bluetooth.Left).Connect()
			rightOK = c.session(bluetooth.Right).Connect()
		}
	}

	if leftOK && rightOK {
		if err := c.cmd.Start(); err != nil {
			c.log.Errorf("command layer failed to start: %v", err)
		}
		c.hb.Start()
		c.qm.Start()
		c.setState(StateConnected)
		c.log.Info("both units connected")
		return nil
	}

	// Partial connections are torn down best-effort; shutdown never blocks
	// on a close error.
	c.session(bluetooth.Left).Close()
	c.session(bluetooth.Right).Close()
	c.setState(StateDisconnected)

	var err error
	switch {
	case leftOK && !rightOK:
		err = errors.New("right unit failed to connect")
	case rightOK && !leftOK:
		err = errors.New("left unit failed to connect")
	default:
		err = errors.New("both units failed to connect")
	}
	c.log.Errorf("connection failed: %v", err)
	c.log.Info("check both units are powered, charged and in radio range, then retry")
	return err
}

// runDiscovery flips the state machine through Scanning for the duration of
// a scan.
func (c *Coordinator) runDiscovery() bool {
	c.setState(StateScanning)
	ok := c.discovery.Scan()
	if ok {
		c.captureRSSI()
	}
	c.setState(StateConnecting)
	return ok
}

// Scan runs discovery alone, outside a connect round.
func (c *Coordinator) Scan() bool {
	c.setState(StateScanning)
	ok := c.discovery.Scan()
	if ok {
		c.captureRSSI()
		c.log.Infof("resolved left %s, right %s",
			c.cfg.Address(bluetooth.Left), c.cfg.Address(bluetooth.Right))
	}
	c.setState(StateDisconnected)
	return ok
}

// captureRSSI copies the signal strengths heard in the last scan into the
// quality map. Sides resolved from host bonds keep their previous value.
func (c *Coordinator) captureRSSI() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, side := range bluetooth.Sides {
		if v, ok := c.discovery.RSSI(side); ok {
			r := v
			c.quality[side].rssi = &r
		}
	}
}

// DisconnectBoth tears everything down: reconnect callbacks are suppressed,
// the monitors are cancelled and awaited, the command layer stopped, then
// both transports closed. Calling it while already disconnected is a no-op.
func (c *Coordinator) DisconnectBoth() {
	c.shuttingDown.Store(true)

	c.qm.Stop()
	c.hb.Stop()
	c.cmd.Stop()

	for _, side := range bluetooth.Sides {
		if s := c.session(side); s != nil {
			s.Close()
		}
	}
	c.setState(StateDisconnected)
}

// Reconnect is a full teardown followed by a fresh connect round. A failure
// is reported, not retried here.
func (c *Coordinator) Reconnect() error {
	c.DisconnectBoth()
	return c.ConnectBoth()
}

// SetSilentMode toggles the flag and pushes the mode command to any side
// that is up.
func (c *Coordinator) SetSilentMode(on bool) {
	c.mu.Lock()
	c.silent = on
	c.mu.Unlock()
	c.log.Infof("silent mode %v", on)

	frame := protocol.SilentModeFrame(on)
	for _, side := range bluetooth.Sides {
		if t := c.transportOf(side); t != nil {
			if err := c.cmd.Send(t, frame); err != nil {
				c.log.Warnf("silent mode command to %s failed: %v", side, err)
			}
		}
	}
}

// HandleNotification classifies inbound frames, tracks keep-alive responses
// and forwards everything to the upstream sink.
func (c *Coordinator) HandleNotification(side bluetooth.Side, data []byte) {
	ev := protocol.Classify(data)
	switch ev.Kind {
	case protocol.EventHeartbeat:
		c.mu.Lock()
		c.heartbeatSeen[side] = time.Now()
		c.mu.Unlock()
	case protocol.EventInteraction, protocol.EventPhysicalState, protocol.EventBattery:
		c.log.Infof("%s unit: %s", side, ev.Label)
	default:
		c.log.Debugf("%s unit: %s", side, ev.Label)
	}
	if c.sink != nil {
		c.sink.HandleNotification(side, data)
	}
}

func (c *Coordinator) recordDrop(side bluetooth.Side, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.quality[side]
	q.errors++
	q.lastError = err.Error()
}

func (c *Coordinator) recordDeadLink(side bluetooth.Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.quality[side]
	q.errors++
	q.lastError = side.String() + " unit link down"
}

func (c *Coordinator) recordHeartbeatError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.quality {
		q.lastError = "heartbeat failed: " + err.Error()
	}
}

// Status returns a snapshot for presentation layers.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:         c.state,
		SilentMode:    c.silent,
		HeartbeatSent: c.hb.LastSent(),
	}
	for _, side := range bluetooth.Sides {
		q := c.quality[side]
		ss := SideStatus{
			Errors:        q.errors,
			LastError:     q.lastError,
			RSSI:          q.rssi,
			LastHeartbeat: c.heartbeatSeen[side],
		}
		if s := c.sessions[side]; s != nil {
			ss.Connected = s.Connected()
			if ss.LastError == "" && s.LastError() != nil {
				ss.LastError = s.LastError().Error()
			}
		}
		if side == bluetooth.Left {
			st.Left = ss
		} else {
			st.Right = ss
		}
	}
	return st
}
