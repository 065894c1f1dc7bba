package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/glasskit/lenslink/internal/bluetooth"
)

// DefaultFile is the config filename used when none is given.
const DefaultFile = "lenslink.json"

// Config holds persisted settings, including the last-known address of each
// lens unit. Durations are stored as seconds so the file stays hand-editable.
type Config struct {
	path string

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file,omitempty"`

	// Connection
	HeartbeatIntervalSec float64 `json:"heartbeat_interval"`
	ReconnectAttempts    int     `json:"reconnect_attempts"`
	ReconnectDelaySec    float64 `json:"reconnect_delay"`
	ConnectTimeoutSec    float64 `json:"connection_timeout"`
	ScanTimeoutSec       float64 `json:"scan_timeout"`

	// Device identity. Clear the addresses to force a rescan.
	LeftAddress  string `json:"left_address,omitempty"`
	RightAddress string `json:"right_address,omitempty"`
	LeftName     string `json:"left_name,omitempty"`
	RightName    string `json:"right_name,omitempty"`
	LeftPaired   bool   `json:"left_paired"`
	RightPaired  bool   `json:"right_paired"`
}

// Default returns a Config with stock settings, bound to path.
func Default(path string) *Config {
	return &Config{
		path:                 path,
		LogLevel:             "info",
		HeartbeatIntervalSec: 8,
		ReconnectAttempts:    3,
		ReconnectDelaySec:    1,
		ConnectTimeoutSec:    20,
		ScanTimeoutSec:       15,
	}
}

// Load reads the config at path, creating it with defaults when absent.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default(path)
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default(path)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Save writes the config back to its file.
func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func (c *Config) HeartbeatInterval() time.Duration {
	return secs(c.HeartbeatIntervalSec)
}

func (c *Config) ReconnectDelay() time.Duration {
	return secs(c.ReconnectDelaySec)
}

func (c *Config) ConnectTimeout() time.Duration {
	return secs(c.ConnectTimeoutSec)
}

func (c *Config) ScanTimeout() time.Duration {
	return secs(c.ScanTimeoutSec)
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Address returns the stored address for a side, or "" when unknown.
func (c *Config) Address(side bluetooth.Side) string {
	if side == bluetooth.Right {
		return c.RightAddress
	}
	return c.LeftAddress
}

// Name returns the stored display name for a side.
func (c *Config) Name(side bluetooth.Side) string {
	if side == bluetooth.Right {
		return c.RightName
	}
	return c.LeftName
}

// SetDevice records the address and name for a side.
func (c *Config) SetDevice(side bluetooth.Side, address, name string) {
	if side == bluetooth.Right {
		c.RightAddress, c.RightName = address, name
	} else {
		c.LeftAddress, c.LeftName = address, name
	}
}

// BothKnown reports whether both sides have a stored address.
func (c *Config) BothKnown() bool {
	return c.LeftAddress != "" && c.RightAddress != ""
}

// ClearAddresses wipes both stored addresses and returns a restore function
// that puts them back, for when a fresh scan comes up empty.
func (c *Config) ClearAddresses() (restore func()) {
	left, right := c.LeftAddress, c.RightAddress
	c.LeftAddress, c.RightAddress = "", ""
	return func() {
		c.LeftAddress, c.RightAddress = left, right
	}
}

// SetPaired records host-level pairing state for a side.
func (c *Config) SetPaired(side bluetooth.Side, paired bool) {
	if side == bluetooth.Right {
		c.RightPaired = paired
	} else {
		c.LeftPaired = paired
	}
}

// Unpair forgets both devices entirely.
func (c *Config) Unpair() {
	c.LeftAddress, c.RightAddress = "", ""
	c.LeftName, c.RightName = "", ""
	c.LeftPaired, c.RightPaired = false, false
}

var _ bluetooth.AddressStore = (*Config)(nil)
