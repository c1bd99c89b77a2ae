// Package config is the client's bootstrap configuration layer: the
// handful of settings needed before any account is opened (host, port,
// storage directory, timeouts), loaded from a TOML file the way
// xendarboh-katzenpost's own bootstrap config is loaded.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Bootstrap is the top-level TOML document.
type Bootstrap struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	StorageDir string `toml:"storage_dir"`

	Timeouts TimeoutConfig `toml:"timeouts"`
}

// TimeoutConfig carries the protocol's timing constants, expressed in
// milliseconds in the file, converted to
// time.Duration for everything downstream.
type TimeoutConfig struct {
	RequestMS       int `toml:"request_ms"`
	HeartbeatMS     int `toml:"heartbeat_interval_ms"`
	HeartbeatTTLMS  int `toml:"heartbeat_timeout_ms"`
	ReconnectMS     int `toml:"reconnect_interval_ms"`
}

// Defaults returns the protocol's standard timing constants.
func Defaults() *Bootstrap {
	return &Bootstrap{
		Host:       "127.0.0.1",
		Port:       5557,
		StorageDir: ".",
		Timeouts: TimeoutConfig{
			RequestMS:      15000,
			HeartbeatMS:    20000,
			HeartbeatTTLMS: 20000,
			ReconnectMS:    15000,
		},
	}
}

// Load reads and parses a TOML bootstrap file, filling in any field left
// unset by the file from Defaults.
func Load(path string) (*Bootstrap, error) {
	var file Bootstrap
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	if file.Host == "" {
		return nil, fmt.Errorf("config: host is required")
	}

	cfg := Defaults()
	cfg.Host = file.Host
	if file.Port != 0 {
		cfg.Port = file.Port
	}
	if file.StorageDir != "" {
		cfg.StorageDir = file.StorageDir
	}
	if file.Timeouts.RequestMS != 0 {
		cfg.Timeouts.RequestMS = file.Timeouts.RequestMS
	}
	if file.Timeouts.HeartbeatMS != 0 {
		cfg.Timeouts.HeartbeatMS = file.Timeouts.HeartbeatMS
	}
	if file.Timeouts.HeartbeatTTLMS != 0 {
		cfg.Timeouts.HeartbeatTTLMS = file.Timeouts.HeartbeatTTLMS
	}
	if file.Timeouts.ReconnectMS != 0 {
		cfg.Timeouts.ReconnectMS = file.Timeouts.ReconnectMS
	}
	return cfg, nil
}

func (t TimeoutConfig) Request() time.Duration {
	return time.Duration(t.RequestMS) * time.Millisecond
}

func (t TimeoutConfig) HeartbeatInterval() time.Duration {
	return time.Duration(t.HeartbeatMS) * time.Millisecond
}

func (t TimeoutConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(t.HeartbeatTTLMS) * time.Millisecond
}

func (t TimeoutConfig) ReconnectInterval() time.Duration {
	return time.Duration(t.ReconnectMS) * time.Millisecond
}

// Addr returns the host:port dial target.
func (b *Bootstrap) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}
