// Package config loads the optional psplink configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/psplink/internal/device"
	"github.com/bamsammich/psplink/internal/engine"
	"github.com/bamsammich/psplink/internal/filter"
)

// Config represents the optional psplink configuration file. Unset keys
// stay nil so Resolve can tell them apart from explicit zero values.
type Config struct {
	Device   DeviceConfig   `toml:"device"`
	Transfer TransferConfig `toml:"transfer"`
}

// DeviceConfig holds link and protocol settings.
type DeviceConfig struct {
	VendorID      *string `toml:"vendor_id"`
	ProductID     *string `toml:"product_id"`
	Timeout       *string `toml:"timeout"`
	Attempts      *int    `toml:"attempts"`
	RetryDelay    *string `toml:"retry_delay"`
	ISOPath       *string `toml:"iso_path"`
	AutoReconnect *bool   `toml:"auto_reconnect"`
	ControlAdmin  *bool   `toml:"control_admin"`
}

// TransferConfig holds engine settings.
type TransferConfig struct {
	ChunkSize    *string `toml:"chunk_size"`
	RetryCount   *int    `toml:"retry_count"`
	RetryDelay   *string `toml:"retry_delay"`
	Verify       *bool   `toml:"verify"`
	Checksum     *string `toml:"checksum"`
	BWLimit      *string `toml:"bwlimit"`
	CancelPolicy *string `toml:"cancel_policy"`
	// Checkpoint is the resume database path, or "off".
	Checkpoint *string `toml:"checkpoint"`
}

// Settings are the effective component configs after merging the file
// onto the defaults.
type Settings struct {
	Device   device.Config
	Transfer engine.Config
	// CheckpointPath is empty when checkpoints are disabled.
	CheckpointPath string
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "psplink", "config.toml")
}

// Load reads the config file from the XDG path. A missing file yields a
// zero Config and no error.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config and no error.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %s", path, undec[0])
	}
	return cfg, nil
}

// Resolve merges c onto the package defaults.
//
//nolint:gocyclo // one branch per key
func (c Config) Resolve() (Settings, error) {
	s := Settings{
		Device:         device.DefaultConfig(),
		Transfer:       engine.DefaultConfig(),
		CheckpointPath: engine.DefaultCheckpointPath(),
	}
	d, t := c.Device, c.Transfer
	var err error

	if d.VendorID != nil {
		if s.Device.USB.VendorID, err = ParseID(*d.VendorID); err != nil {
			return s, fmt.Errorf("device.vendor_id: %w", err)
		}
	}
	if d.ProductID != nil {
		if s.Device.USB.ProductID, err = ParseID(*d.ProductID); err != nil {
			return s, fmt.Errorf("device.product_id: %w", err)
		}
	}
	if d.Timeout != nil {
		if s.Device.USB.Timeout, err = parseDuration(*d.Timeout); err != nil {
			return s, fmt.Errorf("device.timeout: %w", err)
		}
		s.Device.Proto.Timeout = s.Device.USB.Timeout
	}
	if d.Attempts != nil {
		if *d.Attempts < 1 {
			return s, fmt.Errorf("device.attempts: must be at least 1")
		}
		s.Device.Proto.Attempts = *d.Attempts
	}
	if d.RetryDelay != nil {
		if s.Device.Proto.RetryDelay, err = parseDuration(*d.RetryDelay); err != nil {
			return s, fmt.Errorf("device.retry_delay: %w", err)
		}
	}
	if d.ISOPath != nil {
		s.Device.ISOPath = *d.ISOPath
	}
	if d.AutoReconnect != nil {
		s.Device.AutoReconnect = *d.AutoReconnect
	}
	if d.ControlAdmin != nil {
		s.Device.Proto.ControlAdmin = *d.ControlAdmin
	}

	if t.ChunkSize != nil {
		n, err := filter.ParseSize(*t.ChunkSize)
		if err != nil || n <= 0 {
			return s, fmt.Errorf("transfer.chunk_size: invalid %q", *t.ChunkSize)
		}
		s.Transfer.ChunkSize = int(n)
	}
	if t.RetryCount != nil {
		if *t.RetryCount < 1 {
			return s, fmt.Errorf("transfer.retry_count: must be at least 1")
		}
		s.Transfer.RetryCount = *t.RetryCount
	}
	if t.RetryDelay != nil {
		if s.Transfer.RetryDelay, err = parseDuration(*t.RetryDelay); err != nil {
			return s, fmt.Errorf("transfer.retry_delay: %w", err)
		}
	}
	if t.Verify != nil {
		s.Transfer.Verify = *t.Verify
	}
	if t.Checksum != nil {
		if s.Transfer.Checksum, err = engine.ParseAlgorithm(*t.Checksum); err != nil {
			return s, fmt.Errorf("transfer.checksum: %w", err)
		}
	}
	if t.BWLimit != nil {
		if s.Transfer.BWLimit, err = filter.ParseSize(*t.BWLimit); err != nil {
			return s, fmt.Errorf("transfer.bwlimit: %w", err)
		}
	}
	if t.CancelPolicy != nil {
		if s.Transfer.CancelPolicy, err = engine.ParseCancelPolicy(*t.CancelPolicy); err != nil {
			return s, fmt.Errorf("transfer.cancel_policy: %w", err)
		}
	}
	if t.Checkpoint != nil {
		switch v := strings.TrimSpace(*t.Checkpoint); strings.ToLower(v) {
		case "off", "false", "none":
			s.CheckpointPath = ""
		case "":
		default:
			s.CheckpointPath = v
		}
	}
	return s, nil
}

// ParseID parses a USB vendor or product ID such as "0x054C" or "460".
func ParseID(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB id %q", s)
	}
	return uint16(n), nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
