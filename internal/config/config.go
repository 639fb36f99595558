// Package config loads the TOML-format runtime configuration for a hazcat
// process: where the shared-memory segments live, what the default
// allocator looks like, and how long to wait on a wedged advisory lock
// before giving up.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nightduck/rmw-hazcat/internal/allocator"
)

// Config is the process-wide tunable surface. Everything here has a
// sensible zero-config default (see Default); a TOML file only needs to
// override what it cares about.
type Config struct {
	ShmDir string `toml:"shm_dir"`

	DefaultAllocatorSlotSize  uint32 `toml:"default_allocator_slot_size"`
	DefaultAllocatorSlotCount uint32 `toml:"default_allocator_slot_count"`

	LockWaitTimeout Duration `toml:"lock_wait_timeout"`

	MetricsListenAddr string `toml:"metrics_listen_addr"`

	MinSupportedVersion string `toml:"min_supported_version"`
}

// Duration wraps time.Duration so it can parse a TOML string like "5s"
// rather than a raw nanosecond integer.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler, which BurntSushi/toml
// consults for any field type it does not know natively.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration the core falls back to with no file
// present: /dev/shm for segments, the 4096x200 host ring allocator
// dimensions §9 calls out as hard-coded in the original, a 5 second lock
// wait, metrics off by default, and no minimum version gate.
func Default() Config {
	return Config{
		ShmDir:                    "/dev/shm",
		DefaultAllocatorSlotSize:  allocator.DefaultSlotSize,
		DefaultAllocatorSlotCount: allocator.DefaultSlotCount,
		LockWaitTimeout:           Duration{5 * time.Second},
		MetricsListenAddr:         "",
		MinSupportedVersion:       "",
	}
}

// Load reads and parses a TOML config file at path, starting from
// Default() so an incomplete file only overrides the fields it sets.
func Load(path string) (Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}
