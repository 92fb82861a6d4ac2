// Package config loads the TOML configuration for the forge runtime.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// DefaultCodeCapacity is the size of the executable code region when no
// configuration overrides it.
const DefaultCodeCapacity = 1 << 20

// Config is the top-level configuration.
type Config struct {
	Code CodeConfig `toml:"code"`
	Log  LogConfig  `toml:"log"`
}

// CodeConfig configures the executable code region.
type CodeConfig struct {
	// Capacity is the fixed size of the code region in bytes,
	// established once at startup.
	Capacity int `toml:"capacity"`
	// Trace enables disassembly logging of every buffer write.
	Trace bool `toml:"trace"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Code: CodeConfig{Capacity: DefaultCodeCapacity},
	}
}

// Load reads a TOML configuration file. Absent fields keep their
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.Code.Capacity <= 0 {
		return fmt.Errorf("code.capacity must be positive, got %d", c.Code.Capacity)
	}
	return nil
}
