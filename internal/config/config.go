// Package config loads the boot configuration of a starry kernel.
package config

import (
	"fmt"
	"path"

	"github.com/BurntSushi/toml"

	"github.com/kmrgirish/starry/internal/limits"
)

// Config is the boot configuration.
type Config struct {
	// Image is the bbolt root image to load. Empty means an empty root.
	Image string `toml:"image"`
	// Cwd is the working directory of the first process.
	Cwd string `toml:"cwd"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// RlimitDefaults picks the starting limits: "linux" for the kernel's
	// initial values, "distro" for what a typical init leaves behind.
	RlimitDefaults string `toml:"rlimit_defaults"`
	// Rlimits overrides individual limits, keyed by name ("nofile",
	// "RLIMIT_STACK", ...).
	Rlimits map[string]Rlimit `toml:"rlimits"`
}

// Rlimit is a limit override. -1 means unlimited.
type Rlimit struct {
	Soft int64 `toml:"soft"`
	Hard int64 `toml:"hard"`
}

func rlimitValue(v int64) (uint64, error) {
	switch {
	case v == -1:
		return limits.Infinity, nil
	case v < 0:
		return 0, fmt.Errorf("negative value %d", v)
	}
	return uint64(v), nil
}

func (r Rlimit) limit() (limits.Limit, error) {
	soft, err := rlimitValue(r.Soft)
	if err != nil {
		return limits.Limit{}, fmt.Errorf("soft: %w", err)
	}
	hard, err := rlimitValue(r.Hard)
	if err != nil {
		return limits.Limit{}, fmt.Errorf("hard: %w", err)
	}
	if soft > hard {
		return limits.Limit{}, fmt.Errorf("soft limit %d exceeds hard limit %d", r.Soft, r.Hard)
	}
	return limits.Limit{Soft: soft, Hard: hard}, nil
}

// Default returns the configuration used without a config file.
func Default() *Config {
	return &Config{
		Cwd:            "/",
		LogLevel:       "info",
		LogFormat:      "pretty",
		RlimitDefaults: "linux",
	}
}

// Load reads a TOML config file. Keys missing from the file keep their
// Default values.
func Load(filename string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(filename, c)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", filename, err)
	}
	if err := c.check(md); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", filename, err)
	}
	return c, nil
}

// Decode parses TOML text, for tests and embedded configs.
func Decode(text string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(text, c)
	if err != nil {
		return nil, err
	}
	if err := c.check(md); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) check(md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %s", undecoded[0])
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if !path.IsAbs(c.Cwd) {
		return fmt.Errorf("cwd %q is not absolute", c.Cwd)
	}
	switch c.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	switch c.RlimitDefaults {
	case "linux", "distro":
	default:
		return fmt.Errorf("unknown rlimit_defaults %q", c.RlimitDefaults)
	}
	for name, r := range c.Rlimits {
		if _, err := limits.ParseKind(name); err != nil {
			return fmt.Errorf("rlimits: unknown resource %q", name)
		}
		if _, err := r.limit(); err != nil {
			return fmt.Errorf("rlimits.%s: %w", name, err)
		}
	}
	return nil
}

// Limits returns a fresh limit table with the configured defaults and
// overrides applied. It suits process.NewRegistry.
func (c *Config) Limits() *limits.Table {
	var t *limits.Table
	if c.RlimitDefaults == "distro" {
		t = limits.NewLinuxDistroTable()
	} else {
		t = limits.NewLinuxTable()
	}
	for name, r := range c.Rlimits {
		kind, err := limits.ParseKind(name)
		if err != nil {
			continue
		}
		l, err := r.limit()
		if err != nil {
			continue
		}
		t.SetUnchecked(kind, l)
	}
	return t
}
