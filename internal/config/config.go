package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML schema. All values should be supplied via YAML;
// zero values fall back to the defaults documented next to each consumer.
type Config struct {
	Version     int         `yaml:"version"`
	General     General     `yaml:"general"`
	Network     Network     `yaml:"network"`
	Concurrency Concurrency `yaml:"concurrency"`
	Rate        Rate        `yaml:"rate"`
	Verify      Verify      `yaml:"verify"`
	Logging     Logging     `yaml:"logging"`
	Metrics     Metrics     `yaml:"metrics"`
}

type General struct {
	OutputDir string `yaml:"output_dir"`
	Lock      bool   `yaml:"lock"`
}

type Network struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

type Concurrency struct {
	Files int `yaml:"files"` // 0 => runtime.NumCPU()
	Split int `yaml:"split"`
}

type Rate struct {
	BytesPerSecond int64 `yaml:"bytes_per_second"` // 0 => unlimited
}

// Mode is the verification mode: auto|on|off.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeOn   Mode = "on"
	ModeOff  Mode = "off"
)

type Verify struct {
	Mode Mode `yaml:"mode"`
}

type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // human|json
}

type Metrics struct {
	PrometheusTextfile PromTextfile `yaml:"prometheus_textfile"`
}

type PromTextfile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads, parses, expands, and validates a YAML config file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	expanded, err := expandTilde(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	b = []byte(os.ExpandEnv(string(b)))
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.General.OutputDir, err = expandTilde(c.General.OutputDir); err != nil {
		return err
	}
	if c.Metrics.PrometheusTextfile.Path, err = expandTilde(c.Metrics.PrometheusTextfile.Path); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", c.Version)
	}
	if c.General.OutputDir == "" {
		return errors.New("general.output_dir is required")
	}
	if c.Concurrency.Split < 0 {
		return errors.New("concurrency.split must be >= 0")
	}
	switch c.Verify.Mode {
	case "", ModeAuto, ModeOn, ModeOff:
	default:
		return fmt.Errorf("verify.mode invalid: %s", c.Verify.Mode)
	}
	switch stringsLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %s", c.Logging.Level)
	}
	switch stringsLower(c.Logging.Format) {
	case "", "human", "json":
	default:
		return fmt.Errorf("logging.format invalid: %s", c.Logging.Format)
	}
	return nil
}

func expandTilde(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return h, nil
	}
	return filepath.Join(h, p[2:]), nil
}

func stringsLower(s string) string {
	b := []byte(s)
	for i := range b {
		if 'A' <= b[i] && b[i] <= 'Z' {
			b[i] = b[i] + 32
		}
	}
	return string(b)
}

// EffectiveFiles resolves the configured parallelism bound, defaulting to
// the logical CPU count when unset.
func (c *Config) EffectiveFiles(numCPU int) int {
	if c.Concurrency.Files > 0 {
		return c.Concurrency.Files
	}
	if numCPU > 0 {
		return numCPU
	}
	return 1
}

// EffectiveSplit resolves the configured per-file segment count, defaulting to 8.
func (c *Config) EffectiveSplit() int {
	if c.Concurrency.Split > 0 {
		return c.Concurrency.Split
	}
	return 8
}

// EffectiveTimeout resolves the HTTP connect (dial and TLS handshake)
// timeout, defaulting to 10s.
func (c *Config) EffectiveTimeout() int {
	if c.Network.TimeoutSeconds > 0 {
		return c.Network.TimeoutSeconds
	}
	return 10
}

// EffectiveVerifyMode resolves the verification mode, defaulting to auto.
func (c *Config) EffectiveVerifyMode() Mode {
	if c.Verify.Mode == "" {
		return ModeAuto
	}
	return c.Verify.Mode
}
