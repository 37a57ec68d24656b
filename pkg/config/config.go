// Package config loads and validates conduit's runtime settings from a
// YAML file. Settings cover the transport (socket directory, pool size,
// send budget), the verifier's probe budgets, the default verification
// level, and a glob blocklist of selectors the dispatcher refuses to act
// on.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/conduit/pkg/types"
)

// Default values applied where the config file is absent or leaves a
// field unset.
const (
	DefaultPoolSize         = 4
	DefaultSendTimeoutMS    = 5000
	DefaultHitTestTimeoutMS = 50
	DefaultProbeTimeoutMS   = 500
	DefaultSettleDelayMS    = 100
)

// Config is the on-disk configuration. Durations are carried as integer
// milliseconds in YAML and exposed as time.Duration accessors.
type Config struct {
	// SocketDir is where instance sockets are created. Empty means the
	// system temp directory.
	SocketDir string `yaml:"socket_dir"`

	// PoolSize is the number of pre-connected pool clients.
	PoolSize int `yaml:"pool_size"`

	// SendTimeoutMS bounds one command round-trip over the transport.
	SendTimeoutMS int `yaml:"send_timeout_ms"`

	// HitTestTimeoutMS bounds the precheck hit-test probe (hot path).
	HitTestTimeoutMS int `yaml:"hit_test_timeout_ms"`

	// ProbeTimeoutMS bounds postcheck value/focus/selection probes.
	ProbeTimeoutMS int `yaml:"probe_timeout_ms"`

	// SettleDelayMS is the pause before reading post-click focus.
	SettleDelayMS int `yaml:"settle_delay_ms"`

	// ContextIdleTimeoutMS closes browser contexts unused for this long.
	// Zero disables idle cleanup.
	ContextIdleTimeoutMS int `yaml:"context_idle_timeout_ms"`

	// VerificationLevel is the default level for commands that don't
	// specify one: none, standard, or strict.
	VerificationLevel string `yaml:"verification_level"`

	// BlockedSelectors are glob patterns for selectors the dispatcher
	// must refuse to act on (e.g. "#delete-*", "*.destructive*").
	// Note that glob brackets are character classes, so attribute
	// selectors need escaping to be matched literally.
	BlockedSelectors []string `yaml:"blocked_selectors"`

	// Contexts are browser contexts opened at startup, before the socket
	// begins accepting commands.
	Contexts []ContextSpec `yaml:"contexts"`
}

// ContextSpec declares a browser context to open at startup.
type ContextSpec struct {
	ID       string `yaml:"id"`
	URL      string `yaml:"url"`
	Headless bool   `yaml:"headless"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		PoolSize:          DefaultPoolSize,
		SendTimeoutMS:     DefaultSendTimeoutMS,
		HitTestTimeoutMS:  DefaultHitTestTimeoutMS,
		ProbeTimeoutMS:    DefaultProbeTimeoutMS,
		SettleDelayMS:     DefaultSettleDelayMS,
		VerificationLevel: "standard",
	}
}

// DefaultPath returns ~/.conduit/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".conduit", "config.yaml"), nil
}

// Load reads the config file at path, applying defaults for unset fields.
// A missing file is not an error: the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	// Unmarshal zeroes fields that are explicitly set empty; re-apply
	// floors for the ones that must stay positive.
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.SendTimeoutMS <= 0 {
		cfg.SendTimeoutMS = DefaultSendTimeoutMS
	}
	if cfg.HitTestTimeoutMS <= 0 {
		cfg.HitTestTimeoutMS = DefaultHitTestTimeoutMS
	}
	if cfg.ProbeTimeoutMS <= 0 {
		cfg.ProbeTimeoutMS = DefaultProbeTimeoutMS
	}
	if cfg.SettleDelayMS <= 0 {
		cfg.SettleDelayMS = DefaultSettleDelayMS
	}

	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Validate checks field values and blocklist patterns.
func (c Config) Validate() error {
	if _, err := types.ParseVerificationLevel(c.VerificationLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, pattern := range c.BlockedSelectors {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("config: invalid blocked selector pattern %q: %w", pattern, err)
		}
	}
	seen := make(map[string]bool, len(c.Contexts))
	for i, spec := range c.Contexts {
		if spec.ID == "" {
			return fmt.Errorf("config: contexts[%d]: id is required", i)
		}
		if seen[spec.ID] {
			return fmt.Errorf("config: duplicate context id %q", spec.ID)
		}
		seen[spec.ID] = true
	}
	return nil
}

// Level returns the parsed default verification level.
func (c Config) Level() types.VerificationLevel {
	level, _ := types.ParseVerificationLevel(c.VerificationLevel)
	return level
}

func (c Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMS) * time.Millisecond
}

func (c Config) HitTestTimeout() time.Duration {
	return time.Duration(c.HitTestTimeoutMS) * time.Millisecond
}

func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

func (c Config) ContextIdleTimeout() time.Duration {
	return time.Duration(c.ContextIdleTimeoutMS) * time.Millisecond
}

// Blocklist is a compiled set of selector patterns.
type Blocklist struct {
	globs []glob.Glob
}

// CompileBlocklist compiles the blocked selector patterns. Validate
// catches bad patterns earlier, so this only fails on configs that
// skipped validation.
func (c Config) CompileBlocklist() (Blocklist, error) {
	var b Blocklist
	for _, pattern := range c.BlockedSelectors {
		g, err := glob.Compile(pattern)
		if err != nil {
			return Blocklist{}, fmt.Errorf("invalid blocked selector pattern %q: %w", pattern, err)
		}
		b.globs = append(b.globs, g)
	}
	return b, nil
}

// Blocked reports whether a selector matches any blocklist pattern.
func (b Blocklist) Blocked(selector string) bool {
	for _, g := range b.globs {
		if g.Match(selector) {
			return true
		}
	}
	return false
}
