package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/luadebug/internal/debugger"
)

const (
	configDir  = "luadebug"
	configFile = "config.yaml"
)

// Config is the top-level structure of config.yaml.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Debugger DebuggerConfig `yaml:"debugger"`
	Lua      LuaConfig      `yaml:"lua"`
	DAP      DAPConfig      `yaml:"dap"`
	Console  ConsoleConfig  `yaml:"console"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error" | verbosity number
	Format string `yaml:"format"` // "console" | "json"
	File   string `yaml:"file"`   // empty for stderr
}

// DebuggerConfig controls debugging sessions.
type DebuggerConfig struct {
	User         string        `yaml:"user"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StopOnEntry  bool          `yaml:"stop_on_entry"`
	StepOver     string        `yaml:"step_over"` // "sequential" | "depth"
}

// LuaConfig limits script execution.
type LuaConfig struct {
	ExecutionTimeout time.Duration `yaml:"execution_timeout"` // 0 for none
	StatementLimit   int64         `yaml:"statement_limit"`   // 0 for none
	CallStackSize    int           `yaml:"call_stack_size"`
}

// DAPConfig controls the debug adapter server.
type DAPConfig struct {
	Listen string `yaml:"listen"` // empty for stdio
}

// ConsoleConfig controls the interactive console.
type ConsoleConfig struct {
	Color       string `yaml:"color"` // "auto" | "always" | "never"
	HistoryFile string `yaml:"history_file"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Debugger: DebuggerConfig{
			User:         currentUser(),
			PollInterval: debugger.DefaultPollInterval,
			StepOver:     debugger.StepOverSequential.String(),
		},
		Lua: LuaConfig{
			CallStackSize: 256,
		},
		Console: ConsoleConfig{
			Color: "auto",
		},
	}
}

// DefaultPath returns the user config file path, ~/.config/luadebug/config.yaml
// on Linux.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, configDir, configFile), nil
}

// Load builds the configuration from defaults, the file at path and the
// environment, then validates it. An empty path reads DefaultPath if that
// file exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := cfg.ReadFile(path); err != nil {
			if explicit || !errors.Is(err, ErrFileNotFound) {
				return nil, err
			}
		}
	}

	if err := NewEnvLoader(EnvPrefix).Apply(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile layers the YAML file at path over cfg.
func (c *Config) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

// WriteFile writes cfg as YAML to path, creating its directory.
func (c *Config) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks every setting and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !validLevel(c.Log.Level) {
		invalid("log.level", "unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		invalid("log.format", "must be console or json, got %q", c.Log.Format)
	}

	if c.Debugger.PollInterval <= 0 {
		invalid("debugger.poll_interval", "must be positive, got %v", c.Debugger.PollInterval)
	}
	if _, err := debugger.ParseStepOverMode(c.Debugger.StepOver); err != nil {
		invalid("debugger.step_over", "%v", err)
	}

	if c.Lua.ExecutionTimeout < 0 {
		invalid("lua.execution_timeout", "must not be negative")
	}
	if c.Lua.StatementLimit < 0 {
		invalid("lua.statement_limit", "must not be negative")
	}
	if c.Lua.CallStackSize <= 0 {
		invalid("lua.call_stack_size", "must be positive, got %d", c.Lua.CallStackSize)
	}

	switch c.Console.Color {
	case "auto", "always", "never":
	default:
		invalid("console.color", "must be auto, always or never, got %q", c.Console.Color)
	}

	return errors.Join(errs...)
}

// StepOverMode returns the parsed debugger.step_over setting.
func (c *Config) StepOverMode() debugger.StepOverMode {
	mode, _ := debugger.ParseStepOverMode(c.Debugger.StepOver)
	return mode
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	n, err := strconv.Atoi(level)
	return err == nil && n >= 0
}

func currentUser() string {
	for _, env := range []string{"USER", "USERNAME"} {
		if u := os.Getenv(env); u != "" {
			return u
		}
	}
	return "local"
}
