package umux

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineMode selects which terminal engine implementation a session uses.
type EngineMode string

const (
	// EnginePrimary uses the vt/ultraviolet engine and silently falls back
	// to the plain-text engine if it fails.
	EnginePrimary EngineMode = "primary"
	// EnginePrimaryStrict uses the vt/ultraviolet engine and never falls
	// back: a primary-engine failure is logged as an error and the session
	// keeps the primary engine. The error is not returned to any caller.
	EnginePrimaryStrict EngineMode = "primary-strict"
	// EngineFallbackOnly always uses the plain-text engine.
	EngineFallbackOnly EngineMode = "fallback-only"
)

// ManagerConfig defines defaults used for every session a Registry creates
// (spec.md §6, "Defaults and knobs exposed via configuration").
type ManagerConfig struct {
	Logger        Logger
	EnvProvider   EnvProvider
	ShellResolver ShellResolver

	// HistoryCapacity is the per-session FIFO line count. Default 10000.
	HistoryCapacity int

	// DefaultShell is the program used when spawn receives an empty
	// command string. Empty means "resolve via ShellResolver".
	DefaultShell string

	// LogDirectory enables the JSONL sink when non-empty.
	LogDirectory string

	// InputLoggingDisabled suppresses stream:"input" JSONL records when
	// true. Input logging defaults to on (spec.md §6), which a plain bool
	// can only express zero-value-safe as a negated flag.
	InputLoggingDisabled bool

	// Engine selects the terminal engine implementation.
	Engine EngineMode

	// TerminalQueryLogging records synthetic terminal-query replies into
	// the JSONL sink and input history when enabled.
	TerminalQueryLogging bool

	// DefaultWaitTimeout is applied to Wait calls that omit a timeout.
	DefaultWaitTimeout time.Duration

	// ReadyPollInterval governs how often the registry's foreground-probe
	// poller ticks. Not part of the YAML knob table; exposed for tests.
	ReadyPollInterval time.Duration

	TerminalEnv TerminalEnv
}

// TerminalEnv defines the environment variables applied to every PTY
// session to advertise terminal capabilities (spec.md §6: "terminal type
// advertised as 256-color").
type TerminalEnv struct {
	Term      string
	ColorTerm string
	Lang      string
	LcAll     string
}

// DefaultTerminalEnv returns the baseline 256-color terminal environment.
func DefaultTerminalEnv() TerminalEnv {
	return TerminalEnv{
		Term:      "xterm-256color",
		ColorTerm: "truecolor",
		Lang:      "en_US.UTF-8",
		LcAll:     "en_US.UTF-8",
	}
}

// applyDefaults fills unset ManagerConfig fields with spec.md §6 defaults.
func (cfg ManagerConfig) applyDefaults() ManagerConfig {
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	if cfg.EnvProvider == nil {
		cfg.EnvProvider = DefaultEnvProvider{}
	}
	if cfg.ShellResolver == nil {
		cfg.ShellResolver = DefaultShellResolver{}
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = 10000
	}
	if cfg.Engine == "" {
		cfg.Engine = EnginePrimary
	}
	if cfg.DefaultWaitTimeout <= 0 {
		cfg.DefaultWaitTimeout = 30 * time.Second
	}
	if cfg.ReadyPollInterval <= 0 {
		cfg.ReadyPollInterval = 100 * time.Millisecond
	}
	if cfg.TerminalEnv == (TerminalEnv{}) {
		cfg.TerminalEnv = DefaultTerminalEnv()
	}
	return cfg
}

// fileConfig is the YAML-shaped view of ManagerConfig's serializable knobs
// (Logger/EnvProvider/ShellResolver are constructor-supplied, not loaded
// from disk).
type fileConfig struct {
	HistoryCapacity      int    `yaml:"history_capacity"`
	DefaultShell         string `yaml:"default_shell"`
	LogDirectory         string `yaml:"log_directory"`
	InputLogging         *bool  `yaml:"input_logging"`
	Engine               string `yaml:"engine"`
	TerminalQueryLogging bool   `yaml:"terminal_query_logging"`
	DefaultWaitTimeoutMs int    `yaml:"default_wait_timeout_ms"`
}

// LoadConfig reads an optional YAML file shaped like the knob table in
// spec.md §6 and merges it over built-in defaults. An empty path, or a path
// that does not exist, yields defaults unchanged (config.go is read once at
// startup and never re-read).
func LoadConfig(path string) (ManagerConfig, error) {
	var cfg ManagerConfig

	if path == "" {
		return cfg.applyDefaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg.applyDefaults(), nil
		}
		return ManagerConfig{}, wrapError(KindInvalidInput, "reading config file", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return ManagerConfig{}, wrapError(KindInvalidInput, "parsing config file", err)
	}

	cfg.HistoryCapacity = fc.HistoryCapacity
	cfg.DefaultShell = fc.DefaultShell
	cfg.LogDirectory = fc.LogDirectory
	cfg.TerminalQueryLogging = fc.TerminalQueryLogging
	if fc.InputLogging != nil {
		cfg.InputLoggingDisabled = !*fc.InputLogging
	}
	if fc.Engine != "" {
		cfg.Engine = EngineMode(fc.Engine)
	}
	if fc.DefaultWaitTimeoutMs > 0 {
		cfg.DefaultWaitTimeout = time.Duration(fc.DefaultWaitTimeoutMs) * time.Millisecond
	}

	return cfg.applyDefaults(), nil
}

type sessionConfig struct {
	logger               Logger
	envProvider          EnvProvider
	shellResolver        ShellResolver
	historyCapacity      int
	defaultShell         string
	engine               EngineMode
	terminalEnv          TerminalEnv
	inputLoggingDisabled bool
	terminalQueryLogging bool
}

func newSessionConfig(cfg ManagerConfig) sessionConfig {
	cfg = cfg.applyDefaults()
	return sessionConfig{
		logger:               cfg.Logger,
		envProvider:          cfg.EnvProvider,
		shellResolver:        cfg.ShellResolver,
		historyCapacity:      cfg.HistoryCapacity,
		defaultShell:         cfg.DefaultShell,
		engine:               cfg.Engine,
		terminalEnv:          cfg.TerminalEnv,
		inputLoggingDisabled: cfg.InputLoggingDisabled,
		terminalQueryLogging: cfg.TerminalQueryLogging,
	}
}
