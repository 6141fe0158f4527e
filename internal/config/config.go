package config

import (
	"errors"
	"fmt"
	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	decisionHandler "go-autoagent/internal/agents/decision/handler"
	supervisorHandler "go-autoagent/internal/agents/supervisor/handler"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/security"
	"go-autoagent/pkg/tools"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to upper-cased option keys, e.g. AGENT_MAX_ITERATIONS.
const EnvPrefix = "AGENT_"

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Workspace WorkspaceConfig `toml:"workspace"`
	Security  SecurityConfig  `toml:"security"`
	Behavior  BehaviorConfig  `toml:"behavior"`
	Model     ModelConfig     `toml:"model"`
	Events    EventsConfig    `toml:"events"`
}

type ServerConfig struct {
	Port            int      `toml:"port"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

type WorkspaceConfig struct {
	// Root holds one directory per session unless a session names its own.
	Root string `toml:"root"`
}

type SecurityConfig struct {
	AllowedCommands      []string `toml:"allowed_commands"`
	DeniedCommands       []string `toml:"denied_commands"`
	CommandTimeout       Duration `toml:"command_timeout"`
	MaxCommandOutputSize int      `toml:"max_command_output_size"`
	MaxFileSize          int      `toml:"max_file_size"`
	SafetyMonitor        bool     `toml:"safety_monitor"`
}

type BehaviorConfig struct {
	MaxIterations int `toml:"max_iterations"`
	// MaxToolCallsPerTurn is read for compatibility; one call per decision is enforced regardless.
	MaxToolCallsPerTurn int      `toml:"max_tool_calls_per_turn"`
	TaskStepSlack       int      `toml:"task_step_slack"`
	MaxFinishRejections int      `toml:"max_finish_rejections"`
	HistoryWindow       int      `toml:"history_window"`
	StopTimeout         Duration `toml:"stop_timeout"`
	Mode                string   `toml:"mode"`
}

type ModelConfig struct {
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	Timeout           Duration `toml:"timeout"`
}

type EventsConfig struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Duration reads "30s" style strings or a bare number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func New() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ShutdownTimeout: Duration{15 * time.Second}},
		Log:    LogConfig{Level: "info", Pretty: true},
		Workspace: WorkspaceConfig{
			Root: "sandbox",
		},
		Security: SecurityConfig{
			AllowedCommands:      slices.Clone(security.DefaultAllowedCommands),
			DeniedCommands:       slices.Clone(security.DefaultDeniedCommands),
			CommandTimeout:       Duration{30 * time.Second},
			MaxCommandOutputSize: 1024 * 1024,
			MaxFileSize:          10 * 1024 * 1024,
			SafetyMonitor:        true,
		},
		Behavior: BehaviorConfig{
			MaxIterations:       15,
			MaxToolCallsPerTurn: 5,
			TaskStepSlack:       5,
			MaxFinishRejections: 2,
			HistoryWindow:       10,
			StopTimeout:         Duration{10 * time.Second},
			Mode:                string(models.ModeTask),
		},
		Model: ModelConfig{
			RequestsPerSecond: 1,
			Burst:             1,
			Timeout:           Duration{2 * time.Minute},
		},
		Events: EventsConfig{
			SubjectPrefix: "agent",
		},
	}
}

// Load reads .env (if present), then the TOML file at path (if given), then AGENT_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := New()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Behavior.MaxToolCallsPerTurn > 1 {
		log.Warn().Int("max_tool_calls_per_turn", cfg.Behavior.MaxToolCallsPerTurn).
			Msg("only one tool call is executed per decision, the setting is clamped to 1")
	}
	return cfg, nil
}

// Keys lists the flat option names understood by Apply.
func Keys() []string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply sets options from a flat map such as {"max_iterations": 20, "allowed_commands": ["ls"]}.
func (c *Config) Apply(opts map[string]any) error {
	errs := make([]error, 0)
	for _, key := range sortedKeys(opts) {
		set, ok := options[key]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown option %q", key))
			continue
		}
		if err := set(c, opts[key]); err != nil {
			errs = append(errs, fmt.Errorf("option %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ApplyEnv applies every option that has an AGENT_* variable set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	opts := map[string]any{}
	for key := range options {
		if v, ok := lookup(EnvPrefix + strings.ToUpper(key)); ok {
			opts[key] = v
		}
	}
	return c.Apply(opts)
}

func (c *Config) Validate() error {
	errs := make([]error, 0)
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	check(c.Workspace.Root != "", "workspace.root must be set")
	check(c.Security.CommandTimeout.Duration >= time.Second && c.Security.CommandTimeout.Duration <= 300*time.Second,
		"security.command_timeout must be between 1s and 300s, got %s", c.Security.CommandTimeout)
	check(c.Security.MaxCommandOutputSize > 0, "security.max_command_output_size must be positive")
	check(c.Security.MaxFileSize > 0, "security.max_file_size must be positive")
	check(c.Behavior.MaxIterations > 0, "behavior.max_iterations must be positive")
	check(c.Behavior.MaxToolCallsPerTurn > 0, "behavior.max_tool_calls_per_turn must be positive")
	check(c.Behavior.TaskStepSlack >= 0, "behavior.task_step_slack must not be negative")
	check(c.Behavior.MaxFinishRejections >= 0, "behavior.max_finish_rejections must not be negative")
	check(c.Behavior.StopTimeout.Duration > 0, "behavior.stop_timeout must be positive")
	_, ok := models.ParseMode(c.Behavior.Mode)
	check(ok, "behavior.mode %q is not one of plan, task, simple", c.Behavior.Mode)
	check(c.Model.RequestsPerSecond > 0, "model.requests_per_second must be positive")
	check(c.Model.Burst > 0, "model.burst must be positive")
	return errors.Join(errs...)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) Limits() tools.Limits {
	return tools.Limits{
		CommandTimeout:   c.Security.CommandTimeout.Duration,
		MaxCommandOutput: c.Security.MaxCommandOutputSize,
		MaxReadSize:      int64(c.Security.MaxFileSize),
	}
}

func (c *Config) CommandFilter() *security.CommandFilter {
	return security.NewCommandFilter(c.Security.AllowedCommands, c.Security.DeniedCommands)
}

func (c *Config) LoopOptions() supervisorHandler.Options {
	return supervisorHandler.Options{
		MaxIterations:       c.Behavior.MaxIterations,
		TaskStepSlack:       c.Behavior.TaskStepSlack,
		MaxFinishRejections: c.Behavior.MaxFinishRejections,
	}
}

func (c *Config) DecisionOptions() decisionHandler.Options {
	return decisionHandler.Options{
		MaxIterations: c.Behavior.MaxIterations,
		TaskStepSlack: c.Behavior.TaskStepSlack,
		HistoryWindow: c.Behavior.HistoryWindow,
	}
}

// DefaultMode is the mode used when a goal does not name one.
func (c *Config) DefaultMode() models.Mode {
	mode, _ := models.ParseMode(c.Behavior.Mode)
	return mode
}
