package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opencodex/codex/internal/execpolicy"
)

// ConfigFileName is the runtime config file under codex home.
const ConfigFileName = "config.yaml"

// Duration is a yaml-friendly time.Duration ("30s", "10m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the runtime configuration for one codex process.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SessionConfig configures the per-session escalate server.
type SessionConfig struct {
	// SocketDir holds the per-session escalate sockets. Defaults to the OS
	// temp directory.
	SocketDir string `yaml:"socket_dir"`

	// DecisionTimeout bounds one policy evaluation, human round trip
	// included.
	DecisionTimeout Duration `yaml:"decision_timeout"`

	// ExecExpiration bounds one escalated command's run time. Zero means no
	// limit.
	ExecExpiration Duration `yaml:"exec_expiration"`
}

// SandboxConfig sets the default sandbox policy for spawned commands.
type SandboxConfig struct {
	// Policy is a preset name ("read-only", "workspace-write") or a JSON
	// policy document, as accepted by sandbox.ParsePolicy.
	Policy string `yaml:"policy"`

	// WritableRoots extends workspace-write with extra writable paths.
	WritableRoots []string `yaml:"writable_roots"`

	NetworkAccess       bool `yaml:"network_access"`
	ExcludeTmpdirEnvVar bool `yaml:"exclude_tmpdir_env_var"`
	ExcludeSlashTmp     bool `yaml:"exclude_slash_tmp"`

	// LinuxHelperPath overrides the codex-linux-sandbox helper location.
	// Empty means next to the current executable.
	LinuxHelperPath string `yaml:"linux_helper_path"`

	// NoProc skips the fresh /proc mount for containers that deny it.
	NoProc bool `yaml:"no_proc"`
}

// ApprovalsConfig configures the approval flow.
type ApprovalsConfig struct {
	// Mode is one of never, on-failure, unless-trusted, on-request.
	Mode string `yaml:"mode"`

	// PromptTimeout bounds one human approval round trip.
	PromptTimeout Duration `yaml:"prompt_timeout"`
}

// AuditConfig configures the decision journal.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig configures the structured audit logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses a config document, applies defaults and validates.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Session.SocketDir == "" {
		cfg.Session.SocketDir = os.TempDir()
	}
	if cfg.Session.DecisionTimeout <= 0 {
		cfg.Session.DecisionTimeout = Duration(10 * time.Minute)
	}
	if cfg.Sandbox.Policy == "" {
		cfg.Sandbox.Policy = "workspace-write"
	}
	if cfg.Approvals.Mode == "" {
		cfg.Approvals.Mode = string(execpolicy.ApprovalOnRequest)
	}
	if cfg.Approvals.PromptTimeout <= 0 {
		cfg.Approvals.PromptTimeout = Duration(5 * time.Minute)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks the constraints the yaml schema cannot express.
func (c *Config) Validate() error {
	switch execpolicy.AskForApproval(c.Approvals.Mode) {
	case execpolicy.ApprovalNever, execpolicy.ApprovalOnFailure,
		execpolicy.ApprovalUnlessTrusted, execpolicy.ApprovalOnRequest:
	default:
		return fmt.Errorf("config: approvals.mode must be one of never, on-failure, unless-trusted, on-request (got %q)", c.Approvals.Mode)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	if c.Session.ExecExpiration < 0 {
		return fmt.Errorf("config: session.exec_expiration cannot be negative")
	}
	return nil
}

// ApprovalMode returns the validated approval mode.
func (c *Config) ApprovalMode() execpolicy.AskForApproval {
	return execpolicy.AskForApproval(c.Approvals.Mode)
}
