// Package wrapperconfig provides the viper-backed configuration object for
// the mcp-context-protector CLI entry point: downstream transport
// selection, store path overrides, guardrail provider selection, and the
// ANSI sanitizer mode. CLI flags and a YAML config file both populate the
// same struct; CLI flags take precedence.
package wrapperconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the ambient configuration object the CLI entry point populates
// before constructing a wrapper.Session (SPEC_FULL.md §3's WrapperConfig).
type Config struct {
	Command     string   `yaml:"command" mapstructure:"command"`
	CommandArgs []string `yaml:"command_args" mapstructure:"command_args"`
	URL         string   `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	SSEURL      string   `yaml:"sse_url" mapstructure:"sse_url" validate:"omitempty,url"`

	GuardrailProvider string `yaml:"guardrail_provider" mapstructure:"guardrail_provider"`
	ScanTimeout       string `yaml:"scan_timeout" mapstructure:"scan_timeout" validate:"omitempty"`

	ServerConfigFile   string `yaml:"server_config_file" mapstructure:"server_config_file"`
	QuarantinePath     string `yaml:"quarantine_path" mapstructure:"quarantine_path"`
	VisualizeANSICodes bool   `yaml:"visualize_ansi_codes" mapstructure:"visualize_ansi_codes"`

	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// defaultStateDir is the well-known directory spec.md §6 places persisted
// state under, relative to the user's home directory.
const defaultStateDir = ".mcp-context-protector"

// InitViper wires Viper to read configFile (if non-empty), otherwise a
// mcp-context-protector.yaml found in the current directory or
// $HOME/.mcp-context-protector/, plus MCP_CONTEXT_PROTECTOR_* environment
// variable overrides, mirroring the teacher's config.InitViper pattern.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("mcp-context-protector")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MCP_CONTEXT_PROTECTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	// Unmarshal only sees keys Viper knows about, so bind each one to its
	// environment variable explicitly.
	for _, key := range []string{"command", "command_args", "url", "sse_url", "guardrail_provider", "scan_timeout", "server_config_file", "quarantine_path", "visualize_ansi_codes", "log_level"} {
		_ = viper.BindEnv(key)
	}
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(".", "mcp-context-protector.yaml"),
		filepath.Join(".", "mcp-context-protector.yml"),
	}
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, defaultStateDir, "mcp-context-protector.yaml"),
			filepath.Join(home, defaultStateDir, "mcp-context-protector.yml"),
		)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// ConfigFileUsed reports the path Viper actually loaded, or "" if none.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// LoadConfigRaw reads the configuration via Viper (ignoring a missing
// file) without validating it, so CLI flag overrides can still be applied
// by the caller before Validate.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults fills unset fields with spec.md §6's documented defaults.
func (c *Config) SetDefaults() {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, defaultStateDir)

	if c.ServerConfigFile == "" {
		c.ServerConfigFile = filepath.Join(stateDir, "servers.json")
	}
	if c.QuarantinePath == "" {
		c.QuarantinePath = filepath.Join(stateDir, "quarantine.json")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ScanTimeout == "" {
		c.ScanTimeout = "5s"
	}
}

// ScanTimeoutDuration parses ScanTimeout, falling back to 5s on a malformed
// value rather than failing startup over a cosmetic setting.
func (c *Config) ScanTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ScanTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// TransportCount reports how many of --command/--url/--sse-url are set.
func (c *Config) TransportCount() int {
	n := 0
	if c.Command != "" {
		n++
	}
	if c.URL != "" {
		n++
	}
	if c.SSEURL != "" {
		n++
	}
	return n
}

// Validate runs struct-tag validation plus the transport mutual-exclusion
// rule: exactly one of --command/--url/--sse-url must be set.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	switch c.TransportCount() {
	case 0:
		return fmt.Errorf("exactly one of --command, --url, or --sse-url is required")
	case 1:
		return nil
	default:
		return fmt.Errorf("only one of --command, --url, or --sse-url may be set")
	}
}
