package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models lifeline.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"project"`
	Planner PlannerDefaults `yaml:"planner"`
	Server  ServerConfig    `yaml:"server"`
	Auth    AuthConfig      `yaml:"auth"`
	Log     LogConfig       `yaml:"log"`
}

// PlannerDefaults are applied when a plan request omits the matching field.
type PlannerDefaults struct {
	FocusHoursStart         int `yaml:"focus_hours_start"`
	FocusHoursEnd           int `yaml:"focus_hours_end"`
	MaxPlannedMinutesPerDay int `yaml:"max_planned_minutes_per_day"`
}

type ServerConfig struct {
	Bind              string  `yaml:"bind"`
	BasePath          string  `yaml:"base_path"`
	RateLimitPerSec   float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst    int     `yaml:"rate_limit_burst"`
	ShutdownTimeoutMS int     `yaml:"shutdown_timeout_ms"`
}

type AuthConfig struct {
	Enabled   bool     `yaml:"enabled"`
	JWTSecret string   `yaml:"jwt_secret"`
	APIKeys   []string `yaml:"api_keys"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with lifeline init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Planner.FocusHoursStart < 0 || c.Planner.FocusHoursStart > 23 {
		return fmt.Errorf("config.planner.focus_hours_start must be between 0 and 23")
	}
	if c.Planner.FocusHoursEnd < 0 || c.Planner.FocusHoursEnd > 23 {
		return fmt.Errorf("config.planner.focus_hours_end must be between 0 and 23")
	}
	if c.Planner.FocusHoursEnd <= c.Planner.FocusHoursStart {
		return fmt.Errorf("config.planner.focus_hours_end must be after focus_hours_start")
	}
	if c.Planner.MaxPlannedMinutesPerDay <= 0 {
		return fmt.Errorf("config.planner.max_planned_minutes_per_day must be positive")
	}
	if c.Server.Bind == "" {
		return fmt.Errorf("config.server.bind is required")
	}
	if c.Server.RateLimitPerSec < 0 {
		return fmt.Errorf("config.server.rate_limit_per_sec must not be negative")
	}
	if c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("config.server.rate_limit_burst must not be negative")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("config.auth.enabled requires jwt_secret or api_keys")
	}
	switch c.Log.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not a valid level", c.Log.Level)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "lifeline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	cfg.Project.ID = projectID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  name: ""

planner:
  focus_hours_start: 9
  focus_hours_end: 18
  max_planned_minutes_per_day: 240

server:
  bind: 127.0.0.1:8787
  base_path: ""
  rate_limit_per_sec: 50
  rate_limit_burst: 100
  shutdown_timeout_ms: 5000

auth:
  enabled: false
  jwt_secret: ""
  api_keys: []

log:
  level: info
`
