// Package config assembles runtime configuration from defaults, an optional
// YAML file, a .env file and the environment, in increasing priority.
package config

import (
	"fmt"
	"net/url"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spend-intake/internal/cluster"
	"github.com/spend-intake/internal/hierarchy"
)

// Config is the full configuration of spendctl.
type Config struct {
	Cluster  ClusterConfig  `yaml:"cluster"`
	Input    InputConfig    `yaml:"input"`
	Database DatabaseConfig `yaml:"database"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Server   ServerConfig   `yaml:"server"`
	Verbose  bool           `yaml:"verbose"`
}

// ClusterConfig drives the supplier clustering pass.
type ClusterConfig struct {
	Threshold int    `yaml:"threshold"`
	Workers   int    `yaml:"workers"`
	Gate      string `yaml:"gate"`
	Limit     int    `yaml:"limit"`
	Order     string `yaml:"order"`
}

// InputConfig describes the source spreadsheet.
type InputConfig struct {
	Sheet string `yaml:"sheet"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// OpenAIConfig holds the classification client settings.
type OpenAIConfig struct {
	APIKey         string `yaml:"-"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	Workers        int    `yaml:"workers"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"-"`
}

// DefaultSheet is the worksheet the vendor list ships in.
const DefaultSheet = "AP 2023 Suppliers"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cluster: ClusterConfig{
			Threshold: cluster.DefaultThreshold,
			Workers:   runtime.NumCPU(),
			Gate:      string(cluster.GateSubstring),
			Order:     string(hierarchy.OrderSpend),
		},
		Input: InputConfig{Sheet: DefaultSheet},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "user",
			Password:     "password",
			Name:         "spend_intake",
			SSLMode:      "disable",
			MaxOpenConns: 20,
			MaxIdleConns: 10,
		},
		OpenAI: OpenAIConfig{
			Model:          "gpt-4o-mini",
			Workers:        4,
			TimeoutSeconds: 60,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load builds the configuration. path may be empty; SPEND_CONFIG is used
// then, and no file at all is fine.
func Load(path string) (*Config, error) {
	if err := LoadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("SPEND_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Cluster.Threshold = GetEnvInt("SPEND_THRESHOLD", c.Cluster.Threshold)
	c.Cluster.Workers = GetEnvInt("SPEND_WORKERS", c.Cluster.Workers)
	c.Cluster.Gate = GetEnv("SPEND_GATE", c.Cluster.Gate)
	c.Cluster.Limit = GetEnvInt("SPEND_LIMIT", c.Cluster.Limit)
	c.Cluster.Order = GetEnv("SPEND_ORDER", c.Cluster.Order)
	c.Input.Sheet = GetEnv("SPEND_SHEET", c.Input.Sheet)

	c.Database.Host = GetEnv("PGHOST", c.Database.Host)
	c.Database.Port = GetEnvInt("PGPORT", c.Database.Port)
	c.Database.User = GetEnv("PGUSER", c.Database.User)
	c.Database.Password = GetEnv("PGPASSWORD", c.Database.Password)
	c.Database.Name = GetEnv("PGDATABASE", c.Database.Name)
	c.Database.SSLMode = GetEnv("PGSSLMODE", c.Database.SSLMode)

	c.OpenAI.APIKey = GetEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.Model = GetEnv("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.BaseURL = GetEnv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Workers = GetEnvInt("OPENAI_WORKERS", c.OpenAI.Workers)

	c.Server.Addr = GetEnv("SPEND_HTTP_ADDR", c.Server.Addr)
	c.Server.APIKey = GetEnv("SPEND_API_KEY", c.Server.APIKey)
	c.Verbose = GetEnvBool("SPEND_VERBOSE", c.Verbose)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	opts, err := c.ClusterOptions()
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if _, err := hierarchy.ParseOrder(c.Cluster.Order); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if c.OpenAI.Workers < 1 {
		return fmt.Errorf("openai: workers must be positive, got %d", c.OpenAI.Workers)
	}
	return nil
}

// ClusterOptions converts the cluster section into builder options.
func (c *Config) ClusterOptions() (cluster.Options, error) {
	gate, err := cluster.ParseGatePolicy(c.Cluster.Gate)
	if err != nil {
		return cluster.Options{}, fmt.Errorf("cluster: %w", err)
	}
	return cluster.Options{
		Threshold: c.Cluster.Threshold,
		Workers:   c.Cluster.Workers,
		Gate:      gate,
		Limit:     c.Cluster.Limit,
	}, nil
}

// DSN returns a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	q := u.Query()
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
