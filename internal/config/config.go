package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cardiolab/afdash/internal/analysis"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Backend  BackendConfig  `yaml:"backend"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

type BackendConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AnalysisConfig selects between the historically coexisting risk policies.
// The defaults match the most recent revision: two-tier Risky/Safe on the
// p95 statistic.
type AnalysisConfig struct {
	PredictionAggregation string `yaml:"prediction_aggregation"` // mean | p75 | p95
	PredictionRiskScheme  string `yaml:"prediction_risk_scheme"` // two_tier | three_tier
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// TokenTTL returns the session token lifetime, defaulting to 24 hours.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// Timeout returns the backend call timeout, defaulting to 120 seconds.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Modes builds the runtime mode set: the shipped defaults with this config's
// prediction policy overrides applied.
func (a AnalysisConfig) Modes() (map[analysis.Mode]analysis.ModeConfig, error) {
	modes := analysis.DefaultModes()
	pred := modes[analysis.ModePrediction]

	switch a.PredictionAggregation {
	case "":
	case string(analysis.StatMean), string(analysis.StatP75), string(analysis.StatP95):
		pred.Aggregation = analysis.AggregationStatistic(a.PredictionAggregation)
	default:
		return nil, fmt.Errorf("unknown prediction_aggregation %q", a.PredictionAggregation)
	}

	switch a.PredictionRiskScheme {
	case "", string(analysis.SchemeTwoTier):
	case string(analysis.SchemeThreeTier):
		pred.Risk = analysis.LegacyThreeTierPolicy()
	default:
		return nil, fmt.Errorf("unknown prediction_risk_scheme %q", a.PredictionRiskScheme)
	}

	modes[analysis.ModePrediction] = pred
	return modes, nil
}

// Load reads config from a YAML file, then applies environment variable
// overrides. Env vars use the prefix AFDASH_ and underscore-separated paths:
//
//	AFDASH_SERVER_HOST, AFDASH_SERVER_PORT,
//	AFDASH_DB_HOST, AFDASH_DB_PORT, AFDASH_DB_NAME,
//	AFDASH_DB_USER, AFDASH_DB_PASSWORD, AFDASH_DB_SSLMODE,
//	AFDASH_REDIS_ADDR, AFDASH_REDIS_PASSWORD,
//	AFDASH_AUTH_JWT_SECRET, AFDASH_BACKEND_URL
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AFDASH_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AFDASH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AFDASH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("AFDASH_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("AFDASH_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("AFDASH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("AFDASH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("AFDASH_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("AFDASH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AFDASH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AFDASH_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("AFDASH_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if _, err := c.Analysis.Modes(); err != nil {
		return err
	}
	return nil
}
