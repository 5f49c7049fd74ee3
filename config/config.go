/*
Package config loads the engine's configuration from a YAML file with
environment overrides (prefix AE, dots become underscores, e.g.
AE_SERVER_HTTP_ADDR).

Every knob has a default, so the server starts with no config file at all.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/andino/allocation-engine/allocation"
	"github.com/andino/allocation-engine/demand"
	"github.com/andino/allocation-engine/workflow"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Engine EngineConfig `mapstructure:"engine"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RateLimitPerSecond throttles calculation requests; bursts up to
	// RateLimitBurst are admitted.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig is the calculation tuning. The four weights are validated:
// each pair must sum to 1.
type EngineConfig struct {
	DemandWeight  float64 `mapstructure:"demand_weight"`
	UrgencyWeight float64 `mapstructure:"urgency_weight"`

	AverageWeight float64 `mapstructure:"average_weight"`
	P75Weight     float64 `mapstructure:"p75_weight"`

	LookbackDays int `mapstructure:"lookback_days"`
	CoverageDays int `mapstructure:"coverage_days"`
	LeadTimeDays int `mapstructure:"lead_time_days"`

	CalcTimeout time.Duration `mapstructure:"calc_timeout"`
	Parallelism int           `mapstructure:"parallelism"`
}

// Load reads the file at path (optional when empty) and applies env
// overrides, then validates.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit_per_second", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("db.path", "allocation.db")
	v.SetDefault("engine.demand_weight", 0.6)
	v.SetDefault("engine.urgency_weight", 0.4)
	v.SetDefault("engine.p75_weight", 0.6)
	v.SetDefault("engine.average_weight", 0.4)
	v.SetDefault("engine.lookback_days", 30)
	v.SetDefault("engine.coverage_days", 7)
	v.SetDefault("engine.lead_time_days", 2)
	v.SetDefault("engine.calc_timeout", "30s")
	v.SetDefault("engine.parallelism", 8)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	const eps = 1e-9
	if diff := c.Engine.DemandWeight + c.Engine.UrgencyWeight - 1; diff > eps || diff < -eps {
		return fmt.Errorf("engine.demand_weight + engine.urgency_weight must sum to 1, got %v",
			c.Engine.DemandWeight+c.Engine.UrgencyWeight)
	}
	if diff := c.Engine.AverageWeight + c.Engine.P75Weight - 1; diff > eps || diff < -eps {
		return fmt.Errorf("engine.average_weight + engine.p75_weight must sum to 1, got %v",
			c.Engine.AverageWeight+c.Engine.P75Weight)
	}
	if c.Engine.LookbackDays <= 0 {
		return fmt.Errorf("engine.lookback_days must be positive, got %d", c.Engine.LookbackDays)
	}
	if c.Engine.CoverageDays <= 0 {
		return fmt.Errorf("engine.coverage_days must be positive, got %d", c.Engine.CoverageDays)
	}
	if c.Engine.LeadTimeDays < 0 {
		return fmt.Errorf("engine.lead_time_days must not be negative, got %d", c.Engine.LeadTimeDays)
	}
	return nil
}

// RunConfig converts the engine section into the workflow's snapshot.
func (c Config) RunConfig() workflow.RunConfig {
	return workflow.RunConfig{
		Weights: allocation.Weights{
			Demand:  decimal.NewFromFloat(c.Engine.DemandWeight),
			Urgency: decimal.NewFromFloat(c.Engine.UrgencyWeight),
		},
		BlendWeights: demand.BlendWeights{
			Average: decimal.NewFromFloat(c.Engine.AverageWeight),
			P75:     decimal.NewFromFloat(c.Engine.P75Weight),
		},
		LookbackDays: c.Engine.LookbackDays,
		CoverageDays: c.Engine.CoverageDays,
		LeadTimeDays: c.Engine.LeadTimeDays,
		CalcTimeout:  c.Engine.CalcTimeout,
		Parallelism:  c.Engine.Parallelism,
	}
}
