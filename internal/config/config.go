package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/storygraph/internal/storage/postgres"
	"github.com/AaronLay10/storygraph/internal/task"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type EngineConfig struct {
	Version int `yaml:"version"`
	Engine  struct {
		Name string `yaml:"name"`
	} `yaml:"engine"`
	Storage struct {
		Driver string `yaml:"driver"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"storage"`
	Solver struct {
		Ratio   int     `yaml:"ratio"`
		Days    int     `yaml:"days"`
		Epsilon float64 `yaml:"epsilon"`
	} `yaml:"solver"`
	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		Prefix   string `yaml:"prefix"`
		ClientID string `yaml:"client_id"`
	} `yaml:"mqtt"`
}

// Default returns the configuration used when no storygraph.yaml exists:
// an in-memory store and the package solver defaults.
func Default() *EngineConfig {
	cfg := &EngineConfig{Version: 1}
	cfg.Engine.Name = "storygraph"
	cfg.Storage.Driver = DriverMemory
	return cfg
}

// Name returns the engine name, defaulting to "storygraph".
func (c *EngineConfig) Name() string {
	if c.Engine.Name == "" {
		return "storygraph"
	}
	return c.Engine.Name
}

// Driver returns the storage driver, defaulting to memory.
func (c *EngineConfig) Driver() string {
	if c.Storage.Driver == "" {
		return DriverMemory
	}
	return c.Storage.Driver
}

// MQTTPrefix returns the topic prefix, defaulting to the engine name.
func (c *EngineConfig) MQTTPrefix() string {
	if c.MQTT.Prefix == "" {
		return c.Name()
	}
	return c.MQTT.Prefix
}

// MQTTClientID returns the client id, defaulting to the engine name.
func (c *EngineConfig) MQTTClientID() string {
	if c.MQTT.ClientID == "" {
		return c.Name()
	}
	return c.MQTT.ClientID
}

// Solver returns the configured solver thresholds; unset values keep the
// package defaults.
func (c *EngineConfig) Solver() task.Solver {
	s := task.DefaultSolver
	if c.Solver.Ratio > 0 {
		s.Ratio = c.Solver.Ratio
	}
	if c.Solver.Days > 0 {
		s.Days = c.Solver.Days
	}
	if c.Solver.Epsilon > 0 {
		s.Offset = c.Solver.Epsilon
	}
	return s
}

func LoadEngineConfig(path string) (*EngineConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported storygraph.yaml version: %d", cfg.Version)
	}
	switch cfg.Driver() {
	case DriverPostgres, DriverMemory:
	case DriverSQLite:
		if cfg.Storage.SQLite.Path == "" {
			return nil, fmt.Errorf("storage driver sqlite requires storage.sqlite.path")
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.Solver.Ratio > 100 {
		return nil, fmt.Errorf("solver ratio must be at most 100, got %d", cfg.Solver.Ratio)
	}

	return cfg, nil
}

// Env is the process environment.
type Env struct {
	Postgres   postgres.Config
	MQTTURL    string `env:"MQTT_URL"`
	ConfigPath string `env:"STORYGRAPH_CONFIG" envDefault:"storygraph.yaml"`
}

// LoadEnv reads Env from the environment. PGPASSWORD may also be given as a
// file through PGPASSWORD_FILE.
func LoadEnv() (*Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	password, err := ResolveSecret("PGPASSWORD")
	if err != nil {
		return nil, err
	}
	e.Postgres.Password = password
	return &e, nil
}
