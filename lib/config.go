package dbq

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultDriver is the database/sql driver name used when PoolConfig.Driver
// is left empty. The driver itself is an external capability; it only has to
// be registered by the process before Connect.
const DefaultDriver = "odbc"

// DefaultPoolCount is the number of physical connections the pool is warmed
// with when PoolConfig.InitialPoolCount is left at zero.
const DefaultPoolCount = 1

// PoolConfig holds the settings for one connection pool. It is immutable
// once the pool is connected.
type PoolConfig struct {
	// Driver is the registered database/sql driver name.
	Driver string `yaml:"driver"`

	// Host is the database system to reach.
	Host string `yaml:"host" validate:"required"`

	// Libraries is the service/schema qualifier applied to every session.
	Libraries string `yaml:"libraries"`

	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required"`

	// InitialPoolCount is how many physical connections are opened eagerly
	// on Connect.
	InitialPoolCount int `yaml:"initial_pool_count" validate:"min=1"`
}

// withDefaults returns the config with documented defaults applied.
func (c PoolConfig) withDefaults() PoolConfig {
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.InitialPoolCount == 0 {
		c.InitialPoolCount = DefaultPoolCount
	}
	return c
}

// validate checks the config after defaulting.
func (c PoolConfig) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid pool configuration: %w", err)
	}
	return nil
}

// DSN returns the key=value connection string for the underlying driver.
// DBQ carries the default library list, the naming the legacy transport
// expects.
func (c PoolConfig) DSN() string {
	parts := []string{
		"SYSTEM=" + c.Host,
		"UID=" + c.Username,
		"PWD=" + c.Password,
	}
	if c.Libraries != "" {
		parts = append(parts, "DBQ="+c.Libraries)
	}
	return strings.Join(parts, ";")
}

// LoadPoolConfig reads a PoolConfig from a YAML file, then overlays any
// DBQ_* environment variables. Unknown YAML keys are rejected rather than
// silently attached.
func LoadPoolConfig(path string) (PoolConfig, error) {
	var cfg PoolConfig

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open pool configuration: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse pool configuration: %w", err)
	}

	cfg = overlayEnv(cfg)
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// overlayEnv applies DBQ_* environment variables over a loaded config.
func overlayEnv(cfg PoolConfig) PoolConfig {
	if v := os.Getenv("DBQ_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("DBQ_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("DBQ_LIBRARIES"); v != "" {
		cfg.Libraries = v
	}
	if v := os.Getenv("DBQ_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("DBQ_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("DBQ_POOL_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.InitialPoolCount = n
		}
	}
	return cfg
}
