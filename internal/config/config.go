// Package config loads the reserving engine configuration from an optional
// YAML file with RESERVING_* environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/wakala/reserving/internal/generator"
)

const envPrefix = "RESERVING"

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database"   yaml:"database"`
	Generation GenerationConfig `mapstructure:"generation" yaml:"generation"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the sqlite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// GenerationConfig controls synthetic dataset generation.
type GenerationConfig struct {
	Seed            int64    `mapstructure:"seed"              yaml:"seed"`
	Syndicates      []int    `mapstructure:"syndicates"        yaml:"syndicates"`
	LinesOfBusiness []string `mapstructure:"lines_of_business" yaml:"lines_of_business"`
	Currencies      []string `mapstructure:"currencies"        yaml:"currencies"`
	Workers         int      `mapstructure:"workers"           yaml:"workers"`
}

// Generator converts the section into a generator.Config.
func (g GenerationConfig) Generator() generator.Config {
	return generator.Config{
		Syndicates:      g.Syndicates,
		LinesOfBusiness: g.LinesOfBusiness,
		Currencies:      g.Currencies,
		Workers:         g.Workers,
	}
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from ./config/reserving.yaml or
// /etc/reserving/reserving.yaml when present, then from environment
// variables. Format: RESERVING_<SECTION>_<KEY>, e.g. RESERVING_DATABASE_PATH.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("reserving")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/reserving")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is empty")
	}
	if c.Generation.Workers <= 0 {
		return fmt.Errorf("config: generation.workers must be positive")
	}
	return nil
}

// setDefaults sets defaults for all config values.
func setDefaults(v *viper.Viper) {
	gen := generator.DefaultConfig()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "reserving.db")

	v.SetDefault("generation.seed", 42)
	v.SetDefault("generation.syndicates", gen.Syndicates)
	v.SetDefault("generation.lines_of_business", gen.LinesOfBusiness)
	v.SetDefault("generation.currencies", gen.Currencies)
	v.SetDefault("generation.workers", gen.Workers)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
