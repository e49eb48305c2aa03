package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the client configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LogConfig      `yaml:"logging"`
}

// ServerConfig holds server connection configuration
type ServerConfig struct {
	Address     string        `yaml:"address"`
	Port        int           `yaml:"port"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Name string `yaml:"name"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default client configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:     "localhost",
			Port:        3306,
			DialTimeout: 30 * time.Second,
			ReadTimeout: 3 * time.Second,
		},
		Auth: AuthConfig{
			Username: "root",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the first config file found, falling back
// to defaults.
func Load() (*Config, error) {
	configPath := findConfigFile()
	if configPath != "" {
		return LoadFromFile(configPath)
	}
	return DefaultConfig(), nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}

	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write config file")
	}

	return nil
}

// findConfigFile searches for configuration file
func findConfigFile() string {
	if _, err := os.Stat("ferret-client.yml"); err == nil {
		return "ferret-client.yml"
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".ferret", "ferret-client.yml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	if _, err := os.Stat("/etc/ferret/ferret-client.yml"); err == nil {
		return "/etc/ferret/ferret-client.yml"
	}

	return ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server address cannot be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// Addr returns the host:port dial address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
