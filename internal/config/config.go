// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Device   DeviceConfig   `mapstructure:"device"`
	App      AppConfig      `mapstructure:"app"`
	Devices  []DeviceEntry  `mapstructure:"devices"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig represents device-specific configuration
type DeviceConfig struct {
	OperationTimeout       time.Duration    `mapstructure:"operation_timeout"`
	PositionStreamInterval time.Duration    `mapstructure:"position_stream_interval"`
	DefaultSerial          SerialPortConfig `mapstructure:"default_serial"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	Parity   string `mapstructure:"parity"`
}

// DeviceEntry is a device opened at startup
type DeviceEntry struct {
	Brand    string `mapstructure:"brand"`
	Model    string `mapstructure:"model"`
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
	Address  int    `mapstructure:"address"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from path (or the default search paths when
// path is empty) and HAMLINK_* environment variables. A missing config
// file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/hamlink")
	}

	// Environment variable support
	v.SetEnvPrefix("HAMLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Device defaults
	v.SetDefault("device.operation_timeout", "10s")
	v.SetDefault("device.position_stream_interval", "500ms")
	v.SetDefault("device.default_serial.data_bits", 8)
	v.SetDefault("device.default_serial.stop_bits", 1)
	v.SetDefault("device.default_serial.parity", "none")

	// App defaults
	v.SetDefault("app.name", "hamlink")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Device.OperationTimeout <= 0 {
		return fmt.Errorf("device.operation_timeout must be > 0")
	}
	if config.Device.PositionStreamInterval <= 0 {
		return fmt.Errorf("device.position_stream_interval must be > 0")
	}

	for i, d := range config.Devices {
		if d.Brand == "" || d.Model == "" || d.Port == "" {
			return fmt.Errorf("devices[%d]: brand, model and port are required", i)
		}
		if d.Address < 0 || d.Address > 255 {
			return fmt.Errorf("devices[%d]: address %d out of range 0-255", i, d.Address)
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
