package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	VMware  VMwareConfig  `mapstructure:"vmware" validate:"required"`
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Tasks   TaskConfig    `mapstructure:"tasks" validate:"required"`
	Logging LoggingConfig `mapstructure:"logging" validate:"required"`
}

// VMwareConfig contains vSphere connection and resource scope configuration
type VMwareConfig struct {
	VCenterURL         string        `mapstructure:"vcenter_url" validate:"required,url" example:"https://vcenter.example.com/sdk"`
	Username           string        `mapstructure:"username" validate:"required" example:"service-account"`
	Password           string        `mapstructure:"password" validate:"required" example:"secret"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" example:"false"`
	ConnectionTimeout  time.Duration `mapstructure:"connection_timeout" validate:"required" example:"30s"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"required" example:"60s"`
	RetryAttempts      int           `mapstructure:"retry_attempts" validate:"min=0,max=10" example:"3"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" validate:"required" example:"5s"`

	// Resource scope targets. Each is optional; when empty the resolver
	// applies a deterministic default (first datacenter, first compute
	// resource, datastore with the most free space, no network).
	Datacenter string `mapstructure:"datacenter" example:"DC0"`
	Cluster    string `mapstructure:"cluster" example:"Cluster01"`
	Datastore  string `mapstructure:"datastore" example:"datastore1"`
	Network    string `mapstructure:"network" example:"VM Network"`
}

// ServerConfig contains MCP transport configuration
type ServerConfig struct {
	Transport    string        `mapstructure:"transport" validate:"required,oneof=stdio http" example:"http"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535" example:"8080"`
	Host         string        `mapstructure:"host" example:"0.0.0.0"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"required" example:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required" example:"10s"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"required" example:"60s"`
	EnableCORS   bool          `mapstructure:"enable_cors" example:"true"`
	TLSConfig    TLSConfig     `mapstructure:"tls"`
}

// TLSConfig contains TLS configuration for the HTTP transport
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" example:"false"`
	CertFile string `mapstructure:"cert_file" example:"/path/to/cert.pem"`
	KeyFile  string `mapstructure:"key_file" example:"/path/to/key.pem"`
}

// AuthConfig contains the tool-call authentication gate configuration.
// An empty APIKey disables the gate entirely.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key" example:"changeme"`
}

// TaskConfig controls how vCenter tasks are driven to completion
type TaskConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" validate:"required" example:"5m"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required" example:"1s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level" validate:"required,oneof=debug info warn error" example:"info"`
	Format   string `mapstructure:"format" validate:"required,oneof=json text" example:"json"`
	Output   string `mapstructure:"output" validate:"required,oneof=stdout stderr file" example:"stderr"`
	FilePath string `mapstructure:"file_path" example:"/var/log/esxi-mcp-server.log"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		VMware: VMwareConfig{
			VCenterURL:         "", // Will be set via config file or env vars
			Username:           "",
			Password:           "",
			ConnectionTimeout:  30 * time.Second,
			RequestTimeout:     60 * time.Second,
			RetryAttempts:      3,
			RetryDelay:         5 * time.Second,
			InsecureSkipVerify: false,
		},
		Server: ServerConfig{
			Transport:    "http",
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute, // OVF/OVA uploads can run long
			IdleTimeout:  120 * time.Second,
			EnableCORS:   true,
			TLSConfig: TLSConfig{
				Enabled: false,
			},
		},
		Tasks: TaskConfig{
			Timeout:      5 * time.Minute,
			PollInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			// stdio transport owns stdout, so logs default to stderr
			Output: "stderr",
		},
	}
}

// Load loads configuration from multiple sources with the following precedence:
// 1. Environment variables (highest)
// 2. Configuration file
// 3. Default values (lowest)
func Load(configFile string) (*Config, error) {
	// Start with default configuration
	config := DefaultConfig()

	// Initialize viper
	v := viper.New()

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		// Search for config file in multiple locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/esxi-mcp-server/")
		v.AddConfigPath("$HOME/.esxi-mcp-server/")
	}

	// Enable environment variable support
	v.AutomaticEnv()
	v.SetEnvPrefix("MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// Read configuration file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, continue with defaults and env vars
	}

	// Unmarshal configuration
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// ValidateConfig validates the configuration using struct tags
func ValidateConfig(config *Config) error {
	validate := validator.New()

	if err := validate.Struct(config); err != nil {
		return err
	}

	// Additional custom validations
	if err := validateVMwareConfig(&config.VMware); err != nil {
		return fmt.Errorf("vmware config validation failed: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}

	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}

	if err := validateTaskConfig(&config.Tasks); err != nil {
		return fmt.Errorf("tasks config validation failed: %w", err)
	}

	return nil
}

// validateVMwareConfig performs additional validation for VMware configuration
func validateVMwareConfig(config *VMwareConfig) error {
	if config.VCenterURL == "" {
		return fmt.Errorf("vcenter_url is required")
	}

	if config.Username == "" {
		return fmt.Errorf("username is required")
	}

	if config.Password == "" {
		return fmt.Errorf("password is required")
	}

	if config.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection_timeout must be positive")
	}

	if config.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	return nil
}

// validateServerConfig performs additional validation for server configuration
func validateServerConfig(config *ServerConfig) error {
	if config.TLSConfig.Enabled {
		if config.TLSConfig.CertFile == "" {
			return fmt.Errorf("cert_file is required when TLS is enabled")
		}
		if config.TLSConfig.KeyFile == "" {
			return fmt.Errorf("key_file is required when TLS is enabled")
		}

		// Check if files exist
		if _, err := os.Stat(config.TLSConfig.CertFile); os.IsNotExist(err) {
			return fmt.Errorf("cert_file does not exist: %s", config.TLSConfig.CertFile)
		}
		if _, err := os.Stat(config.TLSConfig.KeyFile); os.IsNotExist(err) {
			return fmt.Errorf("key_file does not exist: %s", config.TLSConfig.KeyFile)
		}
	}

	return nil
}

// validateLoggingConfig performs additional validation for logging configuration
func validateLoggingConfig(config *LoggingConfig) error {
	if config.Output == "file" && config.FilePath == "" {
		return fmt.Errorf("file_path is required when output is set to 'file'")
	}

	return nil
}

// validateTaskConfig performs additional validation for task configuration
func validateTaskConfig(config *TaskConfig) error {
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if config.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if config.PollInterval > config.Timeout {
		return fmt.Errorf("poll_interval must not exceed timeout")
	}

	return nil
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsTLSEnabled returns true if TLS is enabled
func (c *ServerConfig) IsTLSEnabled() bool {
	return c.TLSConfig.Enabled
}

// AuthRequired returns true if tool calls must pass the authentication gate
func (c *AuthConfig) AuthRequired() bool {
	return c.APIKey != ""
}
