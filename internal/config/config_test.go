package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a complete configuration that passes validation
func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.VMware.VCenterURL = "https://vcenter.example.com/sdk"
	cfg.VMware.Username = "administrator@vsphere.local"
	cfg.VMware.Password = "secret"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, "http", cfg.Server.Transport)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Tasks.Timeout)
	assert.Equal(t, time.Second, cfg.Tasks.PollInterval)
	assert.Equal(t, "stderr", cfg.Logging.Output, "logs must stay off stdout for the stdio transport")
	assert.False(t, cfg.VMware.InsecureSkipVerify, "insecure mode must be an explicit opt-in")
	assert.Empty(t, cfg.Auth.APIKey)
	assert.False(t, cfg.Auth.AuthRequired())
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing vcenter url",
			mutate:  func(c *Config) { c.VMware.VCenterURL = "" },
			wantErr: "VCenterURL",
		},
		{
			name:    "missing username",
			mutate:  func(c *Config) { c.VMware.Username = "" },
			wantErr: "Username",
		},
		{
			name:    "missing password",
			mutate:  func(c *Config) { c.VMware.Password = "" },
			wantErr: "Password",
		},
		{
			name:    "invalid transport",
			mutate:  func(c *Config) { c.Server.Transport = "websocket" },
			wantErr: "Transport",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "Level",
		},
		{
			name:    "file output without path",
			mutate:  func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" },
			wantErr: "file_path",
		},
		{
			name:    "poll interval exceeds timeout",
			mutate:  func(c *Config) { c.Tasks.PollInterval = 10 * time.Minute },
			wantErr: "poll_interval",
		},
		{
			name:    "tls without cert",
			mutate:  func(c *Config) { c.Server.TLSConfig.Enabled = true },
			wantErr: "cert_file",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	configYAML := `
vmware:
  vcenter_url: "https://vcenter.test.local/sdk"
  username: "svc-mcp"
  password: "secret"
  datacenter: "DC01"
  datastore: "fast-ssd"
server:
  transport: "stdio"
auth:
  api_key: "test-key"
tasks:
  timeout: "2m"
  poll_interval: "500ms"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://vcenter.test.local/sdk", cfg.VMware.VCenterURL)
	assert.Equal(t, "DC01", cfg.VMware.Datacenter)
	assert.Equal(t, "fast-ssd", cfg.VMware.Datastore)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "test-key", cfg.Auth.APIKey)
	assert.True(t, cfg.Auth.AuthRequired())
	assert.Equal(t, 2*time.Minute, cfg.Tasks.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Tasks.PollInterval)

	// Defaults fill in what the file omits
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingRequiredFields(t *testing.T) {
	configYAML := `
vmware:
  vcenter_url: "https://vcenter.test.local/sdk"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
