package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/paneflow/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Engine        EngineConfig  `mapstructure:"engine" yaml:"engine"`
	PTY           PTYConfig     `mapstructure:"pty" yaml:"pty"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	Auth          AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EngineConfig controls per-session engine limits and timeouts.
type EngineConfig struct {
	SyncTimeoutMillis int `mapstructure:"sync_timeout_ms" yaml:"sync_timeout_ms"`
	CarryMax          int `mapstructure:"carry_max" yaml:"carry_max"`
	ImageBufferMax    int `mapstructure:"image_buffer_max" yaml:"image_buffer_max"`
	SyncBufferMax     int `mapstructure:"sync_buffer_max" yaml:"sync_buffer_max"`
	BatchMaxBytes     int `mapstructure:"batch_max_bytes" yaml:"batch_max_bytes"`
}

// Schema converts the engine section into a schema.EngineConfig.
func (c EngineConfig) Schema() schema.EngineConfig {
	return schema.EngineConfig{
		SyncTimeout:    time.Duration(c.SyncTimeoutMillis) * time.Millisecond,
		CarryMax:       c.CarryMax,
		ImageBufferMax: c.ImageBufferMax,
		SyncBufferMax:  c.SyncBufferMax,
		BatchMaxBytes:  c.BatchMaxBytes,
	}
}

// PTYConfig configures spawned pane processes.
type PTYConfig struct {
	Shell string            `mapstructure:"shell" yaml:"shell"`
	Term  string            `mapstructure:"term" yaml:"term"`
	Cols  int               `mapstructure:"cols" yaml:"cols"`
	Rows  int               `mapstructure:"rows" yaml:"rows"`
	Env   map[string]string `mapstructure:"env" yaml:"env"`
}

// SSHConfig configures the SSH attach server.
type SSHConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath string `mapstructure:"host_key_path" yaml:"host_key_path"`
}

// AuthConfig configures auth storage and seed users.
type AuthConfig struct {
	UserFile  string     `mapstructure:"user_file" yaml:"user_file"`
	SeedUsers []SeedUser `mapstructure:"seed_users" yaml:"seed_users"`
}

// LoggingConfig controls event logging behavior.
type LoggingConfig struct {
	DisableQueryEvents bool `mapstructure:"disable_query_events" yaml:"disable_query_events"`
}

// SeedUser seeds a user record in the auth store.
type SeedUser struct {
	Username     string `mapstructure:"username" yaml:"username"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret   string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".paneflow", "state"),
		Engine: EngineConfig{
			SyncTimeoutMillis: int(schema.DefaultSyncTimeout / time.Millisecond),
			CarryMax:          schema.DefaultCarryMax,
			ImageBufferMax:    schema.DefaultImageBufferMax,
			SyncBufferMax:     schema.DefaultSyncBufferMax,
			BatchMaxBytes:     schema.DefaultBatchMaxBytes,
		},
		PTY: PTYConfig{
			Shell: shell,
			Term:  "xterm-256color",
			Cols:  80,
			Rows:  24,
			Env:   map[string]string{},
		},
		SSH: SSHConfig{
			Addr:        ":27522",
			HostKeyPath: filepath.Join(home, ".paneflow", "ssh_host_key"),
		},
		Auth: AuthConfig{
			UserFile:  filepath.Join(home, ".paneflow", "users.json"),
			SeedUsers: []SeedUser{},
		},
		Logging: LoggingConfig{
			DisableQueryEvents: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".paneflow", "config.yaml"), nil
}
