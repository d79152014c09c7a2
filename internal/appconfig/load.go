package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("engine.sync_timeout_ms", cfg.Engine.SyncTimeoutMillis)
	v.SetDefault("engine.carry_max", cfg.Engine.CarryMax)
	v.SetDefault("engine.image_buffer_max", cfg.Engine.ImageBufferMax)
	v.SetDefault("engine.sync_buffer_max", cfg.Engine.SyncBufferMax)
	v.SetDefault("engine.batch_max_bytes", cfg.Engine.BatchMaxBytes)
	v.SetDefault("pty.shell", cfg.PTY.Shell)
	v.SetDefault("pty.term", cfg.PTY.Term)
	v.SetDefault("pty.cols", cfg.PTY.Cols)
	v.SetDefault("pty.rows", cfg.PTY.Rows)
	v.SetDefault("pty.env", cfg.PTY.Env)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("auth.user_file", cfg.Auth.UserFile)
	v.SetDefault("auth.seed_users", cfg.Auth.SeedUsers)
	v.SetDefault("logging.disable_query_events", cfg.Logging.DisableQueryEvents)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		// An explicitly set path that does not exist surfaces as a plain
		// os error rather than ConfigFileNotFoundError.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateEngineConfig(cfg.Engine); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.SyncTimeoutMillis < 0 {
		return fmt.Errorf("engine.sync_timeout_ms must not be negative")
	}
	if cfg.CarryMax != 0 && cfg.CarryMax < 64 {
		return fmt.Errorf("engine.carry_max must be at least 64 bytes")
	}
	if cfg.BatchMaxBytes < 0 {
		return fmt.Errorf("engine.batch_max_bytes must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.PTY.Shell = expandEnv(cfg.PTY.Shell)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.Auth.UserFile = expandEnv(cfg.Auth.UserFile)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
