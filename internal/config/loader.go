package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".wenko"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("WENKO_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("WENKO_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("WENKO_PATHS", &cfg.Paths)
	envconfig.Process("WENKO_MODEL", &cfg.Model)
	envconfig.Process("WENKO_PROVIDER", &cfg.Provider)
	envconfig.Process("WENKO_CASCADE", &cfg.Cascade)
	envconfig.Process("WENKO_SUSPENSION", &cfg.Suspension)
	envconfig.Process("WENKO_TOOLS", &cfg.Tools)
	envconfig.Process("WENKO_EMOTION", &cfg.Emotion)
	envconfig.Process("WENKO_MEMORY", &cfg.Memory)

	// Fallback for API Key
	if cfg.Provider.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Provider.APIKey = key
		} else if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
			cfg.Provider.APIKey = key
		}
	}

	// Expand ~ in paths
	expandHome := func(p *string) {
		if strings.HasPrefix(*p, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				*p = filepath.Join(home, (*p)[1:])
			}
		}
	}
	expandHome(&cfg.Paths.Home)
	expandHome(&cfg.Paths.StateDB)
	expandHome(&cfg.Paths.Conversations)

	if cfg.Cascade.ClassifierThreshold <= 0 || cfg.Cascade.ClassifierThreshold > 1 {
		cfg.Cascade.ClassifierThreshold = 0.6
	}
	if cfg.Model.MaxIterations <= 0 {
		cfg.Model.MaxIterations = 6
	}
	if cfg.Suspension.TTL <= 0 {
		cfg.Suspension.TTL = DefaultConfig().Suspension.TTL
	}
	if cfg.Tools.InvokeTimeout <= 0 {
		cfg.Tools.InvokeTimeout = DefaultConfig().Tools.InvokeTimeout
	}
	if cfg.Emotion.HistoryLimit <= 0 {
		cfg.Emotion.HistoryLimit = 8
	}
	if cfg.Memory.RetrieveLimit <= 0 {
		cfg.Memory.RetrieveLimit = 5
	}

	return cfg, nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
