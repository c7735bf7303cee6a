package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".forgeloop"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file. FORGELOOP_CONFIG
// overrides the default ~/.forgeloop/config.json.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("FORGELOOP_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults. A missing config file is not
// an error; a malformed one is.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		data = substituteEnv(data)
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Override with environment variables per group.
	if err := processEnv(cfg); err != nil {
		return nil, err
	}

	expandHome(&cfg.Paths.StateRoot)
	expandHome(&cfg.Journal.DBPath)

	if cfg.Broker.MaxHistory <= 0 {
		cfg.Broker.MaxHistory = DefaultConfig().Broker.MaxHistory
	}
	if strings.TrimSpace(cfg.Relay.TopicPrefix) == "" {
		cfg.Relay.TopicPrefix = DefaultConfig().Relay.TopicPrefix
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "error":
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	default:
		cfg.Log.Level = "info"
	}

	return cfg, nil
}

func processEnv(cfg *Config) error {
	groups := []struct {
		prefix string
		target any
	}{
		{"FORGELOOP_PATHS", &cfg.Paths},
		{"FORGELOOP_BROKER", &cfg.Broker},
		{"FORGELOOP_JOURNAL", &cfg.Journal},
		{"FORGELOOP_RELAY", &cfg.Relay},
		{"FORGELOOP_NOTIFY_SLACK", &cfg.Notify.Slack},
		{"FORGELOOP_LOG", &cfg.Log},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return fmt.Errorf("env overrides for %s: %w", g.prefix, err)
		}
	}
	return nil
}

func expandHome(p *string) {
	if strings.HasPrefix(*p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			*p = filepath.Join(home, (*p)[1:])
		}
	}
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnv replaces ${VAR} references in the raw config with the
// variable's value. Unset variables are left untouched.
func substituteEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		if value, ok := os.LookupEnv(string(parts[1])); ok {
			return []byte(value)
		}
		return match
	})
}
