package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// ConfigPath returns the config file location. THREADCLAW_CONFIG wins
// when set; otherwise the file lives under the ThreadClaw home.
func ConfigPath() string {
	if explicit := strings.TrimSpace(os.Getenv("THREADCLAW_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	return filepath.Join(HomeDir(), "config.json")
}

// HomeDir returns the ThreadClaw state directory, honoring
// THREADCLAW_HOME when set and defaulting to ~/.threadclaw.
func HomeDir() string {
	if override := strings.TrimSpace(os.Getenv("THREADCLAW_HOME")); override != "" {
		return expandHome(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".threadclaw"
	}
	return filepath.Join(home, ".threadclaw")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Load resolves the configuration. Environment variables override the
// config file, which overrides defaults. A missing config file is not
// an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := ConfigPath()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env overrides
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	fillPathDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	groups := []struct {
		prefix string
		target interface{}
	}{
		{"THREADCLAW_PATHS", &cfg.Paths},
		{"THREADCLAW_SLACK", &cfg.Slack},
		{"THREADCLAW_ASSISTANT", &cfg.Assistant},
		{"THREADCLAW_RENDER", &cfg.Render},
		{"THREADCLAW_LOG", &cfg.Log},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return fmt.Errorf("apply env overrides %s: %w", g.prefix, err)
		}
	}
	return nil
}

func fillPathDefaults(cfg *Config) {
	if cfg.Paths.Home == "" {
		cfg.Paths.Home = HomeDir()
	} else {
		cfg.Paths.Home = expandHome(cfg.Paths.Home)
	}
	if cfg.Paths.SessionsDir == "" {
		cfg.Paths.SessionsDir = filepath.Join(cfg.Paths.Home, "sessions")
	} else {
		cfg.Paths.SessionsDir = expandHome(cfg.Paths.SessionsDir)
	}
	if cfg.Paths.DBPath == "" {
		cfg.Paths.DBPath = filepath.Join(cfg.Paths.Home, "threadclaw.db")
	} else {
		cfg.Paths.DBPath = expandHome(cfg.Paths.DBPath)
	}
	if cfg.Paths.Worktree != "" {
		cfg.Paths.Worktree = expandHome(cfg.Paths.Worktree)
	}
}

// Save writes the configuration to the config file, creating the
// directory when needed.
func Save(cfg *Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates a directory when it does not exist yet.
func EnsureDir(path string) error {
	if path == "" {
		return fmt.Errorf("empty directory path")
	}
	return os.MkdirAll(path, 0755)
}

// Validate reports configuration problems that would prevent startup.
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot token is required (THREADCLAW_SLACK_BOT_TOKEN)")
	}
	if c.Slack.AppToken == "" {
		return fmt.Errorf("slack app token is required (THREADCLAW_SLACK_APP_TOKEN)")
	}
	if !strings.HasPrefix(c.Slack.AppToken, "xapp-") {
		return fmt.Errorf("slack app token must start with xapp-")
	}
	if c.Assistant.Command == "" {
		return fmt.Errorf("assistant command is required")
	}
	return nil
}
