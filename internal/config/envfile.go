package config

import (
	"os"
	"path/filepath"
	"strings"
)

// LoadEnvFiles applies env files before envconfig runs. Variables already
// present in the process environment always win. When THREADCLAW_ENV_FILE
// is set, that file is the only one consulted; otherwise the default
// locations under the user's home directory are tried in order.
func LoadEnvFiles() {
	if explicit := strings.TrimSpace(os.Getenv("THREADCLAW_ENV_FILE")); explicit != "" {
		_ = loadEnvFile(explicit)
		return
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	_ = loadEnvFile(filepath.Join(home, ".config", "threadclaw", "env"))
	_ = loadEnvFile(filepath.Join(home, ".threadclaw", "env"))
}

func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, val, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return nil
}

// parseEnvLine accepts KEY=value with optional "export " prefix, optional
// single or double quotes around the value, and ignores blanks and comments.
func parseEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, val, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 {
		if c := val[0]; (c == '"' || c == '\'') && val[len(val)-1] == c {
			val = val[1 : len(val)-1]
		}
	}
	return key, val, true
}
