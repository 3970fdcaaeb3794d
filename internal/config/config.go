package config

// Config is the full ThreadClaw configuration. Values are resolved in
// priority order: environment variables, then the config file, then
// built-in defaults.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Slack     SlackConfig     `json:"slack"`
	Assistant AssistantConfig `json:"assistant"`
	Render    RenderConfig    `json:"render"`
	Log       LogConfig       `json:"log"`
}

// PathsConfig locates the state directories on disk. Home carries no
// envconfig alt name so the bare HOME variable cannot override it; only
// THREADCLAW_PATHS_HOME applies.
type PathsConfig struct {
	Home        string `json:"home"`
	SessionsDir string `json:"sessions_dir" envconfig:"SESSIONS_DIR"`
	DBPath      string `json:"db_path" envconfig:"DB_PATH"`
	Worktree    string `json:"worktree" envconfig:"WORKTREE"`
}

// SlackConfig holds the Socket Mode credentials and channel binding.
type SlackConfig struct {
	BotToken string `json:"bot_token" envconfig:"BOT_TOKEN"`
	AppToken string `json:"app_token" envconfig:"APP_TOKEN"`
	Channel  string `json:"channel" envconfig:"CHANNEL"`
	Debug    bool   `json:"debug" envconfig:"DEBUG"`
}

// AssistantConfig controls how the coding assistant process is spawned.
type AssistantConfig struct {
	Command          string   `json:"command" envconfig:"COMMAND"`
	Args             []string `json:"args" envconfig:"ARGS"`
	WorkDir          string   `json:"work_dir" envconfig:"WORK_DIR"`
	StopGraceSeconds int      `json:"stop_grace_seconds" envconfig:"STOP_GRACE_SECONDS"`
}

// RenderConfig tunes how streamed output is shaped into posts.
type RenderConfig struct {
	FlushDelayMS      int `json:"flush_delay_ms" envconfig:"FLUSH_DELAY_MS"`
	RepurposeMaxChars int `json:"repurpose_max_chars" envconfig:"REPURPOSE_MAX_CHARS"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level  string `json:"level" envconfig:"LEVEL"`
	Format string `json:"format" envconfig:"FORMAT"`
}

// DefaultConfig returns the built-in defaults. Path fields are left
// empty here and filled in by Load once the home directory is known.
func DefaultConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Command:          "claude",
			StopGraceSeconds: 10,
		},
		Render: RenderConfig{
			FlushDelayMS: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
