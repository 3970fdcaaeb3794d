package store

import "time"

// PostRecord maps one platform post to the conversation and executor that
// produced it.
type PostRecord struct {
	ID             int64     `json:"id"`
	PostID         string    `json:"post_id"`
	ConversationID string    `json:"conversation_id"`
	Kind           string    `json:"kind"` // content, task_list, question, approval, subagent, system
	CreatedAt      time.Time `json:"created_at"`
}

// TurnRecord is the accounting row written at each turn end.
type TurnRecord struct {
	ID              int64     `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	Model           string    `json:"model,omitempty"`
	CostUSD         float64   `json:"cost_usd"`
	InputTokens     int       `json:"input_tokens"`
	OutputTokens    int       `json:"output_tokens"`
	CacheReadTokens int       `json:"cache_read_tokens"`
	DurationMS      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// ApprovalRecord is a resolved (or still pending) approval request.
type ApprovalRecord struct {
	ID             int64      `json:"id"`
	ToolUseID      string     `json:"tool_use_id"`
	ConversationID string     `json:"conversation_id"`
	Kind           string     `json:"kind"` // plan, action
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"` // pending, approved, denied
	CreatedAt      time.Time  `json:"created_at"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
}

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// AnswerRecord is one answered question from an interactive flow.
type AnswerRecord struct {
	ID             int64     `json:"id"`
	ToolUseID      string    `json:"tool_use_id"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	CreatedAt      time.Time `json:"created_at"`
}

// Totals aggregates turn accounting for the status command.
type Totals struct {
	Turns        int     `json:"turns"`
	CostUSD      float64 `json:"cost_usd"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

const Schema = `
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id TEXT UNIQUE NOT NULL,
	conversation_id TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'content',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_posts_conversation ON posts(conversation_id);

CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	model TEXT DEFAULT '',
	cost_usd REAL NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id);
CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);

CREATE TABLE IF NOT EXISTS approvals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tool_use_id TEXT UNIQUE NOT NULL,
	conversation_id TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'action',
	description TEXT DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	responded_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);
CREATE INDEX IF NOT EXISTS idx_approvals_conversation ON approvals(conversation_id);

CREATE TABLE IF NOT EXISTS answers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tool_use_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_answers_tool_use ON answers(tool_use_id);
`
