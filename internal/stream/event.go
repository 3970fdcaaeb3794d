// Package stream defines the typed event protocol emitted by the assistant
// process on stdout (one JSON object per line) and the reply payloads the
// bridge writes back on stdin.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event type discriminants. Unknown types must be tolerated by consumers.
const (
	TypeAssistant  = "assistant"
	TypeUser       = "user"
	TypeToolUse    = "tool_use"
	TypeToolResult = "tool_result"
	TypeResult     = "result"
	TypeSystem     = "system"
)

// SubtypeProcessExit marks a synthetic system event fabricated when the
// assistant process exits. It never appears on the wire.
const SubtypeProcessExit = "process_exit"

// Tool names that get specialized rendering instead of a generic text line.
const (
	ToolTodoWrite       = "TodoWrite"
	ToolTask            = "Task"
	ToolAskUserQuestion = "AskUserQuestion"
	ToolExitPlanMode    = "ExitPlanMode"
)

// Block is one content block inside an assistant or user message.
type Block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Message is the message envelope carried by assistant and user events.
type Message struct {
	Role    string  `json:"role,omitempty"`
	Model   string  `json:"model,omitempty"`
	Content []Block `json:"content,omitempty"`
}

// Usage is the token accounting on a result event.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	CacheReadTokens int `json:"cache_read_input_tokens"`
}

// Event is one line of the assistant's stream-json output. It is a
// discriminated record: Type selects which fields carry meaning.
type Event struct {
	Type      string   `json:"type"`
	Subtype   string   `json:"subtype,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Message   *Message `json:"message,omitempty"`

	// Standalone tool_use / tool_result fields.
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Content   string          `json:"content,omitempty"`

	// Result (turn-end) fields.
	Result       string  `json:"result,omitempty"`
	Model        string  `json:"model,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
	Usage        *Usage  `json:"usage,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
	NumTurns     int     `json:"num_turns,omitempty"`
}

// Decode parses one stream line into an Event. Lines that are not JSON
// objects are rejected; unknown event types decode fine and are ignored
// downstream.
func Decode(line []byte) (Event, error) {
	var ev Event
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return ev, fmt.Errorf("not a stream event: %q", truncate(trimmed, 40))
	}
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return ev, fmt.Errorf("decode stream event: %w", err)
	}
	return ev, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// TodoItem is one entry of a TodoWrite tool call.
type TodoItem struct {
	Content    string `json:"content"`
	ActiveForm string `json:"activeForm,omitempty"`
	Status     string `json:"status"`
}

// TodoWriteInput is the payload of the TodoWrite tool.
type TodoWriteInput struct {
	Todos []TodoItem `json:"todos"`
}

// TaskInput is the payload of the Task (sub-task spawn) tool.
type TaskInput struct {
	Description  string `json:"description"`
	Prompt       string `json:"prompt"`
	SubagentType string `json:"subagent_type"`
}

// QuestionOptionSpec is one selectable option of a question.
type QuestionOptionSpec struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// QuestionSpec is one question of an AskUserQuestion tool call.
type QuestionSpec struct {
	Question    string               `json:"question"`
	Header      string               `json:"header,omitempty"`
	Options     []QuestionOptionSpec `json:"options"`
	MultiSelect bool                 `json:"multiSelect,omitempty"`
}

// AskUserQuestionInput is the payload of the AskUserQuestion tool.
type AskUserQuestionInput struct {
	Questions []QuestionSpec `json:"questions"`
}

// ExitPlanModeInput is the payload of the ExitPlanMode tool.
type ExitPlanModeInput struct {
	Plan string `json:"plan,omitempty"`
}

// AnswerSet is the reply sent to the assistant when a question flow ends.
type AnswerSet struct {
	ToolUseID string   `json:"tool_use_id"`
	Answers   []string `json:"answers"`
}

// ApprovalDecision is the reply sent when an approval resolves.
type ApprovalDecision struct {
	ToolUseID string `json:"tool_use_id"`
	Approved  bool   `json:"approved"`
}
