// Package ops defines the closed set of rendering operations produced by the
// transformer, plus the tracker that maps platform posts back to their
// owning conversation.
package ops

// Kind discriminates operation variants. Dispatch switches on Kind and
// treats an unknown value as a programming error.
type Kind int

const (
	KindAppendContent Kind = iota
	KindFlush
	KindTaskList
	KindQuestion
	KindApproval
	KindSubagent
	KindSystemMessage
	KindStatusUpdate
	KindLifecycle
)

func (k Kind) String() string {
	switch k {
	case KindAppendContent:
		return "append_content"
	case KindFlush:
		return "flush"
	case KindTaskList:
		return "task_list"
	case KindQuestion:
		return "question"
	case KindApproval:
		return "approval"
	case KindSubagent:
		return "subagent"
	case KindSystemMessage:
		return "system_message"
	case KindStatusUpdate:
		return "status_update"
	case KindLifecycle:
		return "lifecycle"
	default:
		return "unknown"
	}
}

// TaskListAction selects between a live update and a final render.
type TaskListAction string

const (
	TaskListUpdate   TaskListAction = "update"
	TaskListComplete TaskListAction = "complete"
)

// SubagentAction selects between sub-task start and completion.
type SubagentAction string

const (
	SubagentStart    SubagentAction = "start"
	SubagentComplete SubagentAction = "complete"
)

// ApprovalKind distinguishes plan approval from a generic action approval.
type ApprovalKind string

const (
	ApprovalPlan   ApprovalKind = "plan"
	ApprovalAction ApprovalKind = "action"
)

// Level is the severity of a system message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// TaskState mirrors the assistant's todo item states.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskInProgress TaskState = "in_progress"
	TaskCompleted  TaskState = "completed"
)

// Task is one todo-list item.
type Task struct {
	Content    string
	ActiveForm string
	State      TaskState
}

// QuestionOption is a selectable answer for one question.
type QuestionOption struct {
	Label       string
	Description string
}

// Question is one prompt in a multi-question flow.
type Question struct {
	Header  string
	Prompt  string
	Options []QuestionOption
	Answer  string
}

// Usage is the token accounting attached to a turn-end status update.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
}

// Operation is an immutable, tagged rendering intent. Exactly one variant is
// active per value, selected by Kind; unused fields stay zero.
type Operation struct {
	Kind Kind

	// AppendContent, SystemMessage
	Text string

	// Flush
	Reason string

	// TaskList
	TaskAction TaskListAction
	Tasks      []Task

	// Question, Approval, Subagent
	ToolUseID string

	// Question
	Questions    []Question
	CurrentIndex int

	// Approval
	Approval ApprovalKind

	// Subagent
	SubAction   SubagentAction
	Description string
	AgentType   string

	// SystemMessage
	Level Level

	// StatusUpdate
	Model      string
	CostUSD    float64
	Usage      *Usage
	DurationMS int64

	// Lifecycle
	Lifecycle string
}

func AppendContent(text string) Operation {
	return Operation{Kind: KindAppendContent, Text: text}
}

func Flush(reason string) Operation {
	return Operation{Kind: KindFlush, Reason: reason}
}

func TaskList(action TaskListAction, tasks []Task) Operation {
	return Operation{Kind: KindTaskList, TaskAction: action, Tasks: tasks}
}

func NewQuestion(toolUseID string, questions []Question) Operation {
	return Operation{Kind: KindQuestion, ToolUseID: toolUseID, Questions: questions, CurrentIndex: 0}
}

func NewApproval(toolUseID string, kind ApprovalKind, description string) Operation {
	return Operation{Kind: KindApproval, ToolUseID: toolUseID, Approval: kind, Description: description}
}

func Subagent(toolUseID string, action SubagentAction, description, agentType string) Operation {
	return Operation{Kind: KindSubagent, ToolUseID: toolUseID, SubAction: action, Description: description, AgentType: agentType}
}

func SystemMessage(level Level, text string) Operation {
	return Operation{Kind: KindSystemMessage, Level: level, Text: text}
}

func StatusUpdate(model string, costUSD float64, usage *Usage, durationMS int64) Operation {
	return Operation{Kind: KindStatusUpdate, Model: model, CostUSD: costUSD, Usage: usage, DurationMS: durationMS}
}

func Lifecycle(event string) Operation {
	return Operation{Kind: KindLifecycle, Lifecycle: event}
}
