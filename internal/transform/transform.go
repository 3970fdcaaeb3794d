// Package transform maps assistant stream events to rendering operations.
package transform

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/breaker"
	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/stream"
)

// DefaultElapsedThreshold is the minimum tool runtime before a completion
// glyph carries an elapsed-time annotation.
const DefaultElapsedThreshold = 5 * time.Second

var thinkingRe = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)

// Transformer turns one stream event into zero or more operations. It is
// stateless except for the tool start-time table needed to compute elapsed
// annotations on tool results, and the set of tool-use ids that spawned
// subagents so their results close the registry entry instead of rendering
// a generic marker.
type Transformer struct {
	mu        sync.Mutex
	starts    map[string]time.Time
	subagents map[string]struct{}

	renderTool       ToolRenderer
	worktree         string
	elapsedThreshold time.Duration
	now              func() time.Time
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithWorktree trims the given path prefix from rendered file paths.
func WithWorktree(path string) Option {
	return func(t *Transformer) { t.worktree = path }
}

// WithToolRenderer replaces the shared tool-rendering capability.
func WithToolRenderer(r ToolRenderer) Option {
	return func(t *Transformer) { t.renderTool = r }
}

// WithElapsedThreshold overrides the elapsed-annotation threshold.
func WithElapsedThreshold(d time.Duration) Option {
	return func(t *Transformer) { t.elapsedThreshold = d }
}

func withClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// New creates a Transformer.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		starts:           make(map[string]time.Time),
		subagents:        make(map[string]struct{}),
		renderTool:       RenderToolUse,
		elapsedThreshold: DefaultElapsedThreshold,
		now:              time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transform maps ev to its operations. Unknown event types yield nil.
func (t *Transformer) Transform(ev stream.Event) []ops.Operation {
	switch ev.Type {
	case stream.TypeAssistant:
		return t.transformAssistant(ev)
	case stream.TypeToolUse:
		return t.transformToolUse(ev)
	case stream.TypeToolResult:
		return t.transformToolResult(ev.ToolUseID, ev.IsError)
	case stream.TypeUser:
		return t.transformUser(ev)
	case stream.TypeResult:
		// Always emitted, even without a usage payload: downstream relies
		// on status-update for end-of-turn cleanup.
		return []ops.Operation{t.statusUpdate(ev)}
	case stream.TypeSystem:
		if ev.Subtype == "init" {
			return []ops.Operation{ops.Lifecycle("init")}
		}
		return nil
	default:
		return nil
	}
}

func (t *Transformer) transformAssistant(ev stream.Event) []ops.Operation {
	if ev.Message == nil {
		return nil
	}
	var parts []string
	var special []ops.Operation
	for _, b := range ev.Message.Content {
		switch b.Type {
		case "text":
			if text := strings.TrimSpace(thinkingRe.ReplaceAllString(b.Text, "")); text != "" {
				parts = append(parts, text)
			}
		case "tool_use":
			t.recordStart(b.ID)
			if op, ok := t.specialTool(b.ID, b.Name, b.Input); ok {
				special = append(special, op)
			} else {
				parts = append(parts, t.renderTool(b.Name, b.Input, t.worktree))
			}
		}
	}
	var out []ops.Operation
	if len(parts) > 0 {
		out = append(out, ops.AppendContent(strings.Join(parts, "\n\n")))
	}
	return append(out, special...)
}

func (t *Transformer) transformToolUse(ev stream.Event) []ops.Operation {
	t.recordStart(ev.ToolUseID)
	if op, ok := t.specialTool(ev.ToolUseID, ev.ToolName, ev.ToolInput); ok {
		return []ops.Operation{op}
	}
	return []ops.Operation{ops.AppendContent(t.renderTool(ev.ToolName, ev.ToolInput, t.worktree))}
}

func (t *Transformer) transformToolResult(toolUseID string, isError bool) []ops.Operation {
	if t.takeSubagent(toolUseID) {
		t.takeStart(toolUseID)
		return []ops.Operation{ops.Subagent(toolUseID, ops.SubagentComplete, "", "")}
	}
	marker := breaker.ToolMarkerOK
	if isError {
		marker = breaker.ToolMarkerErr
	}
	if elapsed, ok := t.takeStart(toolUseID); ok && elapsed >= t.elapsedThreshold {
		marker = fmt.Sprintf("%s (%s)", marker, shortDuration(elapsed))
	}
	return []ops.Operation{
		ops.AppendContent(marker),
		ops.Flush("tool_result"),
	}
}

func (t *Transformer) transformUser(ev stream.Event) []ops.Operation {
	if ev.Message == nil {
		return nil
	}
	var out []ops.Operation
	for _, b := range ev.Message.Content {
		if b.Type == "tool_result" {
			out = append(out, t.transformToolResult(b.ToolUseID, b.IsError)...)
		}
	}
	return out
}

func (t *Transformer) statusUpdate(ev stream.Event) ops.Operation {
	var usage *ops.Usage
	if ev.Usage != nil {
		usage = &ops.Usage{
			InputTokens:     ev.Usage.InputTokens,
			OutputTokens:    ev.Usage.OutputTokens,
			CacheReadTokens: ev.Usage.CacheReadTokens,
		}
	}
	return ops.StatusUpdate(ev.Model, ev.TotalCostUSD, usage, ev.DurationMS)
}

func (t *Transformer) specialTool(toolUseID, name string, input []byte) (ops.Operation, bool) {
	switch name {
	case stream.ToolTodoWrite:
		return todoListOp(input), true
	case stream.ToolTask:
		var in stream.TaskInput
		decodeInput(input, &in)
		t.recordSubagent(toolUseID)
		return ops.Subagent(toolUseID, ops.SubagentStart, in.Description, in.SubagentType), true
	case stream.ToolAskUserQuestion:
		var in stream.AskUserQuestionInput
		decodeInput(input, &in)
		qs := make([]ops.Question, 0, len(in.Questions))
		for _, q := range in.Questions {
			oq := ops.Question{Header: q.Header, Prompt: q.Question}
			for _, opt := range q.Options {
				oq.Options = append(oq.Options, ops.QuestionOption{Label: opt.Label, Description: opt.Description})
			}
			qs = append(qs, oq)
		}
		return ops.NewQuestion(toolUseID, qs), true
	case stream.ToolExitPlanMode:
		var in stream.ExitPlanModeInput
		decodeInput(input, &in)
		return ops.NewApproval(toolUseID, ops.ApprovalPlan, in.Plan), true
	}
	return ops.Operation{}, false
}

func todoListOp(input []byte) ops.Operation {
	var in stream.TodoWriteInput
	decodeInput(input, &in)
	tasks := make([]ops.Task, 0, len(in.Todos))
	allDone := len(in.Todos) > 0
	for _, todo := range in.Todos {
		state := ops.TaskState(todo.Status)
		if state != ops.TaskCompleted {
			allDone = false
		}
		tasks = append(tasks, ops.Task{Content: todo.Content, ActiveForm: todo.ActiveForm, State: state})
	}
	action := ops.TaskListUpdate
	if allDone {
		action = ops.TaskListComplete
	}
	return ops.TaskList(action, tasks)
}

func (t *Transformer) recordStart(toolUseID string) {
	if toolUseID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.starts[toolUseID] = t.now()
}

func (t *Transformer) recordSubagent(toolUseID string) {
	if toolUseID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subagents[toolUseID] = struct{}{}
}

func (t *Transformer) takeSubagent(toolUseID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subagents[toolUseID]
	delete(t.subagents, toolUseID)
	return ok
}

func (t *Transformer) takeStart(toolUseID string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start, ok := t.starts[toolUseID]
	if !ok {
		return 0, false
	}
	delete(t.starts, toolUseID)
	return t.now().Sub(start), true
}

func shortDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
