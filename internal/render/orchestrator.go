package render

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/bus"
	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
	"github.com/ThreadClaw/ThreadClaw/internal/transform"
)

// Config carries the tunable rendering knobs.
type Config struct {
	FlushDelay        time.Duration
	RepurposeMaxChars int
	WorktreePath      string
}

// Conversation bundles the executor set owned by one chat thread.
type Conversation struct {
	ID       string
	ThreadID string

	transformer *transform.Transformer
	content     *ContentExecutor
	tasks       *TaskListExecutor
	questions   *QuestionExecutor
	subagents   *SubagentExecutor
	system      *SystemExecutor
}

// Orchestrator receives the raw event stream, transforms each event, and
// dispatches the resulting operations to the matching executor. Dispatch is
// fire-and-forget: the stream consumer never blocks on platform calls.
type Orchestrator struct {
	client     platform.Client
	tracker    *ops.PostTracker
	cfg        Config
	onAnswers  AnswerFunc
	onApproval ApprovalFunc

	mu    sync.RWMutex
	convs map[string]*Conversation
}

// NewOrchestrator creates an orchestrator. Callbacks may be nil.
func NewOrchestrator(client platform.Client, tracker *ops.PostTracker, cfg Config, onAnswers AnswerFunc, onApproval ApprovalFunc) *Orchestrator {
	return &Orchestrator{
		client:     client,
		tracker:    tracker,
		cfg:        cfg,
		onAnswers:  onAnswers,
		onApproval: onApproval,
		convs:      make(map[string]*Conversation),
	}
}

// Conversation returns (creating if needed) the executor set for convID.
func (o *Orchestrator) Conversation(convID, threadID string) *Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if conv, ok := o.convs[convID]; ok {
		return conv
	}
	tasks := NewTaskListExecutor(o.client, o.tracker, convID, threadID, o.cfg.RepurposeMaxChars)
	conv := &Conversation{
		ID:          convID,
		ThreadID:    threadID,
		transformer: transform.New(transform.WithWorktree(o.cfg.WorktreePath)),
		content:     NewContentExecutor(o.client, o.tracker, tasks, convID, threadID, o.cfg.FlushDelay),
		tasks:       tasks,
		questions:   NewQuestionExecutor(o.client, o.tracker, convID, threadID, o.onAnswers, o.onApproval),
		subagents:   NewSubagentExecutor(o.client, o.tracker, convID, threadID),
		system:      NewSystemExecutor(o.client, o.tracker, convID, threadID),
	}
	o.convs[convID] = conv
	return conv
}

// HandleEvent transforms one assistant event and dispatches its operations
// on an independent goroutine, returning immediately.
func (o *Orchestrator) HandleEvent(ev *bus.AssistantEvent) {
	conv := o.Conversation(ev.ConversationID, ev.ThreadID)
	operations := conv.transformer.Transform(ev.Event)
	if len(operations) == 0 {
		return
	}
	go o.dispatch(context.Background(), conv, operations)
}

// dispatch routes operations in the order the transformer produced them.
// The switch is exhaustive over ops.Kind; a new variant that is not routed
// here is a programming error and is logged loudly.
func (o *Orchestrator) dispatch(ctx context.Context, conv *Conversation, operations []ops.Operation) {
	for _, op := range operations {
		var err error
		switch op.Kind {
		case ops.KindAppendContent:
			conv.content.Append(op.Text)
			conv.content.ScheduleFlush()
		case ops.KindFlush:
			err = conv.content.Flush(ctx, op.Reason)
		case ops.KindTaskList:
			err = conv.tasks.Execute(ctx, op)
		case ops.KindQuestion:
			// Structural events land below any streamed text.
			_ = conv.content.Flush(ctx, FlushStructural)
			err = conv.questions.BeginQuestions(ctx, op)
		case ops.KindApproval:
			_ = conv.content.Flush(ctx, FlushStructural)
			err = conv.questions.BeginApproval(ctx, op)
		case ops.KindSubagent:
			_ = conv.content.Flush(ctx, FlushStructural)
			err = conv.subagents.Execute(ctx, op)
		case ops.KindSystemMessage:
			err = conv.system.Message(ctx, op.Level, op.Text)
		case ops.KindStatusUpdate:
			// Turn-end cleanup runs even when the update carries no usage
			// payload.
			_ = conv.content.Flush(ctx, FlushTurnEnd)
			_ = conv.tasks.ReconcileTurnEnd(ctx)
			err = conv.system.Status(ctx, op)
		case ops.KindLifecycle:
			err = conv.system.Lifecycle(ctx, op.Lifecycle)
		default:
			slog.Error("Unhandled operation kind", "kind", op.Kind, "conversation", conv.ID)
		}
		if err != nil {
			slog.Warn("Operation failed", "kind", op.Kind, "conversation", conv.ID, "error", err)
		}
	}
}

// HandleReaction routes a user reaction to the first executor that owns
// the post, in fixed priority order, so at most one executor reacts.
func (o *Orchestrator) HandleReaction(ctx context.Context, ev platform.ReactionEvent) bool {
	convID, ok := o.tracker.Owner(ev.PostID)
	if !ok {
		return false
	}
	o.mu.RLock()
	conv, ok := o.convs[convID]
	o.mu.RUnlock()
	if !ok {
		return false
	}
	if conv.questions.HandleReaction(ctx, ev) {
		return true
	}
	if conv.tasks.HandleReaction(ctx, ev) {
		return true
	}
	return conv.subagents.HandleReaction(ctx, ev)
}

// NotifyUserMessage relocates the task list below a follow-up user message.
func (o *Orchestrator) NotifyUserMessage(ctx context.Context, convID string) {
	o.mu.RLock()
	conv, ok := o.convs[convID]
	o.mu.RUnlock()
	if !ok {
		return
	}
	if err := conv.tasks.BumpToBottom(ctx); err != nil {
		slog.Warn("Task list bump failed", "conversation", convID, "error", err)
	}
}

// EndConversation stops per-conversation timers and releases tracker
// entries.
func (o *Orchestrator) EndConversation(convID string) {
	o.mu.Lock()
	conv, ok := o.convs[convID]
	if ok {
		delete(o.convs, convID)
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	conv.subagents.Close()
	o.tracker.Forget(convID)
}

// ConversationSnapshot is the read-only persistence view of one
// conversation's executor state.
type ConversationSnapshot struct {
	ID        string             `json:"id"`
	ThreadID  string             `json:"thread_id"`
	Content   ContentSnapshot    `json:"content"`
	TaskList  TaskListSnapshot   `json:"task_list"`
	Questions QuestionSnapshot   `json:"questions"`
	Subagents []SubagentSnapshot `json:"subagents,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Snapshots returns the persistence view of every live conversation.
func (o *Orchestrator) Snapshots() []ConversationSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ConversationSnapshot, 0, len(o.convs))
	for _, conv := range o.convs {
		out = append(out, ConversationSnapshot{
			ID:        conv.ID,
			ThreadID:  conv.ThreadID,
			Content:   conv.content.Snapshot(),
			TaskList:  conv.tasks.Snapshot(),
			Questions: conv.questions.Snapshot(),
			Subagents: conv.subagents.Snapshot(),
			UpdatedAt: time.Now(),
		})
	}
	return out
}
