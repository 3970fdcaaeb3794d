package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
)

// AnswerFunc receives the collected answers when a question set finishes.
type AnswerFunc func(toolUseID string, answers []string)

// ApprovalFunc receives the decision when an approval resolves.
type ApprovalFunc func(toolUseID string, approved bool)

type questionSet struct {
	toolUseID string
	questions []ops.Question
	index     int
	postID    string
}

type approvalState struct {
	toolUseID string
	kind      ops.ApprovalKind
	postID    string
}

// QuestionExecutor owns interactive multi-step prompts: numbered-reaction
// question flows and thumbs-up/down approvals. A question post, once
// created, is never recreated, so no create-or-update lock is needed here;
// a plain mutex guards the registries.
type QuestionExecutor struct {
	client     platform.Client
	tracker    *ops.PostTracker
	convID     string
	threadID   string
	onAnswers  AnswerFunc
	onApproval ApprovalFunc

	mu        sync.Mutex
	sets      map[string]*questionSet   // keyed by tool-use id
	approvals map[string]*approvalState // keyed by tool-use id
	byPost    map[string]string         // post id -> tool-use id
}

// NewQuestionExecutor creates the executor. Callbacks may be nil.
func NewQuestionExecutor(client platform.Client, tracker *ops.PostTracker, convID, threadID string, onAnswers AnswerFunc, onApproval ApprovalFunc) *QuestionExecutor {
	return &QuestionExecutor{
		client:     client,
		tracker:    tracker,
		convID:     convID,
		threadID:   threadID,
		onAnswers:  onAnswers,
		onApproval: onApproval,
		sets:       make(map[string]*questionSet),
		approvals:  make(map[string]*approvalState),
		byPost:     make(map[string]string),
	}
}

// BeginQuestions starts a question flow at index 0. Duplicate creation for
// a tool-use id that is still pending is rejected.
func (e *QuestionExecutor) BeginQuestions(ctx context.Context, op ops.Operation) error {
	if len(op.Questions) == 0 {
		return nil
	}
	e.mu.Lock()
	if _, exists := e.sets[op.ToolUseID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("question flow already pending for %s", op.ToolUseID)
	}
	set := &questionSet{toolUseID: op.ToolUseID, questions: op.Questions, index: op.CurrentIndex}
	e.sets[op.ToolUseID] = set
	e.mu.Unlock()

	return e.postQuestion(ctx, set)
}

// BeginApproval renders a pending approval post.
func (e *QuestionExecutor) BeginApproval(ctx context.Context, op ops.Operation) error {
	e.mu.Lock()
	if _, exists := e.approvals[op.ToolUseID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("approval already pending for %s", op.ToolUseID)
	}
	st := &approvalState{toolUseID: op.ToolUseID, kind: op.Approval}
	e.approvals[op.ToolUseID] = st
	e.mu.Unlock()

	text := renderApproval(op)
	postID, err := e.client.CreateInteractivePost(ctx, e.threadID, text,
		[]string{platform.ReactionApprove, platform.ReactionDeny})
	if err != nil {
		e.mu.Lock()
		delete(e.approvals, op.ToolUseID)
		e.mu.Unlock()
		return fmt.Errorf("create approval post: %w", err)
	}
	e.mu.Lock()
	st.postID = postID
	e.byPost[postID] = op.ToolUseID
	e.mu.Unlock()
	e.tracker.Track(postID, e.convID, "approval")
	return nil
}

// Cancel drops a pending flow for toolUseID, if any.
func (e *QuestionExecutor) Cancel(toolUseID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if set, ok := e.sets[toolUseID]; ok {
		delete(e.byPost, set.postID)
		delete(e.sets, toolUseID)
	}
	if st, ok := e.approvals[toolUseID]; ok {
		delete(e.byPost, st.postID)
		delete(e.approvals, toolUseID)
	}
}

// OwnsPost reports whether postID belongs to a pending flow.
func (e *QuestionExecutor) OwnsPost(postID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.byPost[postID]
	return ok
}

// HandleReaction routes a reaction to the owning flow. Decisions are
// edge-triggered: only the added transition matters.
func (e *QuestionExecutor) HandleReaction(ctx context.Context, ev platform.ReactionEvent) bool {
	e.mu.Lock()
	toolUseID, ok := e.byPost[ev.PostID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	if !ev.Added {
		e.mu.Unlock()
		return true
	}
	if set, isSet := e.sets[toolUseID]; isSet {
		e.mu.Unlock()
		e.answer(ctx, set, ev.Name)
		return true
	}
	st, isApproval := e.approvals[toolUseID]
	e.mu.Unlock()
	if isApproval {
		e.resolveApproval(ctx, st, ev.Name)
	}
	return true
}

func (e *QuestionExecutor) answer(ctx context.Context, set *questionSet, reaction string) {
	idx := platform.OptionIndex(reaction)
	if idx < 0 {
		return
	}
	e.mu.Lock()
	if set.index >= len(set.questions) {
		e.mu.Unlock()
		return
	}
	q := &set.questions[set.index]
	if idx >= len(q.Options) {
		e.mu.Unlock()
		return
	}
	q.Answer = q.Options[idx].Label
	set.index++
	done := set.index >= len(set.questions)
	e.mu.Unlock()

	if !done {
		// The answered post stays as a record; the next question gets its
		// own post.
		if err := e.postQuestion(ctx, set); err != nil {
			slog.Warn("Next question post failed", "tool_use_id", set.toolUseID, "error", err)
		}
		return
	}

	answers := make([]string, 0, len(set.questions))
	for _, q := range set.questions {
		answers = append(answers, q.Answer)
	}
	e.mu.Lock()
	delete(e.sets, set.toolUseID)
	delete(e.byPost, set.postID)
	e.mu.Unlock()
	if e.onAnswers != nil {
		e.onAnswers(set.toolUseID, answers)
	}
}

func (e *QuestionExecutor) resolveApproval(ctx context.Context, st *approvalState, reaction string) {
	var approved bool
	switch reaction {
	case platform.ReactionApprove:
		approved = true
	case platform.ReactionDeny:
		approved = false
	default:
		return
	}
	e.mu.Lock()
	if _, still := e.approvals[st.toolUseID]; !still {
		e.mu.Unlock()
		return
	}
	delete(e.approvals, st.toolUseID)
	delete(e.byPost, st.postID)
	e.mu.Unlock()

	note := "✓ approved"
	ack := "white_check_mark"
	if !approved {
		note = "✗ denied"
		ack = "x"
	}
	if err := e.client.AddReaction(ctx, st.postID, ack); err != nil {
		slog.Debug("Approval ack reaction failed", "post_id", st.postID, "error", err)
	}
	slog.Info("Approval resolved", "tool_use_id", st.toolUseID, "decision", note)
	if e.onApproval != nil {
		e.onApproval(st.toolUseID, approved)
	}
}

func (e *QuestionExecutor) postQuestion(ctx context.Context, set *questionSet) error {
	e.mu.Lock()
	idx := set.index
	q := set.questions[idx]
	total := len(set.questions)
	e.mu.Unlock()

	reactions := platform.NumberReactions
	if len(q.Options) < len(reactions) {
		reactions = reactions[:len(q.Options)]
	}
	postID, err := e.client.CreateInteractivePost(ctx, e.threadID, renderQuestion(q, idx, total), reactions)
	if err != nil {
		return fmt.Errorf("create question post: %w", err)
	}
	e.mu.Lock()
	delete(e.byPost, set.postID)
	set.postID = postID
	e.byPost[postID] = set.toolUseID
	e.mu.Unlock()
	e.tracker.Track(postID, e.convID, "question")
	return nil
}

func renderQuestion(q ops.Question, idx, total int) string {
	var b strings.Builder
	header := q.Header
	if header == "" {
		header = "Question"
	}
	fmt.Fprintf(&b, "❓ *%s* (%d/%d)\n%s", header, idx+1, total, q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&b, "\n%d. *%s*", i+1, opt.Label)
		if opt.Description != "" {
			fmt.Fprintf(&b, " — %s", opt.Description)
		}
	}
	b.WriteString("\nReact with the option number to answer.")
	return b.String()
}

func renderApproval(op ops.Operation) string {
	if op.Approval == ops.ApprovalPlan {
		text := "🗺 *Plan ready for review*"
		if op.Description != "" {
			text += "\n\n" + op.Description
		}
		return text + "\n\nReact 👍 to approve the plan or 👎 to keep planning."
	}
	text := "⚠️ *Approval required*"
	if op.Description != "" {
		text += "\n" + op.Description
	}
	return text + "\nReact 👍 to approve or 👎 to deny."
}

// QuestionSnapshot is a read-only view of pending interactive flows.
type QuestionSnapshot struct {
	PendingQuestions []string `json:"pending_questions,omitempty"`
	PendingApprovals []string `json:"pending_approvals,omitempty"`
}

// Snapshot lists pending tool-use ids.
func (e *QuestionExecutor) Snapshot() QuestionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	var snap QuestionSnapshot
	for id := range e.sets {
		snap.PendingQuestions = append(snap.PendingQuestions, id)
	}
	for id := range e.approvals {
		snap.PendingApprovals = append(snap.PendingApprovals, id)
	}
	return snap
}
