package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
)

// activeElapsedMin is how long the active item must run before its label
// carries an elapsed annotation.
const activeElapsedMin = 10 * time.Second

// TaskListExecutor renders the todo list as a single sticky, pinned,
// interactive post. Every mutation serializes through an async mutex:
// dispatch is fire-and-forget, so without it two events could both observe
// "no task-list post yet" and create duplicates. Holders re-validate their
// preconditions after acquiring.
type TaskListExecutor struct {
	client            platform.Client
	tracker           *ops.PostTracker
	convID            string
	threadID          string
	repurposeMaxChars int

	lock *asyncMutex

	// Guarded by lock, not a sync.Mutex: all access happens under Acquire.
	postID      string
	lastTasks   []ops.Task
	lastContent string
	completed   bool
	minimized   bool
	activeLabel string
	activeSince time.Time

	snapMu sync.Mutex // cheap consistent reads for Snapshot and OwnsPost
	snap   TaskListSnapshot
}

// NewTaskListExecutor creates the executor. repurposeMaxChars bounds the
// displaced-content size accepted by RepurposeForContent; zero means
// unlimited.
func NewTaskListExecutor(client platform.Client, tracker *ops.PostTracker, convID, threadID string, repurposeMaxChars int) *TaskListExecutor {
	return &TaskListExecutor{
		client:            client,
		tracker:           tracker,
		convID:            convID,
		threadID:          threadID,
		repurposeMaxChars: repurposeMaxChars,
		lock:              newAsyncMutex(),
	}
}

// Execute applies a task-list operation.
func (e *TaskListExecutor) Execute(ctx context.Context, op ops.Operation) error {
	if err := e.lock.Acquire(ctx); err != nil {
		return err
	}
	defer e.lock.Release()

	e.lastTasks = op.Tasks
	if op.TaskAction == ops.TaskListComplete {
		e.completed = true
	}
	e.trackActive(op.Tasks)
	e.lastContent = e.renderLocked(false)
	return e.renderToPostLocked(ctx)
}

// BumpToBottom relocates the task list below newer content. A completed
// list does not need to stay at the bottom, so this is a no-op then.
func (e *TaskListExecutor) BumpToBottom(ctx context.Context) error {
	if err := e.lock.Acquire(ctx); err != nil {
		return err
	}
	defer e.lock.Release()

	if e.postID == "" || e.completed {
		return nil
	}
	old := e.postID
	if err := e.client.DeletePost(ctx, old); err != nil {
		slog.Debug("Task list delete failed during bump", "conversation", e.convID, "post_id", old, "error", err)
	}
	e.postID = ""
	return e.renderToPostLocked(ctx)
}

// RepurposeForContent hands the live task-list post over to displaced
// content and recreates the list at the bottom. Returns the repurposed post
// id, or false when there is no live, incomplete list to repurpose.
func (e *TaskListExecutor) RepurposeForContent(ctx context.Context, content string) (string, bool) {
	if err := e.lock.Acquire(ctx); err != nil {
		return "", false
	}
	defer e.lock.Release()

	if e.postID == "" || e.completed {
		return "", false
	}
	if e.repurposeMaxChars > 0 && len(content) > e.repurposeMaxChars {
		return "", false
	}
	old := e.postID
	if err := e.client.UpdatePost(ctx, old, content); err != nil {
		slog.Debug("Task list repurpose failed", "conversation", e.convID, "post_id", old, "error", err)
		e.postID = ""
		e.publishSnapshot()
		return "", false
	}
	if err := e.client.UnpinPost(ctx, old); err != nil {
		slog.Debug("Unpin failed on repurposed post", "post_id", old, "error", err)
	}
	e.postID = ""
	if err := e.renderToPostLocked(ctx); err != nil {
		slog.Warn("Task list recreation after repurpose failed", "conversation", e.convID, "error", err)
	}
	return old, true
}

// SetMinimized applies the reaction-driven collapsed state. The presence of
// the reaction IS the minimized state, so repeated identical transitions
// are no-ops.
func (e *TaskListExecutor) SetMinimized(ctx context.Context, minimized bool) error {
	if err := e.lock.Acquire(ctx); err != nil {
		return err
	}
	defer e.lock.Release()

	if e.minimized == minimized || e.postID == "" {
		return nil
	}
	e.minimized = minimized
	display := e.renderLocked(e.minimized)
	if err := e.client.UpdatePost(ctx, e.postID, display); err != nil {
		slog.Debug("Minimize re-render failed", "post_id", e.postID, "error", err)
		e.postID = ""
	}
	e.publishSnapshot()
	return nil
}

// ReconcileTurnEnd freezes an orphaned list when the turn ends without the
// assistant completing it, so it stops claiming the bottom slot.
func (e *TaskListExecutor) ReconcileTurnEnd(ctx context.Context) error {
	if err := e.lock.Acquire(ctx); err != nil {
		return err
	}
	defer e.lock.Release()

	if e.postID == "" || e.completed {
		return nil
	}
	slog.Debug("Freezing orphaned task list at turn end", "conversation", e.convID, "post_id", e.postID)
	e.completed = true
	e.publishSnapshot()
	return nil
}

// OwnsPost reports whether postID is the live task-list post.
func (e *TaskListExecutor) OwnsPost(postID string) bool {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return postID != "" && e.snap.PostID == postID
}

// HandleReaction processes a collapse reaction on the task-list post.
func (e *TaskListExecutor) HandleReaction(ctx context.Context, ev platform.ReactionEvent) bool {
	if !e.OwnsPost(ev.PostID) {
		return false
	}
	if ev.Name != platform.ReactionCollapse {
		return true // owned, but not a reaction this executor acts on
	}
	if err := e.SetMinimized(ctx, ev.Added); err != nil {
		slog.Warn("Task list minimize failed", "error", err)
	}
	return true
}

// renderToPostLocked updates the live post, falling back to creating a new
// pinned interactive post when none exists or the update fails.
func (e *TaskListExecutor) renderToPostLocked(ctx context.Context) error {
	display := e.renderLocked(e.minimized)
	if e.postID != "" {
		if err := e.client.UpdatePost(ctx, e.postID, display); err == nil {
			e.publishSnapshot()
			return nil
		} else {
			slog.Debug("Task list update failed, recreating", "post_id", e.postID, "error", err)
			e.postID = ""
		}
	}
	postID, err := e.client.CreateInteractivePost(ctx, e.threadID, display, []string{platform.ReactionCollapse})
	if err != nil {
		e.publishSnapshot()
		return fmt.Errorf("create task list post: %w", err)
	}
	e.postID = postID
	if err := e.client.PinPost(ctx, postID); err != nil {
		slog.Debug("Pin failed", "post_id", postID, "error", err)
	}
	e.tracker.Track(postID, e.convID, "tasklist")
	e.publishSnapshot()
	return nil
}

func (e *TaskListExecutor) trackActive(tasks []ops.Task) {
	label := ""
	for _, t := range tasks {
		if t.State == ops.TaskInProgress {
			label = t.ActiveForm
			if label == "" {
				label = t.Content
			}
			break
		}
	}
	if label != e.activeLabel {
		e.activeLabel = label
		e.activeSince = time.Now()
	}
}

func (e *TaskListExecutor) renderLocked(minimized bool) string {
	done := 0
	for _, t := range e.lastTasks {
		if t.State == ops.TaskCompleted {
			done++
		}
	}
	total := len(e.lastTasks)

	active := e.activeLabel
	if active != "" && time.Since(e.activeSince) >= activeElapsedMin {
		active = fmt.Sprintf("%s (%s)", active, shortElapsed(time.Since(e.activeSince)))
	}

	if minimized {
		line := fmt.Sprintf("📋 %d/%d", done, total)
		if e.completed {
			line += " — done"
		} else if active != "" {
			line += " — " + active
		}
		return line
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Tasks* (%d/%d)", done, total)
	if total > 0 {
		fmt.Fprintf(&b, " — %d%%", done*100/total)
	}
	for _, t := range e.lastTasks {
		b.WriteByte('\n')
		switch t.State {
		case ops.TaskCompleted:
			b.WriteString("☑ " + t.Content)
		case ops.TaskInProgress:
			label := t.ActiveForm
			if label == "" {
				label = t.Content
			}
			if label == e.activeLabel && active != label {
				label = active
			}
			b.WriteString("▸ *" + label + "*")
		default:
			b.WriteString("◻ " + t.Content)
		}
	}
	return b.String()
}

// TaskListSnapshot is a read-only view of the executor state.
type TaskListSnapshot struct {
	PostID      string `json:"post_id,omitempty"`
	LastContent string `json:"last_content,omitempty"`
	Completed   bool   `json:"completed,omitempty"`
	Minimized   bool   `json:"minimized,omitempty"`
}

func (e *TaskListExecutor) publishSnapshot() {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.snap = TaskListSnapshot{
		PostID:      e.postID,
		LastContent: e.lastContent,
		Completed:   e.completed,
		Minimized:   e.minimized,
	}
}

// Snapshot returns the last published state.
func (e *TaskListExecutor) Snapshot() TaskListSnapshot {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return e.snap
}

func shortElapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
