package render

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/breaker"
	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
)

// Flush reasons. Tool results and turn ends finalize the current post so
// the next appended content starts a fresh one.
const (
	FlushDebounce   = "debounce"
	FlushToolResult = "tool_result"
	FlushTurnEnd    = "turn_end"
	FlushStructural = "structural"
)

// DefaultFlushDelay is the debounce window for rapid-fire appends.
const DefaultFlushDelay = 500 * time.Millisecond

// TruncationMarker is appended when content must be cut to fit the hard
// per-post ceiling. Content is never dropped silently.
const TruncationMarker = "\n*(truncated)*"

// ContentExecutor owns the streaming text buffer of one conversation and
// the post currently being extended.
type ContentExecutor struct {
	client     platform.Client
	tracker    *ops.PostTracker
	tasks      *TaskListExecutor
	convID     string
	threadID   string
	flushDelay time.Duration

	mu        sync.Mutex
	pending   string
	postID    string
	committed string
	timer     *time.Timer
}

// NewContentExecutor creates the executor. tasks may be nil when no task
// list exists for the conversation.
func NewContentExecutor(client platform.Client, tracker *ops.PostTracker, tasks *TaskListExecutor, convID, threadID string, flushDelay time.Duration) *ContentExecutor {
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &ContentExecutor{
		client:     client,
		tracker:    tracker,
		tasks:      tasks,
		convID:     convID,
		threadID:   threadID,
		flushDelay: flushDelay,
	}
}

// Append adds text to the pending buffer.
func (e *ContentExecutor) Append(text string) {
	if text == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != "" {
		e.pending += "\n\n" + text
	} else {
		e.pending = text
	}
}

// ScheduleFlush arms the debounce timer unless one is already armed. At
// most one timer is ever outstanding per conversation.
func (e *ContentExecutor) ScheduleFlush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		return
	}
	e.timer = time.AfterFunc(e.flushDelay, func() {
		e.mu.Lock()
		e.timer = nil
		e.mu.Unlock()
		if err := e.Flush(context.Background(), FlushDebounce); err != nil {
			slog.Warn("Debounced flush failed", "conversation", e.convID, "error", err)
		}
	})
}

// Flush renders the pending buffer into the chat surface. A blank buffer is
// a no-op. Explicit flushes cancel any armed debounce timer first.
func (e *ContentExecutor) Flush(ctx context.Context, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if strings.TrimSpace(e.pending) == "" {
		e.pending = ""
		return nil
	}
	content := e.committed
	if content != "" {
		content += "\n\n" + e.pending
	} else {
		content = e.pending
	}
	e.pending = ""

	formatted := e.client.Formatter().Format(content)
	limits := e.client.Limits()

	var err error
	if e.postID != "" && (len(formatted) > limits.MaxLength ||
		breaker.ShouldBreakEarly(formatted, limits.SoftThreshold, limits.SoftMaxLines)) {
		err = e.splitLocked(ctx, formatted, limits)
	} else {
		err = e.writeLocked(ctx, formatted, limits)
	}
	if err != nil {
		return err
	}

	// Tool completions and turn ends are natural stopping points: release
	// the post so later content starts fresh below any sticky elements.
	if reason == FlushToolResult || reason == FlushTurnEnd ||
		breaker.BreakpointAtEnd(formatted) == breaker.BreakToolMarker {
		e.postID = ""
		e.committed = ""
	}
	return nil
}

// writeLocked updates the current post or creates one, preferring to
// repurpose an active task-list post so the list stays anchored at the
// bottom.
func (e *ContentExecutor) writeLocked(ctx context.Context, formatted string, limits platform.Limits) error {
	text := truncateForPost(formatted, limits.MaxLength)
	if e.postID != "" {
		if err := e.client.UpdatePost(ctx, e.postID, text); err == nil {
			e.committed = formatted
			return nil
		} else {
			// Post removed out of band; content is still buffered, so the
			// failure stays local.
			slog.Debug("Post update failed, will recreate", "conversation", e.convID, "post_id", e.postID, "error", err)
			e.postID = ""
			e.committed = ""
		}
	}
	return e.createLocked(ctx, formatted, text)
}

func (e *ContentExecutor) createLocked(ctx context.Context, formatted, text string) error {
	if e.tasks != nil {
		if postID, ok := e.tasks.RepurposeForContent(ctx, text); ok {
			e.postID = postID
			e.committed = formatted
			return nil
		}
	}
	postID, err := e.client.CreatePost(ctx, e.threadID, text)
	if err != nil {
		// Preserve the content for the next flush.
		e.pending = formatted
		return err
	}
	e.postID = postID
	e.committed = formatted
	e.tracker.Track(postID, e.convID, "content")
	return nil
}

func (e *ContentExecutor) splitLocked(ctx context.Context, formatted string, limits platform.Limits) error {
	hard := limits.MaxLength
	from := limits.SoftThreshold
	if len(formatted) > hard {
		from = hard * 70 / 100
	}
	if from <= 0 || from >= len(formatted) {
		from = len(formatted) * 70 / 100
	}
	lookahead := hard - from
	if lookahead <= 0 {
		lookahead = hard / 4
	}

	pos, kind := breaker.FindBreakpoint(formatted, from, lookahead)
	if kind == breaker.BreakNone {
		if st := breaker.FenceState(formatted, from); st.Open && st.OpenOffset > 0 {
			// The fence cannot be closed inside the window: hoist the whole
			// fence into the next post instead of cutting through it.
			pos = st.OpenOffset
		} else {
			pos = from
		}
	}

	head := strings.TrimRight(formatted[:pos], "\n")
	tail := strings.TrimLeft(formatted[pos:], "\n")
	if head == "" {
		return e.writeLocked(ctx, formatted, limits)
	}

	if err := e.client.UpdatePost(ctx, e.postID, truncateForPost(head, hard)); err != nil {
		slog.Debug("Split head update failed", "conversation", e.convID, "post_id", e.postID, "error", err)
		// The old post is gone; resend everything in the fresh post.
		tail = formatted
	}
	e.postID = ""
	e.committed = ""
	if tail == "" {
		return nil
	}
	return e.createLocked(ctx, tail, truncateForPost(tail, hard))
}

// ContentSnapshot is a read-only view of the executor state, exposed for
// persistence.
type ContentSnapshot struct {
	Pending   string `json:"pending,omitempty"`
	PostID    string `json:"post_id,omitempty"`
	Committed string `json:"committed,omitempty"`
}

// Snapshot returns the current state.
func (e *ContentExecutor) Snapshot() ContentSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ContentSnapshot{Pending: e.pending, PostID: e.postID, Committed: e.committed}
}

func truncateForPost(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max - len(TruncationMarker)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + TruncationMarker
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
