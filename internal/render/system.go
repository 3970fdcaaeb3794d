package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
)

// SystemExecutor posts status, lifecycle, and info/error messages. Each is
// a one-shot post; nothing here needs serialization.
type SystemExecutor struct {
	client   platform.Client
	tracker  *ops.PostTracker
	convID   string
	threadID string
}

// NewSystemExecutor creates the executor.
func NewSystemExecutor(client platform.Client, tracker *ops.PostTracker, convID, threadID string) *SystemExecutor {
	return &SystemExecutor{client: client, tracker: tracker, convID: convID, threadID: threadID}
}

// Message posts a leveled system message.
func (e *SystemExecutor) Message(ctx context.Context, level ops.Level, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	glyph := "ℹ️"
	switch level {
	case ops.LevelWarn:
		glyph = "⚠️"
	case ops.LevelError:
		glyph = "🛑"
	}
	postID, err := e.client.CreatePost(ctx, e.threadID, glyph+" "+text)
	if err != nil {
		return fmt.Errorf("system message: %w", err)
	}
	e.tracker.Track(postID, e.convID, "system")
	return nil
}

// Status renders a turn-end status line. A status update with no payload
// posts nothing; end-of-turn cleanup is the orchestrator's job and happens
// regardless.
func (e *SystemExecutor) Status(ctx context.Context, op ops.Operation) error {
	if op.Model == "" && op.Usage == nil && op.CostUSD == 0 {
		return nil
	}
	var parts []string
	if op.Model != "" {
		parts = append(parts, op.Model)
	}
	if op.CostUSD > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", op.CostUSD))
	}
	if op.Usage != nil {
		parts = append(parts, fmt.Sprintf("%d in / %d out tokens", op.Usage.InputTokens, op.Usage.OutputTokens))
		if op.Usage.CacheReadTokens > 0 {
			parts = append(parts, fmt.Sprintf("%d cached", op.Usage.CacheReadTokens))
		}
	}
	if op.DurationMS > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", float64(op.DurationMS)/1000))
	}
	postID, err := e.client.CreatePost(ctx, e.threadID, "· "+strings.Join(parts, " · "))
	if err != nil {
		return fmt.Errorf("status post: %w", err)
	}
	e.tracker.Track(postID, e.convID, "status")
	return nil
}

// Lifecycle posts session lifecycle transitions.
func (e *SystemExecutor) Lifecycle(ctx context.Context, event string) error {
	switch event {
	case "init":
		return e.Message(ctx, ops.LevelInfo, "Session started.")
	case "end":
		return e.Message(ctx, ops.LevelInfo, "Session ended.")
	default:
		slog.Debug("Unhandled lifecycle event", "event", event)
		return nil
	}
}
