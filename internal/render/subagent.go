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

const (
	// subagentTickInterval drives periodic elapsed-time re-renders.
	subagentTickInterval = 5 * time.Second
	// subagentStaleAfter skips entries that were just rendered.
	subagentStaleAfter = 4 * time.Second
	// subagentPromptPreview caps the collapsed prompt preview length.
	subagentPromptPreview = 200
)

type subagentEntry struct {
	toolUseID   string
	postID      string
	description string
	agentType   string
	startTime   time.Time
	elapsed     time.Duration // frozen at completion
	minimized   bool
	complete    bool
	lastUpdate  time.Time
}

// SubagentExecutor renders one post per sub-task with a live elapsed time.
// Entries are retained after completion so minimize/expand reactions keep
// resolving; they are keyed by the stable tool-use id, so no create-or-
// update lock is needed.
type SubagentExecutor struct {
	client   platform.Client
	tracker  *ops.PostTracker
	convID   string
	threadID string

	mu      sync.Mutex
	entries map[string]*subagentEntry
	byPost  map[string]string // post id -> tool-use id
	stop    chan struct{}     // non-nil while the ticker runs
}

// NewSubagentExecutor creates the executor.
func NewSubagentExecutor(client platform.Client, tracker *ops.PostTracker, convID, threadID string) *SubagentExecutor {
	return &SubagentExecutor{
		client:   client,
		tracker:  tracker,
		convID:   convID,
		threadID: threadID,
		entries:  make(map[string]*subagentEntry),
		byPost:   make(map[string]string),
	}
}

// Execute applies a subagent operation.
func (e *SubagentExecutor) Execute(ctx context.Context, op ops.Operation) error {
	switch op.SubAction {
	case ops.SubagentStart:
		return e.start(ctx, op)
	case ops.SubagentComplete:
		return e.complete(ctx, op.ToolUseID)
	}
	return nil
}

func (e *SubagentExecutor) start(ctx context.Context, op ops.Operation) error {
	e.mu.Lock()
	if _, exists := e.entries[op.ToolUseID]; exists {
		e.mu.Unlock()
		return nil
	}
	entry := &subagentEntry{
		toolUseID:   op.ToolUseID,
		description: op.Description,
		agentType:   op.AgentType,
		startTime:   time.Now(),
	}
	e.entries[op.ToolUseID] = entry
	// Render while still holding the lock: the entry is published and a
	// fast completion may already be mutating it.
	text := renderSubagent(entry)
	e.mu.Unlock()

	postID, err := e.client.CreateInteractivePost(ctx, e.threadID, text,
		[]string{platform.ReactionCollapse})
	if err != nil {
		e.mu.Lock()
		delete(e.entries, op.ToolUseID)
		e.mu.Unlock()
		return fmt.Errorf("create subagent post: %w", err)
	}

	e.mu.Lock()
	entry.postID = postID
	entry.lastUpdate = time.Now()
	e.byPost[postID] = op.ToolUseID
	// The result may have landed while the create call was in flight; the
	// post then still shows the initial running text.
	completedMeanwhile := entry.complete
	if !completedMeanwhile {
		e.ensureTickerLocked()
	}
	e.mu.Unlock()
	e.tracker.Track(postID, e.convID, "subagent")
	if completedMeanwhile {
		return e.rerender(ctx, entry)
	}
	return nil
}

// complete freezes the elapsed time. The entry is retained until the
// conversation ends so later minimize reactions still resolve.
func (e *SubagentExecutor) complete(ctx context.Context, toolUseID string) error {
	e.mu.Lock()
	entry, ok := e.entries[toolUseID]
	if !ok || entry.complete {
		e.mu.Unlock()
		return nil
	}
	entry.complete = true
	entry.elapsed = time.Since(entry.startTime)
	e.stopTickerIfIdleLocked()
	e.mu.Unlock()

	return e.rerender(ctx, entry)
}

// OwnsPost reports whether postID belongs to a subagent entry, complete or
// not.
func (e *SubagentExecutor) OwnsPost(postID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.byPost[postID]
	return ok
}

// HandleReaction applies the state-based minimize protocol: the reaction's
// presence is the minimized state, so repeated identical transitions are
// idempotent no-ops.
func (e *SubagentExecutor) HandleReaction(ctx context.Context, ev platform.ReactionEvent) bool {
	e.mu.Lock()
	toolUseID, ok := e.byPost[ev.PostID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	entry := e.entries[toolUseID]
	if ev.Name != platform.ReactionCollapse || entry == nil || entry.minimized == ev.Added {
		e.mu.Unlock()
		return true
	}
	entry.minimized = ev.Added
	e.mu.Unlock()

	if err := e.rerender(ctx, entry); err != nil {
		slog.Warn("Subagent re-render failed", "tool_use_id", toolUseID, "error", err)
	}
	return true
}

// Close stops the shared ticker.
func (e *SubagentExecutor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// ensureTickerLocked starts the shared interval timer when the first
// non-complete entry appears.
func (e *SubagentExecutor) ensureTickerLocked() {
	if e.stop != nil {
		return
	}
	stop := make(chan struct{})
	e.stop = stop
	go func() {
		ticker := time.NewTicker(subagentTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.tick()
			}
		}
	}()
}

func (e *SubagentExecutor) stopTickerIfIdleLocked() {
	for _, entry := range e.entries {
		if !entry.complete {
			return
		}
	}
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// tick re-renders running entries that have not been touched recently.
func (e *SubagentExecutor) tick() {
	e.mu.Lock()
	var due []*subagentEntry
	for _, entry := range e.entries {
		if entry.complete || entry.postID == "" {
			continue
		}
		if time.Since(entry.lastUpdate) < subagentStaleAfter {
			continue
		}
		due = append(due, entry)
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, entry := range due {
		if err := e.rerender(ctx, entry); err != nil {
			slog.Debug("Subagent tick render failed", "tool_use_id", entry.toolUseID, "error", err)
		}
	}
}

func (e *SubagentExecutor) rerender(ctx context.Context, entry *subagentEntry) error {
	e.mu.Lock()
	text := renderSubagent(entry)
	postID := entry.postID
	entry.lastUpdate = time.Now()
	e.mu.Unlock()
	if postID == "" {
		return nil
	}
	return e.client.UpdatePost(ctx, postID, text)
}

func renderSubagent(entry *subagentEntry) string {
	elapsed := entry.elapsed
	if !entry.complete {
		elapsed = time.Since(entry.startTime)
	}
	state := "running"
	glyph := "🤖"
	if entry.complete {
		state = "done"
		glyph = "✅"
	}
	agentType := entry.agentType
	if agentType == "" {
		agentType = "subagent"
	}

	head := fmt.Sprintf("%s *%s* — %s (%s)", glyph, agentType, state, shortElapsed(elapsed))
	if entry.minimized || entry.description == "" {
		return head
	}
	preview := entry.description
	if len(preview) > subagentPromptPreview {
		cut := subagentPromptPreview
		for cut > 0 && !isRuneStart(preview[cut]) {
			cut--
		}
		preview = strings.TrimSpace(preview[:cut]) + "…"
	}
	return head + "\n> " + strings.ReplaceAll(preview, "\n", "\n> ")
}

// SubagentSnapshot is a read-only view of one sub-task entry.
type SubagentSnapshot struct {
	ToolUseID   string    `json:"tool_use_id"`
	PostID      string    `json:"post_id,omitempty"`
	Description string    `json:"description,omitempty"`
	AgentType   string    `json:"agent_type,omitempty"`
	StartTime   time.Time `json:"start_time"`
	Minimized   bool      `json:"minimized,omitempty"`
	Complete    bool      `json:"complete,omitempty"`
}

// Snapshot returns all entries.
func (e *SubagentExecutor) Snapshot() []SubagentSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SubagentSnapshot, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, SubagentSnapshot{
			ToolUseID:   entry.toolUseID,
			PostID:      entry.postID,
			Description: entry.description,
			AgentType:   entry.agentType,
			StartTime:   entry.startTime,
			Minimized:   entry.minimized,
			Complete:    entry.complete,
		})
	}
	return out
}
