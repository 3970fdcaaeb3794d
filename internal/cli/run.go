package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/bus"
	"github.com/ThreadClaw/ThreadClaw/internal/config"
	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
	"github.com/ThreadClaw/ThreadClaw/internal/render"
	"github.com/ThreadClaw/ThreadClaw/internal/runner"
	"github.com/ThreadClaw/ThreadClaw/internal/session"
	"github.com/ThreadClaw/ThreadClaw/internal/store"
	"github.com/ThreadClaw/ThreadClaw/internal/stream"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Slack bridge",
	Run:   runBridge,
}

var runSignalNotify = signal.Notify
var runSignalStop = signal.Stop

func setupLogging(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// bridge owns the wiring between Slack, the event bus, the orchestrator,
// the assistant runner, and the persistence layers.
type bridge struct {
	cfg      *config.Config
	client   *platform.SlackClient
	bus      *bus.EventBus
	orch     *render.Orchestrator
	runner   *runner.Runner
	sessions *session.Manager
	store    *store.Store

	// routes maps an interactive tool-use id to the conversation whose
	// assistant process expects the reply.
	routeMu sync.Mutex
	routes  map[string]string
}

func (b *bridge) addRoute(toolUseID, convID string) {
	b.routeMu.Lock()
	defer b.routeMu.Unlock()
	b.routes[toolUseID] = convID
}

func (b *bridge) claimRoute(toolUseID string) string {
	b.routeMu.Lock()
	defer b.routeMu.Unlock()
	convID := b.routes[toolUseID]
	delete(b.routes, toolUseID)
	return convID
}

func runBridge(cmd *cobra.Command, args []string) {
	printHeader("🌉 ThreadClaw Bridge")

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Config invalid: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log)

	for _, dir := range []string{cfg.Paths.Home, cfg.Paths.SessionsDir} {
		if err := config.EnsureDir(dir); err != nil {
			fmt.Printf("Failed to create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	st, err := store.New(cfg.Paths.DBPath)
	if err != nil {
		fmt.Printf("Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	client, err := platform.NewSlackClient(cfg.Slack.BotToken, cfg.Slack.AppToken, platform.DefaultSlackLimits)
	if err != nil {
		fmt.Printf("Slack error: %v\n", err)
		os.Exit(1)
	}

	evBus := bus.NewEventBus()
	b := &bridge{
		cfg:      cfg,
		client:   client,
		bus:      evBus,
		sessions: session.NewManager(cfg.Paths.SessionsDir),
		store:    st,
		routes:   make(map[string]string),
	}
	b.runner = runner.New(runner.Config{
		Command:   cfg.Assistant.Command,
		Args:      cfg.Assistant.Args,
		WorkDir:   cfg.Assistant.WorkDir,
		StopGrace: time.Duration(cfg.Assistant.StopGraceSeconds) * time.Second,
	}, evBus)
	tracker := ops.NewPostTracker()
	tracker.SetObserver(func(postID, convID, kind string) {
		if err := st.RecordPost(postID, convID, kind); err != nil {
			slog.Warn("Post record failed", "post_id", postID, "error", err)
		}
	})
	b.orch = render.NewOrchestrator(client, tracker, render.Config{
		FlushDelay:        time.Duration(cfg.Render.FlushDelayMS) * time.Millisecond,
		RepurposeMaxChars: cfg.Render.RepurposeMaxChars,
		WorktreePath:      cfg.Paths.Worktree,
	}, b.onAnswers, b.onApproval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	runSignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer runSignalStop(sigChan)

	go b.consumeEvents(ctx)
	go b.consumeReactions(ctx)
	go b.snapshotLoop(ctx)
	go func() {
		err := client.Listen(ctx,
			func(re platform.ReactionEvent) { evBus.PublishReaction(&re) },
			func(me platform.MessageEvent) { b.handleUserMessage(ctx, me) },
		)
		if err != nil && ctx.Err() == nil {
			slog.Error("Slack listener stopped", "error", err)
		}
	}()

	fmt.Println("Bridge running. Press Ctrl+C to stop.")
	<-sigChan

	fmt.Println("Shutting down...")
	b.runner.StopAll()
	cancel()
	b.saveSnapshots()
}

// consumeEvents drains the assistant event stream: audit records first,
// then rendering.
func (b *bridge) consumeEvents(ctx context.Context) {
	for {
		ev, err := b.bus.ConsumeEvent(ctx)
		if err != nil {
			return
		}
		if ev.Event.Type == stream.TypeSystem && ev.Event.Subtype == stream.SubtypeProcessExit {
			b.handleProcessExit(ev.ConversationID)
			continue
		}
		b.recordEvent(ev)
		b.orch.HandleEvent(ev)
	}
}

// handleProcessExit persists a final snapshot and releases the
// conversation's executors, tracker entries, and timers.
func (b *bridge) handleProcessExit(convID string) {
	for _, snap := range b.orch.Snapshots() {
		if snap.ID != convID {
			continue
		}
		sess := b.sessions.GetOrCreate(snap.ID)
		sess.SetSnapshot(snap)
		if err := b.sessions.Save(sess); err != nil {
			slog.Warn("Session save failed", "conversation", snap.ID, "error", err)
		}
	}
	b.orch.EndConversation(convID)
	slog.Info("Conversation ended", "conversation", convID)
}

func (b *bridge) consumeReactions(ctx context.Context) {
	for {
		ev, err := b.bus.ConsumeReaction(ctx)
		if err != nil {
			return
		}
		if !b.orch.HandleReaction(ctx, *ev) {
			slog.Debug("Reaction on untracked post", "post_id", ev.PostID, "reaction", ev.Name)
		}
	}
}

// recordEvent registers reply routes for interactive tool calls and writes
// the audit trail.
func (b *bridge) recordEvent(ev *bus.AssistantEvent) {
	e := ev.Event
	switch e.Type {
	case stream.TypeAssistant:
		if e.Message == nil {
			return
		}
		for _, block := range e.Message.Content {
			if block.Type != "tool_use" || block.ID == "" {
				continue
			}
			switch block.Name {
			case stream.ToolAskUserQuestion:
				b.addRoute(block.ID, ev.ConversationID)
			case stream.ToolExitPlanMode:
				b.addRoute(block.ID, ev.ConversationID)
				if err := b.store.RecordApproval(block.ID, ev.ConversationID, "plan", ""); err != nil {
					slog.Warn("Approval record failed", "tool_use_id", block.ID, "error", err)
				}
			}
		}
	case stream.TypeResult:
		rec := &store.TurnRecord{
			ConversationID: ev.ConversationID,
			Model:          e.Model,
			CostUSD:        e.TotalCostUSD,
			DurationMS:     e.DurationMS,
			CreatedAt:      ev.Timestamp,
		}
		if e.Usage != nil {
			rec.InputTokens = e.Usage.InputTokens
			rec.OutputTokens = e.Usage.OutputTokens
			rec.CacheReadTokens = e.Usage.CacheReadTokens
		}
		if err := b.store.RecordTurn(rec); err != nil {
			slog.Warn("Turn record failed", "conversation", ev.ConversationID, "error", err)
		}
		if e.Result != "" {
			sess := b.sessions.GetOrCreate(ev.ConversationID)
			sess.AddMessage("assistant", e.Result)
			if err := b.sessions.Save(sess); err != nil {
				slog.Warn("Session save failed", "conversation", ev.ConversationID, "error", err)
			}
		}
	}
}

func (b *bridge) onAnswers(toolUseID string, answers []string) {
	convID := b.claimRoute(toolUseID)
	if convID == "" {
		slog.Warn("Answer set with no route", "tool_use_id", toolUseID)
		return
	}
	for _, answer := range answers {
		if err := b.store.RecordAnswer(toolUseID, convID, "", answer); err != nil {
			slog.Warn("Answer record failed", "tool_use_id", toolUseID, "error", err)
		}
	}
	if err := b.runner.SendAnswers(convID, stream.AnswerSet{ToolUseID: toolUseID, Answers: answers}); err != nil {
		slog.Warn("Answer delivery failed", "conversation", convID, "error", err)
	}
}

func (b *bridge) onApproval(toolUseID string, approved bool) {
	convID := b.claimRoute(toolUseID)
	if convID == "" {
		slog.Warn("Approval with no route", "tool_use_id", toolUseID)
		return
	}
	if err := b.store.ResolveApproval(toolUseID, approved); err != nil {
		slog.Warn("Approval resolve failed", "tool_use_id", toolUseID, "error", err)
	}
	if err := b.runner.SendApproval(convID, stream.ApprovalDecision{ToolUseID: toolUseID, Approved: approved}); err != nil {
		slog.Warn("Approval delivery failed", "conversation", convID, "error", err)
	}
}

// handleUserMessage turns a Slack message into a prompt. A top-level
// message roots a new conversation in its own thread; a thread reply joins
// the conversation rooted there.
func (b *bridge) handleUserMessage(ctx context.Context, me platform.MessageEvent) {
	if b.cfg.Slack.Channel != "" && me.Channel != b.cfg.Slack.Channel {
		return
	}
	text := strings.TrimSpace(me.Text)
	if text == "" {
		return
	}
	rootTS := me.ThreadTS
	if rootTS == "" {
		rootTS = me.TS
	}
	convID := platform.EncodePostID(me.Channel, rootTS)

	if !b.runner.Running(convID) {
		if err := b.runner.Start(ctx, convID, convID); err != nil {
			slog.Error("Assistant start failed", "conversation", convID, "error", err)
			return
		}
		slog.Info("Conversation started", "conversation", convID, "user", me.UserID)
	} else {
		// Follow-up prompt: move the task list below the new message.
		b.orch.NotifyUserMessage(ctx, convID)
	}

	sess := b.sessions.GetOrCreate(convID)
	sess.AddMessage("user", text)
	if err := b.sessions.Save(sess); err != nil {
		slog.Warn("Session save failed", "conversation", convID, "error", err)
	}

	if err := b.runner.SendPrompt(convID, text); err != nil {
		slog.Error("Prompt delivery failed", "conversation", convID, "error", err)
	}
}

func (b *bridge) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.saveSnapshots()
		}
	}
}

func (b *bridge) saveSnapshots() {
	for _, snap := range b.orch.Snapshots() {
		sess := b.sessions.GetOrCreate(snap.ID)
		sess.SetSnapshot(snap)
		if err := b.sessions.Save(sess); err != nil {
			slog.Warn("Snapshot save failed", "conversation", snap.ID, "error", err)
		}
	}
}
