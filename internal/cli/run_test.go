package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/ThreadClaw/ThreadClaw/internal/config"
	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
	"github.com/ThreadClaw/ThreadClaw/internal/render"
	"github.com/ThreadClaw/ThreadClaw/internal/session"
)

// stubClient satisfies platform.Client without talking to Slack.
type stubClient struct {
	posts atomic.Int64
}

func (c *stubClient) CreatePost(context.Context, string, string) (string, error) {
	return fmt.Sprintf("p%d", c.posts.Add(1)), nil
}

func (c *stubClient) CreateInteractivePost(context.Context, string, string, []string) (string, error) {
	return fmt.Sprintf("p%d", c.posts.Add(1)), nil
}

func (c *stubClient) UpdatePost(context.Context, string, string) error     { return nil }
func (c *stubClient) DeletePost(context.Context, string) error             { return nil }
func (c *stubClient) PinPost(context.Context, string) error                { return nil }
func (c *stubClient) UnpinPost(context.Context, string) error              { return nil }
func (c *stubClient) AddReaction(context.Context, string, string) error    { return nil }
func (c *stubClient) RemoveReaction(context.Context, string, string) error { return nil }
func (c *stubClient) Limits() platform.Limits                              { return platform.DefaultSlackLimits }
func (c *stubClient) Formatter() platform.Formatter                        { return nopFormatter{} }

type nopFormatter struct{}

func (nopFormatter) Format(text string) string { return text }

func TestSetupLoggingLevels(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	cases := []struct {
		level   string
		debugOn bool
	}{
		{"debug", true},
		{"info", false},
		{"warn", false},
		{"", false},
	}
	for _, tc := range cases {
		setupLogging(config.LogConfig{Level: tc.level, Format: "text"})
		if got := slog.Default().Enabled(context.Background(), slog.LevelDebug); got != tc.debugOn {
			t.Errorf("level %q: debug enabled = %v, want %v", tc.level, got, tc.debugOn)
		}
	}
}

func TestBridgeRoutes(t *testing.T) {
	b := &bridge{routes: make(map[string]string)}
	b.addRoute("tu1", "C1|100.1")
	if got := b.claimRoute("tu1"); got != "C1|100.1" {
		t.Fatalf("claimRoute = %q", got)
	}
	if got := b.claimRoute("tu1"); got != "" {
		t.Fatalf("second claim = %q, want empty", got)
	}
	if got := b.claimRoute("missing"); got != "" {
		t.Fatalf("unknown claim = %q, want empty", got)
	}
}

func TestHandleProcessExitReleasesConversation(t *testing.T) {
	b := &bridge{
		sessions: session.NewManager(t.TempDir()),
		routes:   make(map[string]string),
	}
	b.orch = render.NewOrchestrator(&stubClient{}, ops.NewPostTracker(), render.Config{}, nil, nil)

	const convID = "C1|100.1"
	b.orch.Conversation(convID, convID)
	if len(b.orch.Snapshots()) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(b.orch.Snapshots()))
	}

	b.handleProcessExit(convID)

	if n := len(b.orch.Snapshots()); n != 0 {
		t.Errorf("snapshots after exit = %d, want 0", n)
	}
	if got := b.sessions.GetOrCreate(convID).Snapshot.ID; got != convID {
		t.Errorf("saved snapshot id = %q, want %q", got, convID)
	}
	// A second exit for the same conversation is harmless.
	b.handleProcessExit(convID)
}
