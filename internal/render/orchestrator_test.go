package render

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
)

func newOrchestratorForTest(client *fakeClient, onAnswers AnswerFunc, onApproval ApprovalFunc) *Orchestrator {
	return NewOrchestrator(client, ops.NewPostTracker(), Config{FlushDelay: 10 * time.Millisecond}, onAnswers, onApproval)
}

func TestOrchestratorContentDispatch(t *testing.T) {
	client := newFakeClient()
	orch := newOrchestratorForTest(client, nil, nil)
	conv := orch.Conversation("c1", "t1")

	orch.dispatch(context.Background(), conv, []ops.Operation{
		ops.AppendContent("Working on it."),
		ops.Flush(FlushToolResult),
	})

	if client.createCount() != 1 {
		t.Fatalf("expected 1 post, got %d", client.createCount())
	}
	if got := client.postText(client.lastCreate()); got != "Working on it." {
		t.Errorf("post text = %q", got)
	}
}

func TestOrchestratorStatusUpdateReconcilesTaskList(t *testing.T) {
	client := newFakeClient()
	orch := newOrchestratorForTest(client, nil, nil)
	conv := orch.Conversation("c1", "t1")
	ctx := context.Background()

	tasks := []ops.Task{{Content: "step one", State: ops.TaskInProgress, ActiveForm: "Doing step one"}}
	orch.dispatch(ctx, conv, []ops.Operation{ops.TaskList(ops.TaskListUpdate, tasks)})
	if conv.tasks.Snapshot().Completed {
		t.Fatal("list completed prematurely")
	}

	orch.dispatch(ctx, conv, []ops.Operation{
		ops.StatusUpdate("claude-sonnet", 0.0231, &ops.Usage{InputTokens: 1200, OutputTokens: 340}, 5400),
	})

	if !conv.tasks.Snapshot().Completed {
		t.Error("turn end did not freeze the orphaned task list")
	}
	status := client.postText(client.lastCreate())
	if !strings.Contains(status, "claude-sonnet") || !strings.Contains(status, "$0.0231") {
		t.Errorf("status line:\n%s", status)
	}
}

func TestOrchestratorStatusWithoutUsageStillReconciles(t *testing.T) {
	client := newFakeClient()
	orch := newOrchestratorForTest(client, nil, nil)
	conv := orch.Conversation("c1", "t1")
	ctx := context.Background()

	tasks := []ops.Task{{Content: "step one", State: ops.TaskInProgress}}
	orch.dispatch(ctx, conv, []ops.Operation{ops.TaskList(ops.TaskListUpdate, tasks)})
	orch.dispatch(ctx, conv, []ops.Operation{ops.StatusUpdate("", 0, nil, 0)})

	if !conv.tasks.Snapshot().Completed {
		t.Error("usage-less status update skipped turn-end cleanup")
	}
	// No usage payload means no status post.
	if client.createCount() != 0 {
		t.Errorf("empty status produced %d posts", client.createCount())
	}
}

func TestOrchestratorReactionRouting(t *testing.T) {
	client := newFakeClient()
	var approvedID string
	orch := newOrchestratorForTest(client, nil, func(toolUseID string, approved bool) {
		if approved {
			approvedID = toolUseID
		}
	})
	conv := orch.Conversation("c1", "t1")
	ctx := context.Background()

	orch.dispatch(ctx, conv, []ops.Operation{
		ops.TaskList(ops.TaskListUpdate, []ops.Task{{Content: "x", State: ops.TaskPending}}),
		ops.NewApproval("tu5", ops.ApprovalAction, "delete the branch"),
	})
	taskPost := conv.tasks.Snapshot().PostID
	approvalPost := client.lastInteractive()
	if taskPost == "" || approvalPost == "" || taskPost == approvalPost {
		t.Fatalf("setup posts: task=%q approval=%q", taskPost, approvalPost)
	}

	if !orch.HandleReaction(ctx, platform.ReactionEvent{PostID: approvalPost, Name: platform.ReactionApprove, Added: true}) {
		t.Fatal("approval reaction not routed")
	}
	if approvedID != "tu5" {
		t.Errorf("approval callback id = %q", approvedID)
	}

	if !orch.HandleReaction(ctx, platform.ReactionEvent{PostID: taskPost, Name: platform.ReactionCollapse, Added: true}) {
		t.Fatal("task list reaction not routed")
	}
	if !conv.tasks.Snapshot().Minimized {
		t.Error("collapse reaction did not minimize the list")
	}

	if orch.HandleReaction(ctx, platform.ReactionEvent{PostID: "unknown", Name: "eyes", Added: true}) {
		t.Error("untracked post claimed a reaction")
	}
}

func TestOrchestratorNotifyUserMessage(t *testing.T) {
	client := newFakeClient()
	orch := newOrchestratorForTest(client, nil, nil)
	conv := orch.Conversation("c1", "t1")
	ctx := context.Background()

	orch.dispatch(ctx, conv, []ops.Operation{
		ops.TaskList(ops.TaskListUpdate, []ops.Task{{Content: "x", State: ops.TaskInProgress}}),
	})
	first := conv.tasks.Snapshot().PostID

	orch.NotifyUserMessage(ctx, "c1")
	second := conv.tasks.Snapshot().PostID
	if second == first {
		t.Error("task list not relocated after user message")
	}
}

func TestOrchestratorConversationReuse(t *testing.T) {
	orch := newOrchestratorForTest(newFakeClient(), nil, nil)
	a := orch.Conversation("c1", "t1")
	b := orch.Conversation("c1", "t1")
	if a != b {
		t.Error("same conversation id returned distinct executor sets")
	}
	orch.EndConversation("c1")
	c := orch.Conversation("c1", "t1")
	if c == a {
		t.Error("ended conversation not rebuilt")
	}
}
