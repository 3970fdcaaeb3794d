package render

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
)

func sampleTasks() []ops.Task {
	return []ops.Task{
		{Content: "Read the config", State: ops.TaskCompleted},
		{Content: "Write the parser", ActiveForm: "Writing the parser", State: ops.TaskInProgress},
		{Content: "Add tests", State: ops.TaskPending},
	}
}

func newTaskListForTest(client *fakeClient) *TaskListExecutor {
	return NewTaskListExecutor(client, ops.NewPostTracker(), "conv1", "thread1", 0)
}

func TestTaskListRender(t *testing.T) {
	client := newFakeClient()
	exec := newTaskListForTest(client)

	if err := exec.Execute(context.Background(), ops.TaskList(ops.TaskListUpdate, sampleTasks())); err != nil {
		t.Fatalf("execute: %v", err)
	}
	postID := exec.Snapshot().PostID
	if postID == "" {
		t.Fatal("no post created")
	}
	got := client.postText(postID)
	for _, want := range []string{"📋 *Tasks* (1/3)", "☑ Read the config", "▸ *Writing the parser*", "◻ Add tests"} {
		if !strings.Contains(got, want) {
			t.Errorf("render missing %q:\n%s", want, got)
		}
	}

	client.mu.Lock()
	pinned := client.pinned[postID]
	seeded := client.reactions[postID]
	client.mu.Unlock()
	if !pinned {
		t.Error("task list post not pinned")
	}
	if len(seeded) != 1 || seeded[0] != platform.ReactionCollapse {
		t.Errorf("seeded reactions = %v", seeded)
	}
}

// Concurrent updates race to create the first post. Exactly one interactive
// post may result, no matter how the goroutines interleave.
func TestTaskListConcurrentUpdatesCreateOnePost(t *testing.T) {
	client := newFakeClient()
	client.createDelay = 10 * time.Millisecond
	exec := newTaskListForTest(client)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exec.Execute(context.Background(), ops.TaskList(ops.TaskListUpdate, sampleTasks()))
		}()
	}
	wg.Wait()

	if n := client.interactiveCount(); n != 1 {
		t.Fatalf("expected exactly 1 interactive post, got %d", n)
	}
}

func TestTaskListBumpToBottom(t *testing.T) {
	client := newFakeClient()
	exec := newTaskListForTest(client)
	ctx := context.Background()

	if err := exec.Execute(ctx, ops.TaskList(ops.TaskListUpdate, sampleTasks())); err != nil {
		t.Fatalf("execute: %v", err)
	}
	first := exec.Snapshot().PostID

	if err := exec.BumpToBottom(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if client.deleteCount() != 1 {
		t.Fatalf("expected 1 delete, got %d", client.deleteCount())
	}
	second := exec.Snapshot().PostID
	if second == "" || second == first {
		t.Errorf("post not relocated: first=%q second=%q", first, second)
	}
}

func TestTaskListBumpNoopWhenCompleted(t *testing.T) {
	client := newFakeClient()
	exec := newTaskListForTest(client)
	ctx := context.Background()

	all := sampleTasks()
	for i := range all {
		all[i].State = ops.TaskCompleted
	}
	if err := exec.Execute(ctx, ops.TaskList(ops.TaskListComplete, all)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := exec.BumpToBottom(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if client.deleteCount() != 0 {
		t.Errorf("completed list must stay put, saw %d deletes", client.deleteCount())
	}
}

func TestTaskListRepurposeForContent(t *testing.T) {
	client := newFakeClient()
	exec := newTaskListForTest(client)
	ctx := context.Background()

	if err := exec.Execute(ctx, ops.TaskList(ops.TaskListUpdate, sampleTasks())); err != nil {
		t.Fatalf("execute: %v", err)
	}
	old := exec.Snapshot().PostID

	postID, ok := exec.RepurposeForContent(ctx, "displaced content")
	if !ok {
		t.Fatal("repurpose refused")
	}
	if postID != old {
		t.Errorf("repurposed id = %q, want %q", postID, old)
	}
	if got := client.postText(old); got != "displaced content" {
		t.Errorf("old post text = %q", got)
	}
	client.mu.Lock()
	pinned := client.pinned[old]
	client.mu.Unlock()
	if pinned {
		t.Error("repurposed post still pinned")
	}
	recreated := exec.Snapshot().PostID
	if recreated == "" || recreated == old {
		t.Errorf("list not recreated: %q", recreated)
	}
}

func TestTaskListRepurposeRefusals(t *testing.T) {
	ctx := context.Background()

	// No live post.
	exec := newTaskListForTest(newFakeClient())
	if _, ok := exec.RepurposeForContent(ctx, "x"); ok {
		t.Error("repurpose without a post must refuse")
	}

	// Completed list.
	client := newFakeClient()
	exec = newTaskListForTest(client)
	if err := exec.Execute(ctx, ops.TaskList(ops.TaskListComplete, sampleTasks())); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := exec.RepurposeForContent(ctx, "x"); ok {
		t.Error("completed list must refuse repurposing")
	}

	// Content larger than the configured bound.
	client = newFakeClient()
	exec = NewTaskListExecutor(client, ops.NewPostTracker(), "conv1", "thread1", 10)
	if err := exec.Execute(ctx, ops.TaskList(ops.TaskListUpdate, sampleTasks())); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := exec.RepurposeForContent(ctx, strings.Repeat("y", 11)); ok {
		t.Error("oversized content must refuse repurposing")
	}
}

func TestTaskListMinimizeIsStateBased(t *testing.T) {
	client := newFakeClient()
	exec := newTaskListForTest(client)
	ctx := context.Background()

	if err := exec.Execute(ctx, ops.TaskList(ops.TaskListUpdate, sampleTasks())); err != nil {
		t.Fatalf("execute: %v", err)
	}
	postID := exec.Snapshot().PostID
	ev := platform.ReactionEvent{PostID: postID, Name: platform.ReactionCollapse, Added: true}

	if !exec.HandleReaction(ctx, ev) {
		t.Fatal("reaction not handled")
	}
	if !exec.Snapshot().Minimized {
		t.Fatal("list not minimized")
	}
	minimizedText := client.postText(postID)
	if strings.Contains(minimizedText, "◻") {
		t.Errorf("minimized render still lists items: %q", minimizedText)
	}
	updatesAfterFirst := client.updateCount()

	// Redelivered add transition: state already matches, nothing to do.
	exec.HandleReaction(ctx, ev)
	if client.updateCount() != updatesAfterFirst {
		t.Error("idempotent minimize caused extra update")
	}

	ev.Added = false
	exec.HandleReaction(ctx, ev)
	if exec.Snapshot().Minimized {
		t.Error("remove transition must expand")
	}
}

func TestTaskListIgnoresForeignReactions(t *testing.T) {
	client := newFakeClient()
	exec := newTaskListForTest(client)
	ctx := context.Background()

	if err := exec.Execute(ctx, ops.TaskList(ops.TaskListUpdate, sampleTasks())); err != nil {
		t.Fatalf("execute: %v", err)
	}
	postID := exec.Snapshot().PostID

	if exec.HandleReaction(ctx, platform.ReactionEvent{PostID: "other", Name: platform.ReactionCollapse, Added: true}) {
		t.Error("reaction on foreign post claimed")
	}
	// Owned post, unrelated reaction: claimed but no state change.
	if !exec.HandleReaction(ctx, platform.ReactionEvent{PostID: postID, Name: "eyes", Added: true}) {
		t.Error("owned post must claim the reaction")
	}
	if exec.Snapshot().Minimized {
		t.Error("unrelated reaction changed state")
	}
}

func TestTaskListReconcileTurnEnd(t *testing.T) {
	client := newFakeClient()
	exec := newTaskListForTest(client)
	ctx := context.Background()

	if err := exec.Execute(ctx, ops.TaskList(ops.TaskListUpdate, sampleTasks())); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := exec.ReconcileTurnEnd(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !exec.Snapshot().Completed {
		t.Fatal("orphaned list not frozen")
	}
	// Frozen lists no longer claim the bottom slot.
	if _, ok := exec.RepurposeForContent(ctx, "x"); ok {
		t.Error("frozen list accepted repurposing")
	}
}
