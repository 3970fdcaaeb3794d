package session

import (
	"testing"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/render"
)

func TestSessionRoundTrip(t *testing.T) {
	mgr := NewManager(t.TempDir())

	s := mgr.GetOrCreate("C123:171717.42")
	s.AddMessage("user", "fix the build")
	s.AddMessage("assistant", "Working on it.")
	s.SetSnapshot(render.ConversationSnapshot{
		ID:       "C123:171717.42",
		ThreadID: "171717.42",
		Content:  render.ContentSnapshot{PostID: "p1", Committed: "Working on it."},
		TaskList: render.TaskListSnapshot{PostID: "p2", Completed: true},
	})
	if err := mgr.Save(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A fresh manager must reload from disk, not from cache.
	reloaded := NewManager(mgr.sessionsDir).GetOrCreate("C123:171717.42")
	if len(reloaded.Messages) != 2 {
		t.Fatalf("reloaded %d messages, want 2", len(reloaded.Messages))
	}
	if reloaded.Messages[1].Content != "Working on it." {
		t.Errorf("message content = %q", reloaded.Messages[1].Content)
	}
	if reloaded.Snapshot.Content.PostID != "p1" {
		t.Errorf("snapshot post = %q", reloaded.Snapshot.Content.PostID)
	}
	if !reloaded.Snapshot.TaskList.Completed {
		t.Error("snapshot task list state lost")
	}
}

func TestSessionHistoryWindow(t *testing.T) {
	s := NewSession("k")
	for i := 0; i < 10; i++ {
		s.AddMessage("user", "m")
	}
	if got := len(s.History(3)); got != 3 {
		t.Errorf("history window = %d, want 3", got)
	}
	if got := len(s.History(100)); got != 10 {
		t.Errorf("full history = %d, want 10", got)
	}
}

func TestSessionPathSanitized(t *testing.T) {
	mgr := NewManager(t.TempDir())
	for _, key := range []string{"../../etc/passwd", "a/b\\c", "C1:2.3"} {
		path := mgr.sessionPath(key)
		if dir := mgr.sessionsDir; len(path) <= len(dir) || path[:len(dir)] != dir {
			t.Errorf("path %q escapes sessions dir", path)
		}
	}
}

func TestManagerList(t *testing.T) {
	mgr := NewManager(t.TempDir())
	s := mgr.GetOrCreate("C9:1.0")
	s.AddMessage("user", "hello")
	if err := mgr.Save(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	infos := mgr.List()
	if len(infos) != 1 {
		t.Fatalf("listed %d sessions, want 1", len(infos))
	}
	if infos[0].Key != "C9:1.0" {
		t.Errorf("key = %q", infos[0].Key)
	}
	if infos[0].UpdatedAt.IsZero() || time.Since(infos[0].UpdatedAt) > time.Minute {
		t.Errorf("updated_at = %v", infos[0].UpdatedAt)
	}

	if !mgr.Delete("C9:1.0") {
		t.Error("delete failed")
	}
	if len(mgr.List()) != 0 {
		t.Error("session listed after delete")
	}
}
