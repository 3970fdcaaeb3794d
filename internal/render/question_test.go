package render

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/ThreadClaw/ThreadClaw/internal/ops"
	"github.com/ThreadClaw/ThreadClaw/internal/platform"
)

func twoQuestions() []ops.Question {
	return []ops.Question{
		{
			Header: "Language",
			Prompt: "Which language should the service use?",
			Options: []ops.QuestionOption{
				{Label: "Go", Description: "static binary"},
				{Label: "Python"},
			},
		},
		{
			Header: "Storage",
			Prompt: "Where should state live?",
			Options: []ops.QuestionOption{
				{Label: "SQLite"},
				{Label: "Postgres"},
				{Label: "Memory"},
			},
		},
	}
}

func TestQuestionFlow(t *testing.T) {
	client := newFakeClient()
	var gotID string
	var gotAnswers []string
	exec := NewQuestionExecutor(client, ops.NewPostTracker(), "conv1", "thread1",
		func(toolUseID string, answers []string) { gotID, gotAnswers = toolUseID, answers }, nil)
	ctx := context.Background()

	if err := exec.BeginQuestions(ctx, ops.NewQuestion("tu1", twoQuestions())); err != nil {
		t.Fatalf("begin: %v", err)
	}
	first := exec.Snapshot()
	if len(first.PendingQuestions) != 1 || first.PendingQuestions[0] != "tu1" {
		t.Fatalf("pending = %v", first.PendingQuestions)
	}
	post1 := client.lastInteractive()
	text := client.postText(post1)
	if !strings.Contains(text, "❓ *Language* (1/2)") || !strings.Contains(text, "1. *Go*") {
		t.Errorf("question render:\n%s", text)
	}
	client.mu.Lock()
	seeded := len(client.reactions[post1])
	client.mu.Unlock()
	if seeded != 2 {
		t.Errorf("seeded %d reactions, want one per option", seeded)
	}

	// Answer question one; the answered post stays as a record and the
	// next question gets its own post.
	exec.HandleReaction(ctx, platform.ReactionEvent{PostID: post1, Name: "two", Added: true})
	if client.interactiveCount() != 2 {
		t.Fatalf("expected a second question post, got %d", client.interactiveCount())
	}
	post2 := client.lastInteractive()
	if post2 == post1 {
		t.Fatal("second question reused the first post")
	}
	if !strings.Contains(client.postText(post2), "❓ *Storage* (2/2)") {
		t.Errorf("second question render:\n%s", client.postText(post2))
	}
	if gotAnswers != nil {
		t.Fatal("callback fired before the flow finished")
	}

	exec.HandleReaction(ctx, platform.ReactionEvent{PostID: post2, Name: "one", Added: true})
	if gotID != "tu1" {
		t.Errorf("callback id = %q", gotID)
	}
	if want := []string{"Python", "SQLite"}; !reflect.DeepEqual(gotAnswers, want) {
		t.Errorf("answers = %v, want %v", gotAnswers, want)
	}
	if len(exec.Snapshot().PendingQuestions) != 0 {
		t.Error("finished flow still pending")
	}
}

func TestQuestionRemovedReactionIgnored(t *testing.T) {
	client := newFakeClient()
	called := false
	exec := NewQuestionExecutor(client, ops.NewPostTracker(), "conv1", "thread1",
		func(string, []string) { called = true }, nil)
	ctx := context.Background()

	if err := exec.BeginQuestions(ctx, ops.NewQuestion("tu1", twoQuestions()[:1])); err != nil {
		t.Fatalf("begin: %v", err)
	}
	post := client.lastInteractive()

	// Only the added transition decides.
	if !exec.HandleReaction(ctx, platform.ReactionEvent{PostID: post, Name: "one", Added: false}) {
		t.Fatal("owned reaction not claimed")
	}
	if called {
		t.Error("removed reaction resolved the question")
	}
	// Non-numbered reactions are ignored too.
	exec.HandleReaction(ctx, platform.ReactionEvent{PostID: post, Name: "eyes", Added: true})
	if called {
		t.Error("unrelated reaction resolved the question")
	}
}

func TestQuestionOutOfRangeOptionIgnored(t *testing.T) {
	client := newFakeClient()
	called := false
	exec := NewQuestionExecutor(client, ops.NewPostTracker(), "conv1", "thread1",
		func(string, []string) { called = true }, nil)
	ctx := context.Background()

	// One question, two options; reaction "three" names no option.
	if err := exec.BeginQuestions(ctx, ops.NewQuestion("tu1", twoQuestions()[:1])); err != nil {
		t.Fatalf("begin: %v", err)
	}
	exec.HandleReaction(ctx, platform.ReactionEvent{PostID: client.lastInteractive(), Name: "three", Added: true})
	if called {
		t.Error("out-of-range option accepted")
	}
}

func TestQuestionDuplicateRejected(t *testing.T) {
	client := newFakeClient()
	exec := NewQuestionExecutor(client, ops.NewPostTracker(), "conv1", "thread1", nil, nil)
	ctx := context.Background()

	if err := exec.BeginQuestions(ctx, ops.NewQuestion("tu1", twoQuestions())); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := exec.BeginQuestions(ctx, ops.NewQuestion("tu1", twoQuestions())); err == nil {
		t.Fatal("duplicate flow accepted")
	}
}

func TestApprovalResolution(t *testing.T) {
	for _, tc := range []struct {
		reaction string
		want     bool
		ack      string
	}{
		{platform.ReactionApprove, true, "white_check_mark"},
		{platform.ReactionDeny, false, "x"},
	} {
		client := newFakeClient()
		var gotID string
		var gotApproved bool
		resolved := false
		exec := NewQuestionExecutor(client, ops.NewPostTracker(), "conv1", "thread1", nil,
			func(toolUseID string, approved bool) { gotID, gotApproved, resolved = toolUseID, approved, true })
		ctx := context.Background()

		if err := exec.BeginApproval(ctx, ops.NewApproval("tu9", ops.ApprovalPlan, "1. Do the thing")); err != nil {
			t.Fatalf("begin approval: %v", err)
		}
		post := client.lastInteractive()
		if text := client.postText(post); !strings.Contains(text, "Plan ready for review") {
			t.Errorf("approval render:\n%s", text)
		}

		exec.HandleReaction(ctx, platform.ReactionEvent{PostID: post, Name: tc.reaction, Added: true})
		if !resolved {
			t.Fatalf("%s did not resolve", tc.reaction)
		}
		if gotID != "tu9" || gotApproved != tc.want {
			t.Errorf("resolution = (%q, %v), want (tu9, %v)", gotID, gotApproved, tc.want)
		}
		if len(exec.Snapshot().PendingApprovals) != 0 {
			t.Error("resolved approval still pending")
		}
		client.mu.Lock()
		acks := append([]string(nil), client.reactions[post]...)
		client.mu.Unlock()
		if len(acks) == 0 || acks[len(acks)-1] != tc.ack {
			t.Errorf("%s ack reactions = %v, want trailing %q", tc.reaction, acks, tc.ack)
		}

		// A second decision on the same post is a no-op.
		resolved = false
		exec.HandleReaction(ctx, platform.ReactionEvent{PostID: post, Name: tc.reaction, Added: true})
		if resolved {
			t.Error("stale approval post resolved twice")
		}
	}
}

func TestApprovalSeedsThumbReactions(t *testing.T) {
	client := newFakeClient()
	exec := NewQuestionExecutor(client, ops.NewPostTracker(), "conv1", "thread1", nil, nil)

	if err := exec.BeginApproval(context.Background(), ops.NewApproval("tu2", ops.ApprovalAction, "rm -rf build")); err != nil {
		t.Fatalf("begin approval: %v", err)
	}
	post := client.lastInteractive()
	client.mu.Lock()
	seeded := append([]string(nil), client.reactions[post]...)
	client.mu.Unlock()
	if len(seeded) != 2 || seeded[0] != platform.ReactionApprove || seeded[1] != platform.ReactionDeny {
		t.Errorf("seeded reactions = %v", seeded)
	}
}
