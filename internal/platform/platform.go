// Package platform defines the chat-platform capability set the renderer
// depends on, plus the Slack implementation of it.
package platform

import "context"

// Reaction names used by the interactive protocol. Numbered reactions pick
// question options, thumbs resolve approvals, the collapse reaction toggles
// minimized display on task lists and subagent posts.
var (
	NumberReactions  = []string{"one", "two", "three", "four"}
	ReactionApprove  = "+1"
	ReactionDeny     = "-1"
	ReactionCollapse = "arrow_down_small"
)

// OptionIndex maps a numbered reaction name to its option index, or -1.
func OptionIndex(name string) int {
	for i, r := range NumberReactions {
		if r == name {
			return i
		}
	}
	return -1
}

// Limits carries the platform-supplied message-size thresholds. Soft values
// trigger pre-emptive breaking before the platform collapses or truncates a
// post; MaxLength is the absolute per-post ceiling.
type Limits struct {
	MaxLength     int
	SoftThreshold int
	SoftMaxLines  int
}

// Formatter adapts generic markdown to the platform dialect. It must be
// idempotent: formatting already-formatted text is a no-op.
type Formatter interface {
	Format(text string) string
}

// Client is the capability set consumed by the executors. Implementations
// own retries and per-call timeouts; callers treat any error as "post is
// gone" and recover by recreating.
type Client interface {
	CreatePost(ctx context.Context, threadID, text string) (string, error)
	UpdatePost(ctx context.Context, postID, text string) error
	DeletePost(ctx context.Context, postID string) error
	CreateInteractivePost(ctx context.Context, threadID, text string, reactions []string) (string, error)
	PinPost(ctx context.Context, postID string) error
	UnpinPost(ctx context.Context, postID string) error
	AddReaction(ctx context.Context, postID, name string) error
	RemoveReaction(ctx context.Context, postID, name string) error
	Limits() Limits
	Formatter() Formatter
}
