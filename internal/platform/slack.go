package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// ReactionEvent is one user reaction transition on a tracked post.
type ReactionEvent struct {
	PostID string
	Name   string
	UserID string
	Added  bool
}

// MessageEvent is a user message posted in a channel or thread the
// bridge watches.
type MessageEvent struct {
	Channel  string
	TS       string
	ThreadTS string
	UserID   string
	Text     string
}

// Post identifiers are "channel|timestamp" so a single string round-trips
// through the tracker and the reaction listener.
func EncodePostID(channel, timestamp string) string {
	return channel + "|" + timestamp
}

func DecodePostID(postID string) (channel, timestamp string, err error) {
	channel, timestamp, ok := strings.Cut(postID, "|")
	if !ok || channel == "" || timestamp == "" {
		return "", "", fmt.Errorf("malformed post id: %q", postID)
	}
	return channel, timestamp, nil
}

// SlackClient implements Client on top of the Slack Web API plus a
// socket-mode listener for reaction events.
type SlackClient struct {
	api       *slack.Client
	sock      *socketmode.Client
	botUserID string
	limits    Limits
	formatter Formatter
}

// Slack collapses long messages behind "show more" well before its 40k hard
// cap; the soft thresholds below pre-empt that.
var DefaultSlackLimits = Limits{
	MaxLength:     4000,
	SoftThreshold: 2800,
	SoftMaxLines:  30,
}

// NewSlackClient authenticates against Slack. The app token is only needed
// when the reaction listener is used.
func NewSlackClient(botToken, appToken string, limits Limits) (*SlackClient, error) {
	opts := []slack.Option{}
	if appToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(appToken))
	}
	api := slack.New(botToken, opts...)
	auth, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack auth: %w", err)
	}
	if limits.MaxLength <= 0 {
		limits = DefaultSlackLimits
	}
	c := &SlackClient{
		api:       api,
		botUserID: auth.UserID,
		limits:    limits,
		formatter: MrkdwnFormatter{},
	}
	if appToken != "" {
		c.sock = socketmode.New(api)
	}
	return c, nil
}

func (c *SlackClient) Limits() Limits       { return c.limits }
func (c *SlackClient) Formatter() Formatter { return c.formatter }

func (c *SlackClient) CreatePost(ctx context.Context, threadID, text string) (string, error) {
	channel, rootTS, _ := strings.Cut(threadID, "|")
	msgOpts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if rootTS != "" {
		msgOpts = append(msgOpts, slack.MsgOptionTS(rootTS))
	}
	ch, ts, err := c.api.PostMessageContext(ctx, channel, msgOpts...)
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return EncodePostID(ch, ts), nil
}

func (c *SlackClient) UpdatePost(ctx context.Context, postID, text string) error {
	channel, ts, err := DecodePostID(postID)
	if err != nil {
		return err
	}
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channel, ts, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

func (c *SlackClient) DeletePost(ctx context.Context, postID string) error {
	channel, ts, err := DecodePostID(postID)
	if err != nil {
		return err
	}
	if _, _, err := c.api.DeleteMessageContext(ctx, channel, ts); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

func (c *SlackClient) CreateInteractivePost(ctx context.Context, threadID, text string, reactions []string) (string, error) {
	postID, err := c.CreatePost(ctx, threadID, text)
	if err != nil {
		return "", err
	}
	// Seed reactions are best-effort; the post is already visible.
	for _, name := range reactions {
		if err := c.AddReaction(ctx, postID, name); err != nil {
			slog.Debug("Seed reaction failed", "post_id", postID, "reaction", name, "error", err)
		}
	}
	return postID, nil
}

func (c *SlackClient) PinPost(ctx context.Context, postID string) error {
	channel, ts, err := DecodePostID(postID)
	if err != nil {
		return err
	}
	if err := c.api.AddPinContext(ctx, channel, slack.ItemRef{Channel: channel, Timestamp: ts}); err != nil {
		return fmt.Errorf("pin post: %w", err)
	}
	return nil
}

func (c *SlackClient) UnpinPost(ctx context.Context, postID string) error {
	channel, ts, err := DecodePostID(postID)
	if err != nil {
		return err
	}
	if err := c.api.RemovePinContext(ctx, channel, slack.ItemRef{Channel: channel, Timestamp: ts}); err != nil {
		return fmt.Errorf("unpin post: %w", err)
	}
	return nil
}

func (c *SlackClient) AddReaction(ctx context.Context, postID, name string) error {
	channel, ts, err := DecodePostID(postID)
	if err != nil {
		return err
	}
	return c.api.AddReactionContext(ctx, name, slack.ItemRef{Channel: channel, Timestamp: ts})
}

func (c *SlackClient) RemoveReaction(ctx context.Context, postID, name string) error {
	channel, ts, err := DecodePostID(postID)
	if err != nil {
		return err
	}
	return c.api.RemoveReactionContext(ctx, name, slack.ItemRef{Channel: channel, Timestamp: ts})
}

// Listen runs the socket-mode loop and forwards reaction transitions and
// messages from other users to the callbacks. It blocks until ctx is
// cancelled. Either callback may be nil.
func (c *SlackClient) Listen(ctx context.Context, onReaction func(ReactionEvent), onMessage func(MessageEvent)) error {
	if c.sock == nil {
		return fmt.Errorf("slack listener requires an app-level token")
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-c.sock.Events:
				if !ok {
					return
				}
				if evt.Type != socketmode.EventTypeEventsAPI {
					continue
				}
				payload, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				c.sock.Ack(*evt.Request)
				c.handleInner(payload, onReaction, onMessage)
			}
		}
	}()
	return c.sock.RunContext(ctx)
}

func (c *SlackClient) handleInner(payload slackevents.EventsAPIEvent, onReaction func(ReactionEvent), onMessage func(MessageEvent)) {
	switch ev := payload.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if onMessage == nil || ev.User == c.botUserID || ev.User == "" {
			return
		}
		// Edits, deletes and bot posts carry a subtype; only plain user
		// messages become prompts.
		if ev.SubType != "" || ev.BotID != "" {
			return
		}
		onMessage(MessageEvent{
			Channel:  ev.Channel,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
			UserID:   ev.User,
			Text:     ev.Text,
		})
	case *slackevents.ReactionAddedEvent:
		if ev.User == c.botUserID || onReaction == nil {
			return
		}
		onReaction(ReactionEvent{
			PostID: EncodePostID(ev.Item.Channel, ev.Item.Timestamp),
			Name:   ev.Reaction,
			UserID: ev.User,
			Added:  true,
		})
	case *slackevents.ReactionRemovedEvent:
		if ev.User == c.botUserID || onReaction == nil {
			return
		}
		onReaction(ReactionEvent{
			PostID: EncodePostID(ev.Item.Channel, ev.Item.Timestamp),
			Name:   ev.Reaction,
			UserID: ev.User,
			Added:  false,
		})
	}
}
