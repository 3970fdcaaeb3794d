package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/platform"
)

// fakeClient records every platform call and serves posts from memory.
// createDelay widens the create window so interleaving bugs surface.
type fakeClient struct {
	mu          sync.Mutex
	limits      platform.Limits
	createDelay time.Duration
	failUpdates bool
	failCreates bool

	nextID      int
	posts       map[string]string
	pinned      map[string]bool
	reactions   map[string][]string
	creates     []string
	interactive []string
	updates     []string
	deletes     []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		limits:    platform.Limits{MaxLength: 4000, SoftThreshold: 2800, SoftMaxLines: 30},
		posts:     make(map[string]string),
		pinned:    make(map[string]bool),
		reactions: make(map[string][]string),
	}
}

func (f *fakeClient) newPostLocked(text string) string {
	f.nextID++
	id := fmt.Sprintf("p%d", f.nextID)
	f.posts[id] = text
	return id
}

func (f *fakeClient) CreatePost(_ context.Context, _ string, text string) (string, error) {
	time.Sleep(f.createDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates {
		return "", fmt.Errorf("create refused")
	}
	id := f.newPostLocked(text)
	f.creates = append(f.creates, id)
	return id, nil
}

func (f *fakeClient) CreateInteractivePost(_ context.Context, _ string, text string, reactions []string) (string, error) {
	time.Sleep(f.createDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates {
		return "", fmt.Errorf("create refused")
	}
	id := f.newPostLocked(text)
	f.interactive = append(f.interactive, id)
	f.reactions[id] = append([]string(nil), reactions...)
	return id, nil
}

func (f *fakeClient) UpdatePost(_ context.Context, postID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates {
		return fmt.Errorf("update refused")
	}
	if _, ok := f.posts[postID]; !ok {
		return fmt.Errorf("post %s not found", postID)
	}
	f.posts[postID] = text
	f.updates = append(f.updates, postID)
	return nil
}

func (f *fakeClient) DeletePost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[postID]; !ok {
		return fmt.Errorf("post %s not found", postID)
	}
	delete(f.posts, postID)
	f.deletes = append(f.deletes, postID)
	return nil
}

func (f *fakeClient) PinPost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned[postID] = true
	return nil
}

func (f *fakeClient) UnpinPost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned[postID] = false
	return nil
}

func (f *fakeClient) AddReaction(_ context.Context, postID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[postID] = append(f.reactions[postID], name)
	return nil
}

func (f *fakeClient) RemoveReaction(_ context.Context, postID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := f.reactions[postID]
	for i, r := range rs {
		if r == name {
			f.reactions[postID] = append(rs[:i], rs[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeClient) Limits() platform.Limits       { return f.limits }
func (f *fakeClient) Formatter() platform.Formatter { return platform.PassthroughFormatter{} }

func (f *fakeClient) postText(postID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[postID]
}

func (f *fakeClient) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func (f *fakeClient) interactiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.interactive)
}

func (f *fakeClient) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeClient) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

func (f *fakeClient) lastInteractive() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.interactive) == 0 {
		return ""
	}
	return f.interactive[len(f.interactive)-1]
}

func (f *fakeClient) lastCreate() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.creates) == 0 {
		return ""
	}
	return f.creates[len(f.creates)-1]
}
