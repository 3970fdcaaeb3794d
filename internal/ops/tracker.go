package ops

import "sync"

// PostTracker maps platform post identifiers to the conversation that owns
// them. It is append-only for the lifetime of a conversation: stale entries
// are harmless, they just fail the later "which executor owns this" lookup.
type PostTracker struct {
	mu      sync.RWMutex
	owner   map[string]string
	onTrack func(postID, conversationID, kind string)
}

// NewPostTracker creates an empty tracker.
func NewPostTracker() *PostTracker {
	return &PostTracker{owner: make(map[string]string)}
}

// SetObserver registers a callback invoked once per tracked post, outside
// the tracker lock. Set before any executor runs.
func (t *PostTracker) SetObserver(fn func(postID, conversationID, kind string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTrack = fn
}

// Track records that postID belongs to conversationID. kind names the
// executor that created the post.
func (t *PostTracker) Track(postID, conversationID, kind string) {
	if postID == "" {
		return
	}
	t.mu.Lock()
	t.owner[postID] = conversationID
	fn := t.onTrack
	t.mu.Unlock()
	if fn != nil {
		fn(postID, conversationID, kind)
	}
}

// Owner returns the conversation owning postID, if any.
func (t *PostTracker) Owner(postID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.owner[postID]
	return id, ok
}

// Forget drops every entry owned by conversationID. Called only when the
// conversation itself ends.
func (t *PostTracker) Forget(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for postID, owner := range t.owner {
		if owner == conversationID {
			delete(t.owner, postID)
		}
	}
}

// Len returns the number of tracked posts.
func (t *PostTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.owner)
}
