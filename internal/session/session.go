// Package session persists per-conversation state: the message transcript
// and the latest renderer snapshot, one JSONL file per conversation.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/render"
)

// Message is one transcript entry: a user prompt, an assistant reply, or an
// interactive decision.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Session holds the durable state of one conversation.
type Session struct {
	Key       string                      `json:"key"`
	Messages  []Message                   `json:"messages"`
	Snapshot  render.ConversationSnapshot `json:"snapshot"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
	mu        sync.RWMutex
}

// NewSession creates an empty session for key.
func NewSession(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a transcript entry.
func (s *Session) AddMessage(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	s.UpdatedAt = time.Now()
}

// SetSnapshot stores the latest renderer state.
func (s *Session) SetSnapshot(snap render.ConversationSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshot = snap
	s.UpdatedAt = time.Now()
}

// History returns up to maxMessages of the most recent transcript entries.
func (s *Session) History(maxMessages int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.Messages) <= maxMessages {
		result := make([]Message, len(s.Messages))
		copy(result, s.Messages)
		return result
	}
	result := make([]Message, maxMessages)
	copy(result, s.Messages[len(s.Messages)-maxMessages:])
	return result
}

// Clear drops the transcript.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Messages = []Message{}
	s.UpdatedAt = time.Now()
}

// Manager owns the sessions directory and an in-memory cache.
type Manager struct {
	sessionsDir string
	cache       map[string]*Session
	mu          sync.RWMutex
}

// NewManager creates a manager rooted at dir, creating it if needed.
func NewManager(dir string) *Manager {
	_ = os.MkdirAll(dir, 0o755)
	return &Manager{
		sessionsDir: dir,
		cache:       make(map[string]*Session),
	}
}

// GetOrCreate returns the cached session for key, loading it from disk or
// creating a fresh one.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.cache[key]; ok {
		return session
	}
	session := m.load(key)
	if session == nil {
		session = NewSession(key)
	}
	m.cache[key] = session
	return session
}

// Save writes the session: a metadata line carrying the renderer snapshot,
// then one line per transcript entry.
func (m *Manager) Save(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.sessionPath(session.Key)

	session.mu.RLock()
	defer session.mu.RUnlock()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer file.Close()

	meta := metaLine{
		Type:      "metadata",
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
		Snapshot:  session.Snapshot,
	}
	line, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write session metadata: %w", err)
	}

	for _, msg := range session.Messages {
		line, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write session message: %w", err)
		}
	}

	m.cache[session.Key] = session
	return nil
}

// Delete removes a session from cache and disk.
func (m *Manager) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, key)
	return os.Remove(m.sessionPath(key)) == nil
}

type metaLine struct {
	Type      string                      `json:"_type"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
	Snapshot  render.ConversationSnapshot `json:"snapshot"`
}

// Info describes one stored session without loading its transcript.
type Info struct {
	Key       string
	CreatedAt time.Time
	UpdatedAt time.Time
	Path      string
}

// List enumerates stored sessions from the first line of each file.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []Info

	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		return sessions
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(m.sessionsDir, entry.Name())
		key := strings.TrimSuffix(entry.Name(), ".jsonl")
		key = strings.ReplaceAll(key, "_", ":")

		info := Info{Key: key, Path: path}
		if meta, ok := readMeta(path); ok {
			info.CreatedAt = meta.CreatedAt
			info.UpdatedAt = meta.UpdatedAt
		}
		sessions = append(sessions, info)
	}
	return sessions
}

func readMeta(path string) (metaLine, bool) {
	file, err := os.Open(path)
	if err != nil {
		return metaLine{}, false
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var meta metaLine
	if err := decoder.Decode(&meta); err != nil || meta.Type != "metadata" {
		return metaLine{}, false
	}
	return meta, true
}

func (m *Manager) sessionPath(key string) string {
	safeKey := strings.ReplaceAll(key, ":", "_")
	// Strip path separators and traversal components to prevent path injection.
	safeKey = strings.ReplaceAll(safeKey, "/", "_")
	safeKey = strings.ReplaceAll(safeKey, "\\", "_")
	safeKey = strings.ReplaceAll(safeKey, "..", "_")
	return filepath.Join(m.sessionsDir, filepath.Base(safeKey)+".jsonl")
}

func (m *Manager) load(key string) *Session {
	path := m.sessionPath(key)

	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	session := NewSession(key)
	decoder := json.NewDecoder(file)

	for decoder.More() {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			break
		}

		var meta metaLine
		if json.Unmarshal(raw, &meta) == nil && meta.Type == "metadata" {
			session.CreatedAt = meta.CreatedAt
			session.UpdatedAt = meta.UpdatedAt
			session.Snapshot = meta.Snapshot
			continue
		}

		var msg Message
		if json.Unmarshal(raw, &msg) == nil {
			session.Messages = append(session.Messages, msg)
		}
	}
	return session
}
