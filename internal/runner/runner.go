// Package runner manages the assistant CLI subprocess per conversation:
// spawning, streaming its stdout event lines onto the bus, and writing
// prompts and interactive replies back on stdin.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/bus"
	"github.com/ThreadClaw/ThreadClaw/internal/stream"
	"github.com/google/uuid"
)

// maxLineBytes bounds one stdout event line. Tool results can carry whole
// files, so the default bufio limit is far too small.
const maxLineBytes = 4 * 1024 * 1024

// DefaultArgs puts the assistant CLI in bidirectional stream-json mode.
var DefaultArgs = []string{
	"--input-format", "stream-json",
	"--output-format", "stream-json",
	"--verbose",
}

// Config holds the assistant process settings.
type Config struct {
	Command string
	Args    []string
	WorkDir string
	// StopGrace is how long Stop waits after stdin closes before killing.
	StopGrace time.Duration
}

// Runner owns at most one assistant process per conversation.
type Runner struct {
	cfg Config
	bus *bus.EventBus

	mu    sync.Mutex
	procs map[string]*process
}

type process struct {
	conversationID string
	threadID       string
	traceID        string
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	cancel         context.CancelFunc
	done           chan struct{}

	mu        sync.Mutex
	sessionID string
}

// New creates a runner publishing onto b.
func New(cfg Config, b *bus.EventBus) *Runner {
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	if cfg.Args == nil {
		cfg.Args = DefaultArgs
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 10 * time.Second
	}
	return &Runner{cfg: cfg, bus: b, procs: make(map[string]*process)}
}

// Start launches the assistant process for a conversation and begins
// streaming its output. Starting an already-running conversation is a no-op.
func (r *Runner) Start(ctx context.Context, conversationID, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.procs[conversationID]; running {
		return nil
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, r.cfg.Command, r.cfg.Args...)
	if r.cfg.WorkDir != "" {
		cmd.Dir = r.cfg.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", r.cfg.Command, err)
	}

	p := &process{
		conversationID: conversationID,
		threadID:       threadID,
		traceID:        uuid.NewString(),
		cmd:            cmd,
		stdin:          stdin,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	r.procs[conversationID] = p

	slog.Info("Assistant process started", "conversation", conversationID, "pid", cmd.Process.Pid, "trace", p.traceID)

	go r.drainStderr(conversationID, stderr)
	go func() {
		r.readLoop(p, stdout)
		if err := cmd.Wait(); err != nil {
			slog.Warn("Assistant process exited", "conversation", conversationID, "error", err)
		} else {
			slog.Info("Assistant process exited", "conversation", conversationID)
		}
		close(p.done)
		r.mu.Lock()
		if r.procs[conversationID] == p {
			delete(r.procs, conversationID)
		}
		r.mu.Unlock()
		// Tell downstream the conversation has no process behind it anymore
		// so per-conversation state can be released.
		r.bus.PublishEvent(&bus.AssistantEvent{
			ConversationID: conversationID,
			ThreadID:       threadID,
			TraceID:        p.traceID,
			Event:          stream.Event{Type: stream.TypeSystem, Subtype: stream.SubtypeProcessExit},
			Timestamp:      time.Now(),
		})
	}()
	return nil
}

// readLoop decodes stdout lines and publishes them onto the bus. Lines that
// are not stream events are logged at debug and skipped.
func (r *Runner) readLoop(p *process, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		ev, err := stream.Decode(scanner.Bytes())
		if err != nil {
			slog.Debug("Skipping non-event output", "conversation", p.conversationID, "error", err)
			continue
		}
		if ev.SessionID != "" {
			p.mu.Lock()
			p.sessionID = ev.SessionID
			p.mu.Unlock()
		}
		r.bus.PublishEvent(&bus.AssistantEvent{
			ConversationID: p.conversationID,
			ThreadID:       p.threadID,
			TraceID:        p.traceID,
			Event:          ev,
			Timestamp:      time.Now(),
		})
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("Assistant stdout read failed", "conversation", p.conversationID, "error", err)
	}
}

func (r *Runner) drainStderr(conversationID string, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			slog.Debug("Assistant stderr", "conversation", conversationID, "line", line)
		}
	}
}

// SessionID returns the assistant session id captured from the stream, if
// the process is running and has reported one.
func (r *Runner) SessionID(conversationID string) string {
	r.mu.Lock()
	p := r.procs[conversationID]
	r.mu.Unlock()
	if p == nil {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Running reports whether a process exists for the conversation.
func (r *Runner) Running(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.procs[conversationID]
	return ok
}

// userMessage is the stdin line format: a user event wrapping content
// blocks, mirroring the output protocol.
type userMessage struct {
	Type    string         `json:"type"`
	Message stream.Message `json:"message"`
}

// SendPrompt writes a user text message into the running process.
func (r *Runner) SendPrompt(conversationID, text string) error {
	return r.writeLine(conversationID, userMessage{
		Type: stream.TypeUser,
		Message: stream.Message{
			Role:    "user",
			Content: []stream.Block{{Type: "text", Text: text}},
		},
	})
}

// SendAnswers replies to an AskUserQuestion tool call.
func (r *Runner) SendAnswers(conversationID string, set stream.AnswerSet) error {
	payload, err := json.Marshal(set.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	return r.sendToolResult(conversationID, set.ToolUseID, payload, false)
}

// SendApproval replies to an ExitPlanMode or action approval.
func (r *Runner) SendApproval(conversationID string, decision stream.ApprovalDecision) error {
	content := "approve"
	if !decision.Approved {
		content = "deny"
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	return r.sendToolResult(conversationID, decision.ToolUseID, payload, !decision.Approved)
}

func (r *Runner) sendToolResult(conversationID, toolUseID string, content json.RawMessage, isError bool) error {
	return r.writeLine(conversationID, userMessage{
		Type: stream.TypeUser,
		Message: stream.Message{
			Role: "user",
			Content: []stream.Block{{
				Type:      stream.TypeToolResult,
				ToolUseID: toolUseID,
				Content:   content,
				IsError:   isError,
			}},
		},
	})
}

func (r *Runner) writeLine(conversationID string, msg userMessage) error {
	r.mu.Lock()
	p := r.procs[conversationID]
	r.mu.Unlock()
	if p == nil {
		return fmt.Errorf("no assistant process for conversation %s", conversationID)
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stdin message: %w", err)
	}
	if _, err := p.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write to assistant stdin: %w", err)
	}
	return nil
}

// Stop shuts the conversation's process down: close stdin, wait for a
// graceful exit, then kill.
func (r *Runner) Stop(conversationID string) error {
	r.mu.Lock()
	p := r.procs[conversationID]
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	_ = p.stdin.Close()
	select {
	case <-p.done:
		return nil
	case <-time.After(r.cfg.StopGrace):
		slog.Warn("Assistant did not exit in time, killing", "conversation", conversationID)
		p.cancel()
	}
	<-p.done
	return nil
}

// StopAll stops every running process.
func (r *Runner) StopAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.procs))
	for id := range r.procs {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		if err := r.Stop(id); err != nil {
			slog.Warn("Stop failed", "conversation", id, "error", err)
		}
	}
}
