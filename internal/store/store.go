// Package store persists the audit trail: posts, turn accounting,
// approvals, and interactive answers, in a local sqlite database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	// Best-effort migrations for existing dbs (no-op if column exists).
	_, _ = db.Exec(`ALTER TABLE turns ADD COLUMN cache_read_tokens INTEGER NOT NULL DEFAULT 0`)
	_, _ = db.Exec(`ALTER TABLE approvals ADD COLUMN description TEXT DEFAULT ''`)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordPost(postID, conversationID, kind string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO posts (post_id, conversation_id, kind) VALUES (?, ?, ?)`,
		postID, conversationID, kind,
	)
	return err
}

// PostsFor returns the audited posts of one conversation, oldest first.
func (s *Store) PostsFor(conversationID string) ([]PostRecord, error) {
	rows, err := s.db.Query(
		`SELECT post_id, conversation_id, kind, created_at FROM posts
		 WHERE conversation_id = ? ORDER BY created_at ASC, post_id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostRecord
	for rows.Next() {
		var rec PostRecord
		if err := rows.Scan(&rec.PostID, &rec.ConversationID, &rec.Kind, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) RecordTurn(rec *TurnRecord) error {
	_, err := s.db.Exec(`
	INSERT INTO turns (conversation_id, model, cost_usd, input_tokens, output_tokens, cache_read_tokens, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ConversationID,
		rec.Model,
		rec.CostUSD,
		rec.InputTokens,
		rec.OutputTokens,
		rec.CacheReadTokens,
		rec.DurationMS,
	)
	return err
}

func (s *Store) RecordApproval(toolUseID, conversationID, kind, description string) error {
	_, err := s.db.Exec(`
	INSERT OR IGNORE INTO approvals (tool_use_id, conversation_id, kind, description, status)
	VALUES (?, ?, ?, ?, ?)
	`, toolUseID, conversationID, kind, description, ApprovalPending)
	return err
}

func (s *Store) ResolveApproval(toolUseID string, approved bool) error {
	status := ApprovalDenied
	if approved {
		status = ApprovalApproved
	}
	res, err := s.db.Exec(
		`UPDATE approvals SET status = ?, responded_at = CURRENT_TIMESTAMP WHERE tool_use_id = ? AND status = ?`,
		status, toolUseID, ApprovalPending,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no pending approval for %s", toolUseID)
	}
	return nil
}

func (s *Store) RecordAnswer(toolUseID, conversationID, question, answer string) error {
	_, err := s.db.Exec(
		`INSERT INTO answers (tool_use_id, conversation_id, question, answer) VALUES (?, ?, ?, ?)`,
		toolUseID, conversationID, question, answer,
	)
	return err
}

// TurnFilter narrows RecentTurns queries.
type TurnFilter struct {
	ConversationID string
	Since          *time.Time
	Limit          int
}

func (s *Store) RecentTurns(filter TurnFilter) ([]TurnRecord, error) {
	query := `SELECT id, conversation_id, COALESCE(model,''), cost_usd, input_tokens, output_tokens, cache_read_tokens, duration_ms, created_at FROM turns WHERE 1=1`
	args := []interface{}{}

	if filter.ConversationID != "" {
		query += " AND conversation_id = ?"
		args = append(args, filter.ConversationID)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, *filter.Since)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []TurnRecord
	for rows.Next() {
		var t TurnRecord
		if err := rows.Scan(
			&t.ID,
			&t.ConversationID,
			&t.Model,
			&t.CostUSD,
			&t.InputTokens,
			&t.OutputTokens,
			&t.CacheReadTokens,
			&t.DurationMS,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// TurnTotals aggregates cost and token usage across all conversations.
func (s *Store) TurnTotals() (Totals, error) {
	var t Totals
	err := s.db.QueryRow(`
	SELECT COUNT(*), COALESCE(SUM(cost_usd),0), COALESCE(SUM(input_tokens),0), COALESCE(SUM(output_tokens),0) FROM turns
	`).Scan(&t.Turns, &t.CostUSD, &t.InputTokens, &t.OutputTokens)
	return t, err
}

func (s *Store) PendingApprovals() ([]ApprovalRecord, error) {
	rows, err := s.db.Query(`
	SELECT id, tool_use_id, conversation_id, kind, COALESCE(description,''), status, created_at, responded_at
	FROM approvals WHERE status = ? ORDER BY created_at ASC
	`, ApprovalPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ApprovalRecord
	for rows.Next() {
		var r ApprovalRecord
		if err := rows.Scan(&r.ID, &r.ToolUseID, &r.ConversationID, &r.Kind, &r.Description, &r.Status, &r.CreatedAt, &r.RespondedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *Store) AnswersFor(toolUseID string) ([]AnswerRecord, error) {
	rows, err := s.db.Query(`
	SELECT id, tool_use_id, conversation_id, question, answer, created_at
	FROM answers WHERE tool_use_id = ? ORDER BY id ASC
	`, toolUseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []AnswerRecord
	for rows.Next() {
		var r AnswerRecord
		if err := rows.Scan(&r.ID, &r.ToolUseID, &r.ConversationID, &r.Question, &r.Answer, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
