package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chat request outcomes stored in chat_requests.status.
const (
	StatusOK          = "ok"
	StatusAuthError   = "auth_error"
	StatusAPIError    = "api_error"
	StatusDataError   = "data_error"
	StatusRateLimited = "rate_limited"
)

// ChatRequest is audit metadata for one assistant call. The question, the
// context and the reply are never stored.
type ChatRequest struct {
	ID           string
	SessionID    string
	AskedAt      time.Time
	Duration     time.Duration
	PromptTokens int
	Status       string
	Model        string
}

func (d *DB) RecordChatRequest(ctx context.Context, req ChatRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.AskedAt.IsZero() {
		req.AskedAt = time.Now()
	}
	_, err := d.exec(ctx, `
		INSERT INTO chat_requests (id, session_id, asked_at, duration_ms, prompt_tokens, status, model)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.SessionID, formatTime(req.AskedAt), req.Duration.Milliseconds(),
		req.PromptTokens, req.Status, req.Model)
	if err != nil {
		return fmt.Errorf("record chat request: %w", err)
	}
	return nil
}

// ChatStats summarizes chat requests asked at or after a point in time.
type ChatStats struct {
	Requests     int
	Failures     int
	PromptTokens int
	AvgDuration  time.Duration
}

func (d *DB) ChatStats(ctx context.Context, since time.Time) (ChatStats, error) {
	var (
		st    ChatStats
		avgMs sql.NullFloat64
	)
	err := d.queryRow(ctx, func(row *sql.Row) error {
		return row.Scan(&st.Requests, &st.Failures, &st.PromptTokens, &avgMs)
	}, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 0 ELSE 1 END), 0),
		       COALESCE(SUM(prompt_tokens), 0),
		       AVG(duration_ms)
		FROM chat_requests
		WHERE asked_at >= ?`, StatusOK, formatTime(since))
	if err != nil {
		return ChatStats{}, fmt.Errorf("query chat stats: %w", err)
	}
	if avgMs.Valid {
		st.AvgDuration = time.Duration(avgMs.Float64 * float64(time.Millisecond))
	}
	return st, nil
}

// PruneBefore deletes chat requests asked before cutoff and returns how many
// rows were removed.
func (d *DB) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := d.exec(ctx, `DELETE FROM chat_requests WHERE asked_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune chat requests: %w", err)
	}
	return result.RowsAffected()
}
