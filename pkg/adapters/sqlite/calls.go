package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// CallStateStore implements ports.CallStateStore over call_state. The whole
// context lives in context_json; the other columns are for operators and SQL.
type CallStateStore struct {
	db *sql.DB
}

var _ ports.CallStateStore = (*CallStateStore)(nil)

// Save upserts the call.
func (s *CallStateStore) Save(ctx context.Context, sc domain.SessionContext) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to marshal call state: %w", err)
	}
	attempts, err := json.Marshal(sc.AttemptCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}

	ended := ""
	if sc.EndedAt != nil {
		ended = formatTime(*sc.EndedAt)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO call_state
		(call_id, ani, step, attempt_counts_json, follow_up_required, follow_up_reason, context_json, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(call_id) DO UPDATE SET
			step = excluded.step,
			attempt_counts_json = excluded.attempt_counts_json,
			follow_up_required = excluded.follow_up_required,
			follow_up_reason = excluded.follow_up_reason,
			context_json = excluded.context_json,
			ended_at = excluded.ended_at`,
		sc.CallID, sc.ANI, string(sc.Step), string(attempts), boolInt(sc.FollowUpRequired),
		string(sc.FollowUpReason), string(data), formatTime(sc.CreatedAt), ended)
	if err != nil {
		return fmt.Errorf("failed to save call state: %w", err)
	}
	return nil
}

// Load reads a call back.
func (s *CallStateStore) Load(ctx context.Context, callID string) (domain.SessionContext, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT context_json FROM call_state WHERE call_id = ?`, callID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionContext{}, domain.ErrCallNotFound
	}
	if err != nil {
		return domain.SessionContext{}, fmt.Errorf("failed to load call state: %w", err)
	}

	var sc domain.SessionContext
	if err := json.Unmarshal([]byte(data), &sc); err != nil {
		return domain.SessionContext{}, fmt.Errorf("failed to unmarshal call state: %w", err)
	}
	if sc.AttemptCounts == nil {
		sc.AttemptCounts = make(map[domain.Step]int)
	}
	return sc, nil
}

// Delete removes a call.
func (s *CallStateStore) Delete(ctx context.Context, callID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM call_state WHERE call_id = ?`, callID); err != nil {
		return fmt.Errorf("failed to delete call state: %w", err)
	}
	return nil
}

// List returns call IDs, oldest first.
func (s *CallStateStore) List(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db, `SELECT call_id FROM call_state ORDER BY created_at, call_id`)
}
