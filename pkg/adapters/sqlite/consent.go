package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// ConsentStore implements ports.ConsentStore over consent_log. It only ever
// inserts and selects.
type ConsentStore struct {
	db *sql.DB
}

var _ ports.ConsentStore = (*ConsentStore)(nil)

// Append inserts rec and returns it with the assigned row ID.
func (s *ConsentStore) Append(ctx context.Context, rec domain.ConsentRecord) (domain.ConsentRecord, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO consent_log
		(ani, call_id, type, granted, transcript_snippet, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ANI, rec.CallID, string(rec.Type), boolInt(rec.Granted), rec.TranscriptSnippet, formatTime(rec.Timestamp))
	if err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("failed to append consent: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("failed to read consent id: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// ByCall returns the rows of a call in insertion order.
func (s *ConsentStore) ByCall(ctx context.Context, callID string) ([]domain.ConsentRecord, error) {
	return s.query(ctx, `WHERE call_id = ?`, callID)
}

// ByANI returns the rows of a caller in insertion order.
func (s *ConsentStore) ByANI(ctx context.Context, ani string) ([]domain.ConsentRecord, error) {
	return s.query(ctx, `WHERE ani = ?`, ani)
}

func (s *ConsentStore) query(ctx context.Context, where string, arg string) ([]domain.ConsentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, ani, call_id, type, granted, transcript_snippet, timestamp
		FROM consent_log `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query consent: %w", err)
	}
	defer rows.Close()

	var out []domain.ConsentRecord
	for rows.Next() {
		var (
			rec     domain.ConsentRecord
			granted int
			ts      string
		)
		if err := rows.Scan(&rec.ID, &rec.ANI, &rec.CallID, &rec.Type, &granted, &rec.TranscriptSnippet, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		rec.Granted = granted == 1
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
