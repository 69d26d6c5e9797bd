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

// CallerStore implements ports.CallerStore over the callers table.
type CallerStore struct {
	db *sql.DB
}

var _ ports.CallerStore = (*CallerStore)(nil)

const callerColumns = `ani, owner_name, candidate_email, candidate_address_raw,
	candidate_address_normalized, line_type, sms_eligible, geocode_lat, geocode_lng,
	geocode_confidence, dpv_match_code, validated_email, validated_address,
	last_validated_at_address, last_validated_at_email, last_validated_at_linetype,
	record_source, delta_flags_json, version, last_call_at, extras_json`

// Get returns the record for ani.
func (s *CallerStore) Get(ctx context.Context, ani string) (domain.CallerRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callerColumns+` FROM callers WHERE ani = ?`, ani)

	var (
		rec                             domain.CallerRecord
		smsEligible                     int
		addrAt, emailAt, lineAt, callAt string
		deltas, extras                  string
	)
	err := row.Scan(
		&rec.ANI, &rec.OwnerName, &rec.CandidateEmail, &rec.CandidateAddressRaw,
		&rec.CandidateAddressNormalized, &rec.LineType, &smsEligible, &rec.GeocodeLat, &rec.GeocodeLng,
		&rec.GeocodeConfidence, &rec.DPVMatchCode, &rec.ValidatedEmail, &rec.ValidatedAddress,
		&addrAt, &emailAt, &lineAt,
		&rec.RecordSource, &deltas, &rec.Version, &callAt, &extras,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CallerRecord{}, domain.ErrCallerNotFound
	}
	if err != nil {
		return domain.CallerRecord{}, fmt.Errorf("failed to read caller: %w", err)
	}

	if rec.AddressValidatedAt, err = parseTime(addrAt); err != nil {
		return domain.CallerRecord{}, err
	}
	if rec.EmailValidatedAt, err = parseTime(emailAt); err != nil {
		return domain.CallerRecord{}, err
	}
	if rec.LineTypeValidatedAt, err = parseTime(lineAt); err != nil {
		return domain.CallerRecord{}, err
	}
	if rec.LastCallAt, err = parseTime(callAt); err != nil {
		return domain.CallerRecord{}, err
	}

	if err := json.Unmarshal([]byte(deltas), &rec.DeltaFlags); err != nil {
		return domain.CallerRecord{}, fmt.Errorf("failed to decode delta flags: %w", err)
	}
	if len(rec.DeltaFlags) == 0 {
		rec.DeltaFlags = nil
	}
	if extras != "" {
		rec.Extras = &domain.CallerExtras{}
		if err := json.Unmarshal([]byte(extras), rec.Extras); err != nil {
			return domain.CallerRecord{}, fmt.Errorf("failed to decode caller extras: %w", err)
		}
	}
	return rec, nil
}

// Put inserts when expected is 0 and otherwise updates only the row still at
// version expected.
func (s *CallerStore) Put(ctx context.Context, rec domain.CallerRecord, expected int64) (domain.CallerRecord, error) {
	stored := rec.Clone()
	stored.Version = expected + 1

	deltas := stored.DeltaFlags
	if deltas == nil {
		deltas = []domain.Delta{}
	}
	deltaJSON, err := json.Marshal(deltas)
	if err != nil {
		return domain.CallerRecord{}, fmt.Errorf("failed to encode delta flags: %w", err)
	}
	var extrasJSON []byte
	if stored.Extras != nil {
		if extrasJSON, err = json.Marshal(stored.Extras); err != nil {
			return domain.CallerRecord{}, fmt.Errorf("failed to encode caller extras: %w", err)
		}
	}

	args := []any{
		stored.OwnerName, stored.CandidateEmail, stored.CandidateAddressRaw,
		stored.CandidateAddressNormalized, stored.LineType, boolInt(stored.SMSEligible()),
		stored.GeocodeLat, stored.GeocodeLng, stored.GeocodeConfidence, stored.DPVMatchCode,
		stored.ValidatedEmail, stored.ValidatedAddress,
		formatTime(stored.AddressValidatedAt), formatTime(stored.EmailValidatedAt),
		formatTime(stored.LineTypeValidatedAt), string(stored.RecordSource), string(deltaJSON),
		stored.Version, formatTime(stored.LastCallAt), string(extrasJSON),
	}

	var res sql.Result
	if expected == 0 {
		res, err = s.db.ExecContext(ctx, `INSERT INTO callers (`+callerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ani) DO NOTHING`, append([]any{stored.ANI}, args...)...)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE callers SET
			owner_name = ?, candidate_email = ?, candidate_address_raw = ?,
			candidate_address_normalized = ?, line_type = ?, sms_eligible = ?,
			geocode_lat = ?, geocode_lng = ?, geocode_confidence = ?, dpv_match_code = ?,
			validated_email = ?, validated_address = ?,
			last_validated_at_address = ?, last_validated_at_email = ?,
			last_validated_at_linetype = ?, record_source = ?, delta_flags_json = ?,
			version = ?, last_call_at = ?, extras_json = ?
			WHERE ani = ? AND version = ?`, append(args, stored.ANI, expected)...)
	}
	if err != nil {
		return domain.CallerRecord{}, fmt.Errorf("failed to write caller: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.CallerRecord{}, fmt.Errorf("failed to write caller: %w", err)
	}
	if n == 0 {
		return domain.CallerRecord{}, domain.ErrVersionConflict
	}
	return stored.Clone(), nil
}

// List returns every ANI in lexical order.
func (s *CallerStore) List(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db, `SELECT ani FROM callers ORDER BY ani`)
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
