package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ignite/mautic-dnc-proxy/internal/service/actions"
)

// ActionRepo implements actions.Repository against PostgreSQL. Rows are
// only ever inserted; there is no update or delete path.
type ActionRepo struct{ db *sql.DB }

// NewActionRepo creates a Postgres-backed audit repository.
func NewActionRepo(db *sql.DB) *ActionRepo { return &ActionRepo{db: db} }

// Append inserts rec in its own transaction and sets rec.ID.
func (r *ActionRepo) Append(ctx context.Context, rec *actions.Record) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append action: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO unsubscribe_actions
			(created_at, email, origin, source_ip, result, contact_id, error_detail, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, rec.Timestamp, rec.Email, rec.Origin, rec.SourceIP, string(rec.Result),
		nullString(rec.ContactID), nullString(rec.ErrorDetail), rec.RequestID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append action: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append action: %w", err)
	}
	rec.ID = id
	return id, nil
}

// List returns matching rows ordered by id descending.
func (r *ActionRepo) List(ctx context.Context, f actions.ListFilter) ([]actions.Record, error) {
	var where []string
	var args []any
	if f.Email != "" {
		args = append(args, f.Email)
		where = append(where, fmt.Sprintf("email = $%d", len(args)))
	}
	if f.Result != "" {
		args = append(args, string(f.Result))
		where = append(where, fmt.Sprintf("result = $%d", len(args)))
	}

	query := `SELECT id, created_at, email, origin, source_ip, result, contact_id, error_detail, request_id
		FROM unsubscribe_actions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	out := []actions.Record{}
	for rows.Next() {
		var (
			rec                               actions.Record
			result                            string
			contactID, errorDetail, requestID sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Email, &rec.Origin, &rec.SourceIP,
			&result, &contactID, &errorDetail, &requestID); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		rec.Result = actions.Result(result)
		rec.ContactID = stringPtr(contactID)
		rec.ErrorDetail = stringPtr(errorDetail)
		rec.RequestID = requestID.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
