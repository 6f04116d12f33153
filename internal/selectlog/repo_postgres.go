package selectlog

import (
	"context"
	"database/sql"
)

// PostgresRepo appends selection events to the dest_select_log table.
// The table carries an INSERT-only policy; see schema.sql.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO dest_select_log (id, destination_id, kind, user_id, call_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.DestinationID,
		string(e.Kind),
		nullable(e.UserID),
		nullable(e.CallID),
		e.CreatedAt,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
