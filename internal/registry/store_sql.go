package registry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"repcall/internal/destinations"
	"repcall/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// SQLStore keeps active calls in Postgres. Mutating operations run in
// their own transaction; Connect additionally locks the destination row
// so the busy-check and the bridge cannot interleave across concurrent
// webhook deliveries.
type SQLStore struct {
	db    *sql.DB
	dests destinations.Repository
	clock func() time.Time
}

func NewSQLStore(db *sql.DB, dests destinations.Repository) *SQLStore {
	return &SQLStore{db: db, dests: dests, clock: time.Now}
}

func (s *SQLStore) Create(ctx context.Context, p CreateParams) (Call, error) {
	now := s.clock().UTC()
	call := Call{
		ID:             uuid.NewString(),
		Provider:       p.Provider,
		ProviderCallID: p.ProviderCallID,
		UserLanguage:   p.UserLanguage,
		UserID:         p.UserID,
		DestinationID:  p.DestinationID,
		CreatedAt:      now,
	}

	const q = `
INSERT INTO calls (id, provider, provider_call_id, user_language, user_id, destination_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := s.db.ExecContext(ctx, q,
		call.ID,
		call.Provider,
		call.ProviderCallID,
		call.UserLanguage,
		call.UserID,
		call.DestinationID,
		call.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Call{}, ErrDuplicateCall
		}
		return Call{}, err
	}

	dest, err := s.dests.Get(ctx, call.DestinationID)
	if err != nil {
		return Call{}, err
	}
	call.Destination = dest
	return call, nil
}

func (s *SQLStore) Get(ctx context.Context, providerCallID, provider string) (Call, error) {
	const q = `
SELECT id, provider, provider_call_id, user_language, user_id, destination_id, created_at, connected_at, ended_at
FROM calls
WHERE provider_call_id = $1 AND provider = $2
`
	var c Call
	err := s.db.QueryRowContext(ctx, q, providerCallID, provider).Scan(
		&c.ID,
		&c.Provider,
		&c.ProviderCallID,
		&c.UserLanguage,
		&c.UserID,
		&c.DestinationID,
		&c.CreatedAt,
		&c.ConnectedAt,
		&c.EndedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrCallNotFound
		}
		return Call{}, err
	}

	dest, err := s.dests.Get(ctx, c.DestinationID)
	if err != nil {
		return Call{}, err
	}
	c.Destination = dest
	return c, nil
}

func (s *SQLStore) Connect(ctx context.Context, call Call) error {
	now := s.clock().UTC()
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := lockDestination(ctx, tx, call.DestinationID); err != nil {
			return err
		}
		busy, err := destinationInCall(ctx, tx, call.DestinationID)
		if err != nil {
			return err
		}
		if busy {
			return ErrDestinationBusy
		}
		return s.setTimestamp(ctx, tx, call.ID, "connected_at", now)
	})
}

func (s *SQLStore) End(ctx context.Context, call Call) error {
	now := s.clock().UTC()
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return s.setTimestamp(ctx, tx, call.ID, "ended_at", now)
	})
}

func (s *SQLStore) Remove(ctx context.Context, call Call) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE id = $1`, call.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCallNotFound
	}
	return nil
}

func (s *SQLStore) Reassign(ctx context.Context, call Call, newDestinationID string) (Call, error) {
	now := s.clock().UTC()
	next := Call{
		ID:             uuid.NewString(),
		Provider:       call.Provider,
		ProviderCallID: call.ProviderCallID,
		UserLanguage:   call.UserLanguage,
		UserID:         call.UserID,
		DestinationID:  newDestinationID,
		CreatedAt:      now,
	}

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM calls WHERE id = $1`, call.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrCallNotFound
		}

		const q = `
INSERT INTO calls (id, provider, provider_call_id, user_language, user_id, destination_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
		_, err = tx.ExecContext(ctx, q,
			next.ID,
			next.Provider,
			next.ProviderCallID,
			next.UserLanguage,
			next.UserID,
			next.DestinationID,
			next.CreatedAt,
		)
		return err
	})
	if err != nil {
		return Call{}, err
	}

	dest, err := s.dests.Get(ctx, newDestinationID)
	if err != nil {
		return Call{}, err
	}
	next.Destination = dest
	return next, nil
}

func (s *SQLStore) DestinationInCall(ctx context.Context, destinationID string) (bool, error) {
	return destinationInCall(ctx, s.db, destinationID)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// destinationInCall runs against the pool for the plain read and against
// the Connect transaction for the re-check under the destination lock.
func destinationInCall(ctx context.Context, q rowQuerier, destinationID string) (bool, error) {
	const query = `
SELECT EXISTS (
  SELECT 1 FROM calls
  WHERE destination_id = $1
    AND connected_at IS NOT NULL
    AND ended_at IS NULL
)
`
	var inCall bool
	if err := q.QueryRowContext(ctx, query, destinationID).Scan(&inCall); err != nil {
		return false, err
	}
	return inCall, nil
}

func (s *SQLStore) setTimestamp(ctx context.Context, tx *sql.Tx, callID, column string, ts time.Time) error {
	// column is one of the two fixed names below; never caller-supplied.
	var q string
	switch column {
	case "connected_at":
		q = `UPDATE calls SET connected_at = $2 WHERE id = $1`
	case "ended_at":
		q = `UPDATE calls SET ended_at = $2 WHERE id = $1`
	}
	res, err := tx.ExecContext(ctx, q, callID, ts)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCallNotFound
	}
	return nil
}

// lockDestination serializes concurrent check-then-act sequences that
// touch the same destination.
func lockDestination(ctx context.Context, tx *sql.Tx, destinationID string) error {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM destinations WHERE id = $1 FOR UPDATE`, destinationID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return destinationNotFoundErr(destinationID)
	}
	return err
}

func destinationNotFoundErr(id string) error {
	return errors.New("registry: destination " + id + " not found")
}
