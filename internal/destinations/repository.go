package destinations

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("destinations: not found")
	ErrNoAlternative = errors.New("destinations: no alternative available")
)

// Repository is the read contract for destinations.
//
// PickRandom powers both the web suggestion and the IVR alternative
// search; the caller supplies the ids to exclude (the currently targeted
// destination plus any candidates already probed and found busy).
type Repository interface {
	Get(ctx context.Context, id string) (Destination, error)
	PickRandom(ctx context.Context, exclude []string) (Destination, error)
}

// SQLRepository reads destinations from Postgres.
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Get(ctx context.Context, id string) (Destination, error) {
	const q = `
SELECT id, name, country, COALESCE(group_id, '')
FROM destinations
WHERE id = $1
`
	var d Destination
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&d.ID, &d.Name, &d.Country, &d.Group); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Destination{}, ErrNotFound
		}
		return Destination{}, err
	}
	contacts, err := r.contacts(ctx, d.ID)
	if err != nil {
		return Destination{}, err
	}
	d.Contacts = contacts
	return d, nil
}

func (r *SQLRepository) PickRandom(ctx context.Context, exclude []string) (Destination, error) {
	const q = `
SELECT id, name, country, COALESCE(group_id, '')
FROM destinations
WHERE NOT (id = ANY($1::text[]))
ORDER BY random()
LIMIT 1
`
	if exclude == nil {
		exclude = []string{}
	}
	var d Destination
	if err := r.db.QueryRowContext(ctx, q, pqStringArray(exclude)).Scan(&d.ID, &d.Name, &d.Country, &d.Group); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Destination{}, ErrNoAlternative
		}
		return Destination{}, err
	}
	contacts, err := r.contacts(ctx, d.ID)
	if err != nil {
		return Destination{}, err
	}
	d.Contacts = contacts
	return d, nil
}

func (r *SQLRepository) contacts(ctx context.Context, destinationID string) ([]Contact, error) {
	const q = `
SELECT id, destination_id, type, value
FROM destination_contacts
WHERE destination_id = $1
ORDER BY id
`
	rows, err := r.db.QueryContext(ctx, q, destinationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.DestinationID, &c.Type, &c.Value); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// pqStringArray renders a text[] literal for the pgx stdlib driver.
// Backslashes and double quotes must be escaped inside the quoted
// elements or the literal is malformed.
func pqStringArray(items []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, s := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `"`, `\"`)
		b.WriteString(`"` + s + `"`)
	}
	b.WriteByte('}')
	return b.String()
}
