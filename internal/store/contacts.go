package store

import (
	"context"
	"fmt"
)

const contactColumns = `id, first_name, last_name, email, phone, subject, message, is_read, created_at`

func scanContact(row scanner) (Contact, error) {
	var item Contact
	err := row.Scan(&item.ID, &item.FirstName, &item.LastName, &item.Email, &item.Phone, &item.Subject,
		&item.Message, &item.IsRead, &item.CreatedAt)
	return item, err
}

// InsertContact stores a message and returns it with its server-set fields.
func (s *PostgresStore) InsertContact(ctx context.Context, item Contact) (Contact, error) {
	saved, err := scanContact(s.db.QueryRowContext(ctx, `
		INSERT INTO contacts (id, first_name, last_name, email, phone, subject, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+contactColumns,
		item.ID, item.FirstName, item.LastName, item.Email, item.Phone, item.Subject, item.Message))
	if err != nil {
		return Contact{}, classify("insert contact", err)
	}
	return saved, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, filter ContactFilter) ([]Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	if filter.UnreadOnly {
		query += ` WHERE NOT is_read`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]Contact, 0)
	for rows.Next() {
		item, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetContactRead(ctx context.Context, id string, read bool) (Contact, error) {
	item, err := scanContact(s.db.QueryRowContext(ctx, `
		UPDATE contacts SET is_read=$2 WHERE id=$1
		RETURNING `+contactColumns, id, read))
	if err != nil {
		return Contact{}, fmt.Errorf("set contact read: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteContact(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return expectRow(res, "delete contact")
}
