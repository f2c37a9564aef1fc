package store

import (
	"context"
	"fmt"
	"strings"
)

const eventColumns = `id, title, description, date, time_label, location, category, is_featured, created_at, updated_at`

func scanEvent(row scanner) (Event, error) {
	var item Event
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Date, &item.Time, &item.Location,
		&item.Category, &item.IsFeatured, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// ListEvents returns events newest date first. A zero Limit means no limit.
func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.FeaturedOnly {
		where = append(where, "is_featured")
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	items := make([]Event, 0)
	for rows.Next() {
		item, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (Event, error) {
	item, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1`, id))
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, item Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, title, description, date, time_label, location, category, is_featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.Title, item.Description, item.Date, item.Time, item.Location, item.Category, item.IsFeatured)
	if err != nil {
		return classify("insert event", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, item Event) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET title=$2, description=$3, date=$4, time_label=$5, location=$6, category=$7, is_featured=$8, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, item.Description, item.Date, item.Time, item.Location, item.Category, item.IsFeatured)
	if err != nil {
		return classify("update event", err)
	}
	return expectRow(res, "update event")
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return expectRow(res, "delete event")
}
