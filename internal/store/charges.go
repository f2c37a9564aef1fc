package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const chargeColumns = `id, title, content, is_active, created_at, updated_at`

func scanCharge(row scanner) (BishopCharge, error) {
	var item BishopCharge
	err := row.Scan(&item.ID, &item.Title, &item.Content, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// deactivateOthers clears the active flag on every charge except keepID.
func deactivateOthers(ctx context.Context, tx *sql.Tx, keepID string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE bishop_charges SET is_active=FALSE, updated_at=NOW()
		WHERE is_active AND id <> $1
	`, keepID); err != nil {
		return fmt.Errorf("deactivate charges: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCharges(ctx context.Context) ([]BishopCharge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chargeColumns+` FROM bishop_charges ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	defer rows.Close()

	items := make([]BishopCharge, 0)
	for rows.Next() {
		item, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charge: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate charges: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCharge(ctx context.Context, id string) (BishopCharge, error) {
	item, err := scanCharge(s.db.QueryRowContext(ctx, `SELECT `+chargeColumns+` FROM bishop_charges WHERE id=$1`, id))
	if err != nil {
		return BishopCharge{}, fmt.Errorf("get charge: %w", err)
	}
	return item, nil
}

// GetActiveCharge returns nil when no charge is published.
func (s *PostgresStore) GetActiveCharge(ctx context.Context) (*BishopCharge, error) {
	item, err := scanCharge(s.db.QueryRowContext(ctx, `
		SELECT `+chargeColumns+` FROM bishop_charges
		WHERE is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active charge: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) InsertCharge(ctx context.Context, item BishopCharge) (BishopCharge, error) {
	var saved BishopCharge
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if item.IsActive {
			if err := deactivateOthers(ctx, tx, item.ID); err != nil {
				return err
			}
		}
		var err error
		saved, err = scanCharge(tx.QueryRowContext(ctx, `
			INSERT INTO bishop_charges (id, title, content, is_active)
			VALUES ($1, $2, $3, $4)
			RETURNING `+chargeColumns, item.ID, item.Title, item.Content, item.IsActive))
		if err != nil {
			return classify("insert charge", err)
		}
		return nil
	})
	return saved, err
}

func (s *PostgresStore) UpdateCharge(ctx context.Context, item BishopCharge) (BishopCharge, error) {
	var saved BishopCharge
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if item.IsActive {
			if err := deactivateOthers(ctx, tx, item.ID); err != nil {
				return err
			}
		}
		var err error
		saved, err = scanCharge(tx.QueryRowContext(ctx, `
			UPDATE bishop_charges SET title=$2, content=$3, is_active=$4, updated_at=NOW()
			WHERE id=$1
			RETURNING `+chargeColumns, item.ID, item.Title, item.Content, item.IsActive))
		if err != nil {
			return classify("update charge", err)
		}
		return nil
	})
	return saved, err
}

// UpdateChargeContent writes only the body. Used by autosave and manual saves.
func (s *PostgresStore) UpdateChargeContent(ctx context.Context, id, content string) (BishopCharge, error) {
	item, err := scanCharge(s.db.QueryRowContext(ctx, `
		UPDATE bishop_charges SET content=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+chargeColumns, id, content))
	if err != nil {
		return BishopCharge{}, fmt.Errorf("update charge content: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ActivateCharge(ctx context.Context, id string) (BishopCharge, error) {
	var saved BishopCharge
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deactivateOthers(ctx, tx, id); err != nil {
			return err
		}
		var err error
		saved, err = scanCharge(tx.QueryRowContext(ctx, `
			UPDATE bishop_charges SET is_active=TRUE, updated_at=NOW()
			WHERE id=$1
			RETURNING `+chargeColumns, id))
		if err != nil {
			return fmt.Errorf("activate charge: %w", err)
		}
		return nil
	})
	return saved, err
}

func (s *PostgresStore) DeleteCharge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bishop_charges WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete charge: %w", err)
	}
	return expectRow(res, "delete charge")
}
