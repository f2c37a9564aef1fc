package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func imagesFromColumns(columns ...string) []string {
	images := make([]string, 0, len(columns))
	for _, column := range columns {
		if column = strings.TrimSpace(column); column != "" {
			images = append(images, column)
		}
	}
	return images
}

func imageColumns(images []string) [3]string {
	var columns [3]string
	for i := 0; i < len(images) && i < len(columns); i++ {
		columns[i] = images[i]
	}
	return columns
}

const archdeaconryColumns = `
	a.id, a.name, a.description, a.image1, a.image2, a.image3, a.created_at, a.updated_at,
	(SELECT COUNT(*) FROM parishes p WHERE p.archdeaconry_id = a.id)`

func scanArchdeaconry(row scanner) (Archdeaconry, error) {
	var (
		item                   Archdeaconry
		image1, image2, image3 string
	)
	err := row.Scan(&item.ID, &item.Name, &item.Description, &image1, &image2, &image3, &item.CreatedAt, &item.UpdatedAt, &item.ParishCount)
	item.ImageURLs = imagesFromColumns(image1, image2, image3)
	return item, err
}

func (s *PostgresStore) ListArchdeaconries(ctx context.Context) ([]Archdeaconry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+archdeaconryColumns+` FROM archdeaconries a ORDER BY a.name`)
	if err != nil {
		return nil, fmt.Errorf("list archdeaconries: %w", err)
	}
	defer rows.Close()

	items := make([]Archdeaconry, 0)
	for rows.Next() {
		item, err := scanArchdeaconry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archdeaconry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archdeaconries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetArchdeaconry(ctx context.Context, id string) (Archdeaconry, error) {
	item, err := scanArchdeaconry(s.db.QueryRowContext(ctx, `SELECT `+archdeaconryColumns+` FROM archdeaconries a WHERE a.id=$1`, id))
	if err != nil {
		return Archdeaconry{}, fmt.Errorf("get archdeaconry: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertArchdeaconry(ctx context.Context, item Archdeaconry) error {
	images := imageColumns(item.ImageURLs)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archdeaconries (id, name, description, image1, image2, image3)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.Name, item.Description, images[0], images[1], images[2])
	if err != nil {
		return classify("insert archdeaconry", err)
	}
	return nil
}

func (s *PostgresStore) UpdateArchdeaconry(ctx context.Context, item Archdeaconry) error {
	images := imageColumns(item.ImageURLs)
	res, err := s.db.ExecContext(ctx, `
		UPDATE archdeaconries
		SET name=$2, description=$3, image1=$4, image2=$5, image3=$6, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Description, images[0], images[1], images[2])
	if err != nil {
		return classify("update archdeaconry", err)
	}
	return expectRow(res, "update archdeaconry")
}

// DeleteArchdeaconry refuses with ErrInUse while any parish references the row.
func (s *PostgresStore) DeleteArchdeaconry(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var locked string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM archdeaconries WHERE id=$1 FOR UPDATE`, id).Scan(&locked); err != nil {
			return fmt.Errorf("lock archdeaconry: %w", err)
		}
		var parishes int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM parishes WHERE archdeaconry_id=$1`, id).Scan(&parishes); err != nil {
			return fmt.Errorf("count parishes: %w", err)
		}
		if parishes > 0 {
			return fmt.Errorf("delete archdeaconry with %d parishes: %w", parishes, ErrInUse)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM archdeaconries WHERE id=$1`, id); err != nil {
			return fmt.Errorf("delete archdeaconry: %w", err)
		}
		return nil
	})
}

const parishColumns = `
	p.id, p.name, p.address, p.phone, p.email, p.service_times, p.map_url, p.latitude, p.longitude,
	p.image_url, p.archdeaconry_id, COALESCE(a.name, ''), p.created_at, p.updated_at`

func scanParish(row scanner) (Parish, error) {
	var (
		item           Parish
		archdeaconryID sql.NullString
	)
	err := row.Scan(&item.ID, &item.Name, &item.Address, &item.Phone, &item.Email, &item.ServiceTimes, &item.MapURL,
		&item.Latitude, &item.Longitude, &item.ImageURL, &archdeaconryID, &item.ArchdeaconryName, &item.CreatedAt, &item.UpdatedAt)
	item.ArchdeaconryID = stringPtr(archdeaconryID)
	return item, err
}

func (s *PostgresStore) ListParishes(ctx context.Context, filter ParishFilter) ([]Parish, error) {
	var (
		where []string
		args  []any
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, likePattern(search))
		where = append(where, fmt.Sprintf("(p.name ILIKE $%d OR p.address ILIKE $%d)", len(args), len(args)))
	}
	if filter.ArchdeaconryID != "" {
		args = append(args, filter.ArchdeaconryID)
		where = append(where, fmt.Sprintf("p.archdeaconry_id = $%d", len(args)))
	}

	query := `SELECT ` + parishColumns + ` FROM parishes p LEFT JOIN archdeaconries a ON a.id = p.archdeaconry_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parishes: %w", err)
	}
	defer rows.Close()

	items := make([]Parish, 0)
	for rows.Next() {
		item, err := scanParish(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parish: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parishes: %w", err)
	}
	return items, nil
}

// GetParish loads a parish together with the priests assigned to it.
func (s *PostgresStore) GetParish(ctx context.Context, id string) (Parish, error) {
	item, err := scanParish(s.db.QueryRowContext(ctx, `
		SELECT `+parishColumns+`
		FROM parishes p LEFT JOIN archdeaconries a ON a.id = p.archdeaconry_id
		WHERE p.id=$1
	`, id))
	if err != nil {
		return Parish{}, fmt.Errorf("get parish: %w", err)
	}
	priests, err := s.ListPriests(ctx, PriestFilter{ParishID: id})
	if err != nil {
		return Parish{}, err
	}
	item.Priests = priests
	return item, nil
}

func (s *PostgresStore) InsertParish(ctx context.Context, item Parish) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parishes (id, name, address, phone, email, service_times, map_url, latitude, longitude, image_url, archdeaconry_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, item.Name, item.Address, item.Phone, item.Email, item.ServiceTimes, item.MapURL,
		item.Latitude, item.Longitude, item.ImageURL, nullString(item.ArchdeaconryID))
	if err != nil {
		return classify("insert parish", err)
	}
	return nil
}

func (s *PostgresStore) UpdateParish(ctx context.Context, item Parish) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE parishes
		SET name=$2, address=$3, phone=$4, email=$5, service_times=$6, map_url=$7,
			latitude=$8, longitude=$9, image_url=$10, archdeaconry_id=$11, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Address, item.Phone, item.Email, item.ServiceTimes, item.MapURL,
		item.Latitude, item.Longitude, item.ImageURL, nullString(item.ArchdeaconryID))
	if err != nil {
		return classify("update parish", err)
	}
	return expectRow(res, "update parish")
}

// DeleteParish removes the parish; its priests keep existing without a parish.
func (s *PostgresStore) DeleteParish(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM parishes WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete parish: %w", err)
	}
	return expectRow(res, "delete parish")
}

const priestColumns = `
	pr.id, pr.name, pr.title, pr.phone, pr.email, pr.bio, pr.image_url, pr.parish_id,
	COALESCE(p.name, ''), pr.created_at, pr.updated_at`

func scanPriest(row scanner) (Priest, error) {
	var (
		item     Priest
		parishID sql.NullString
	)
	err := row.Scan(&item.ID, &item.Name, &item.Title, &item.Phone, &item.Email, &item.Bio, &item.ImageURL,
		&parishID, &item.ParishName, &item.CreatedAt, &item.UpdatedAt)
	item.ParishID = stringPtr(parishID)
	return item, err
}

func (s *PostgresStore) ListPriests(ctx context.Context, filter PriestFilter) ([]Priest, error) {
	var (
		where []string
		args  []any
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, likePattern(search))
		where = append(where, fmt.Sprintf("(pr.name ILIKE $%d OR pr.title ILIKE $%d)", len(args), len(args)))
	}
	if filter.ParishID != "" {
		args = append(args, filter.ParishID)
		where = append(where, fmt.Sprintf("pr.parish_id = $%d", len(args)))
	}

	query := `SELECT ` + priestColumns + ` FROM priests pr LEFT JOIN parishes p ON p.id = pr.parish_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY pr.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list priests: %w", err)
	}
	defer rows.Close()

	items := make([]Priest, 0)
	for rows.Next() {
		item, err := scanPriest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan priest: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate priests: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPriest(ctx context.Context, id string) (Priest, error) {
	item, err := scanPriest(s.db.QueryRowContext(ctx, `
		SELECT `+priestColumns+`
		FROM priests pr LEFT JOIN parishes p ON p.id = pr.parish_id
		WHERE pr.id=$1
	`, id))
	if err != nil {
		return Priest{}, fmt.Errorf("get priest: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertPriest(ctx context.Context, item Priest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO priests (id, name, title, phone, email, bio, image_url, parish_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.Name, item.Title, item.Phone, item.Email, item.Bio, item.ImageURL, nullString(item.ParishID))
	if err != nil {
		return classify("insert priest", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePriest(ctx context.Context, item Priest) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE priests
		SET name=$2, title=$3, phone=$4, email=$5, bio=$6, image_url=$7, parish_id=$8, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Title, item.Phone, item.Email, item.Bio, item.ImageURL, nullString(item.ParishID))
	if err != nil {
		return classify("update priest", err)
	}
	return expectRow(res, "update priest")
}

func (s *PostgresStore) DeletePriest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM priests WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete priest: %w", err)
	}
	return expectRow(res, "delete priest")
}

// IsNotFound reports whether err means the addressed row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
