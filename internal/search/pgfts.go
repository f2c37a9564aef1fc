package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

const tsQuery = "plainto_tsquery('english', $1)"

// buildQueries returns the count and page statements for q.
func buildQueries(q Query) (countSQL, dataSQL string) {
	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultParish {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'parish'::text AS type, p.id, p.name AS title,
				ts_headline('english', p.address || ' ' || p.service_times, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(a.name, '') AS context,
				ts_rank(p.fts, %[1]s) AS rank
			FROM parishes p
			LEFT JOIN archdeaconries a ON a.id = p.archdeaconry_id
			WHERE p.fts @@ %[1]s`, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultPriest {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'priest'::text AS type, pr.id, pr.title || ' ' || pr.name AS title,
				ts_headline('english', pr.bio, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(pa.name, '') AS context,
				ts_rank(pr.fts, %[1]s) AS rank
			FROM priests pr
			LEFT JOIN parishes pa ON pa.id = pr.parish_id
			WHERE pr.fts @@ %[1]s`, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultEvent {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'event'::text AS type, e.id, e.title,
				ts_headline('english', e.description || ' ' || e.location, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				e.category AS context,
				ts_rank(e.fts, %[1]s) AS rank
			FROM events e
			WHERE e.fts @@ %[1]s`, tsQuery))
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL = fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL = fmt.Sprintf(`SELECT type, id, title, snippet, context
		FROM (%s) sub
		ORDER BY rank DESC, title
		LIMIT %d OFFSET %d`, union, q.Limit, q.Offset)
	return countSQL, dataSQL
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	q = normalize(q)
	countSQL, dataSQL := buildQueries(q)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Context); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadRecords reads the whole directory for a full reindex.
func (p *PgFTS) LoadRecords(ctx context.Context) (Records, error) {
	var records Records

	rows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.address, p.service_times, coalesce(p.archdeaconry_id, ''), coalesce(a.name, '')
		FROM parishes p
		LEFT JOIN archdeaconries a ON a.id = p.archdeaconry_id
	`)
	if err != nil {
		return Records{}, fmt.Errorf("load parishes: %w", err)
	}
	records.Parishes, err = collect(rows, func(r *ParishRecord) []any {
		return []any{&r.ID, &r.Name, &r.Address, &r.ServiceTimes, &r.ArchdeaconryID, &r.ArchdeaconryName}
	})
	if err != nil {
		return Records{}, fmt.Errorf("load parishes: %w", err)
	}

	rows, err = p.db.QueryContext(ctx, `
		SELECT pr.id, pr.name, pr.title, pr.bio, coalesce(pr.parish_id, ''), coalesce(pa.name, '')
		FROM priests pr
		LEFT JOIN parishes pa ON pa.id = pr.parish_id
	`)
	if err != nil {
		return Records{}, fmt.Errorf("load priests: %w", err)
	}
	records.Priests, err = collect(rows, func(r *PriestRecord) []any {
		return []any{&r.ID, &r.Name, &r.Title, &r.Bio, &r.ParishID, &r.ParishName}
	})
	if err != nil {
		return Records{}, fmt.Errorf("load priests: %w", err)
	}

	rows, err = p.db.QueryContext(ctx, `
		SELECT id, title, description, location, category, date
		FROM events
	`)
	if err != nil {
		return Records{}, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()
	records.Events = make([]EventRecord, 0)
	for rows.Next() {
		var r EventRecord
		var date time.Time
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.Location, &r.Category, &date); err != nil {
			return Records{}, fmt.Errorf("scan event: %w", err)
		}
		r.Date = date.Unix()
		records.Events = append(records.Events, r)
	}
	if err := rows.Err(); err != nil {
		return Records{}, fmt.Errorf("load events: %w", err)
	}
	return records, nil
}

func collect[T any](rows *sql.Rows, dest func(*T) []any) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		var item T
		if err := rows.Scan(dest(&item)...); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
