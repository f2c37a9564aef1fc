// Package search answers directory queries over parishes, priests and
// events. Meilisearch serves queries while it is healthy; PostgreSQL full
// text search is the fallback.
package search

import (
	"context"
	"fmt"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultParish ResultType = "parish"
	ResultPriest ResultType = "priest"
	ResultEvent  ResultType = "event"
)

func ParseType(value string) (ResultType, error) {
	switch ResultType(value) {
	case "", ResultParish, ResultPriest, ResultEvent:
		return ResultType(value), nil
	default:
		return "", fmt.Errorf("unknown search type %q", value)
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	// Context names the parent entity: the archdeaconry of a parish, the
	// parish of a priest, the category of an event.
	Context string `json:"context,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Records is a full snapshot of the searchable directory.
type Records struct {
	Parishes []ParishRecord
	Priests  []PriestRecord
	Events   []EventRecord
}

// Index is a search engine that can be fed with records.
type Index interface {
	Searcher
	IndexParish(ctx context.Context, r ParishRecord) error
	IndexPriest(ctx context.Context, r PriestRecord) error
	IndexEvent(ctx context.Context, r EventRecord) error
	Delete(ctx context.Context, typ ResultType, id string) error
	Replace(ctx context.Context, records Records) error
}

type ParishRecord struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Address          string `json:"address"`
	ServiceTimes     string `json:"serviceTimes"`
	ArchdeaconryID   string `json:"archdeaconryId"`
	ArchdeaconryName string `json:"archdeaconryName"`
}

type PriestRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Bio        string `json:"bio"`
	ParishID   string `json:"parishId"`
	ParishName string `json:"parishName"`
}

type EventRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	// Date is a unix timestamp so the index can sort on it.
	Date int64 `json:"date"`
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func normalize(q Query) Query {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
