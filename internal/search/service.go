package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const indexTimeout = 10 * time.Second

// RecordLoader reads every searchable record from the database.
type RecordLoader interface {
	LoadRecords(ctx context.Context) (Records, error)
}

// Service is the facade that tries the index first and falls back to the
// database.
type Service struct {
	index    Index
	fallback Searcher
	loader   RecordLoader
	logger   *zap.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. index may be nil when Meilisearch
// is not configured.
func NewService(index Index, fallback Searcher, loader RecordLoader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, fallback: fallback, loader: loader, logger: logger}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q = normalize(q)
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Engine: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "postgres"}
}

// async runs an index update in the background. Failures only cost
// freshness; the nightly reindex repairs them.
func (s *Service) async(op, id string, fn func(ctx context.Context) error) {
	if !s.indexReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("search index update failed", zap.String("op", op), zap.String("id", id), zap.Error(err))
		}
	}()
}

func (s *Service) IndexParish(r ParishRecord) {
	s.async("index parish", r.ID, func(ctx context.Context) error { return s.index.IndexParish(ctx, r) })
}

func (s *Service) IndexPriest(r PriestRecord) {
	s.async("index priest", r.ID, func(ctx context.Context) error { return s.index.IndexPriest(ctx, r) })
}

func (s *Service) IndexEvent(r EventRecord) {
	s.async("index event", r.ID, func(ctx context.Context) error { return s.index.IndexEvent(ctx, r) })
}

func (s *Service) Delete(typ ResultType, id string) {
	s.async("delete", id, func(ctx context.Context) error { return s.index.Delete(ctx, typ, id) })
}

var ErrIndexUnavailable = errors.New("search index unavailable")

// Reindex rebuilds the index from the database.
func (s *Service) Reindex(ctx context.Context) (Records, error) {
	if !s.indexReady() {
		return Records{}, ErrIndexUnavailable
	}
	records, err := s.loader.LoadRecords(ctx)
	if err != nil {
		return Records{}, err
	}
	if err := s.index.Replace(ctx, records); err != nil {
		return Records{}, err
	}
	s.logger.Info("search index rebuilt",
		zap.Int("parishes", len(records.Parishes)),
		zap.Int("priests", len(records.Priests)),
		zap.Int("events", len(records.Events)),
	)
	return records, nil
}

// Wait blocks until background index updates have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
