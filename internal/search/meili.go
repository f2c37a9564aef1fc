package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const (
	idxParishes = "diocese_parishes"
	idxPriests  = "diocese_priests"
	idxEvents   = "diocese_events"

	healthInterval = 10 * time.Second
)

type indexSpec struct {
	uid        string
	typ        ResultType
	filterable []string
	searchable []string
}

var indexSpecs = []indexSpec{
	{
		uid:        idxParishes,
		typ:        ResultParish,
		filterable: []string{"archdeaconryId"},
		searchable: []string{"name", "address", "serviceTimes", "archdeaconryName"},
	},
	{
		uid:        idxPriests,
		typ:        ResultPriest,
		filterable: []string{"parishId"},
		searchable: []string{"name", "title", "parishName", "bio"},
	},
	{
		uid:        idxEvents,
		typ:        ResultEvent,
		filterable: []string{"category", "date"},
		searchable: []string{"title", "location", "description"},
	},
}

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
	stopped chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is not an error: the client reports itself unhealthy
// and a background loop reconfigures it once it comes up.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	m := &Meili{
		client:  meili.New(url, meili.WithAPIKey(apiKey)),
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	for _, spec := range indexSpecs {
		m.configureIndex(spec)
	}
}

func (m *Meili) configureIndex(spec indexSpec) {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        spec.uid,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", spec.uid), zap.Error(err))
	}

	index := m.client.Index(spec.uid)
	filterable := make([]interface{}, len(spec.filterable))
	for i, v := range spec.filterable {
		filterable[i] = v
	}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.String("index", spec.uid), zap.Error(err))
	}
	searchable := append([]string(nil), spec.searchable...)
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.String("index", spec.uid), zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	defer close(m.stopped)
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
	<-m.stopped
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries every index (or the one selected by FilterType) in a
// single multi-search and concatenates the hits.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	q = normalize(q)

	var queries []*meili.SearchRequest
	for _, spec := range indexSpecs {
		if q.FilterType != "" && q.FilterType != spec.typ {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              spec.uid,
			Query:                 q.Text,
			Limit:                 int64(q.Limit),
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		typ := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, typ))
		}
	}
	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	for _, spec := range indexSpecs {
		if spec.uid == uid {
			return spec.typ
		}
	}
	return ""
}

func indexFor(typ ResultType) (string, error) {
	for _, spec := range indexSpecs {
		if spec.typ == typ {
			return spec.uid, nil
		}
	}
	return "", fmt.Errorf("unknown search type %q", typ)
}

func hitToResult(hit meili.Hit, typ ResultType) Result {
	r := Result{Type: typ, ID: decodeString(hit, "id")}
	field := func(key string) string {
		return firstNonBlank(decodeFormattedString(hit, key), decodeString(hit, key))
	}

	switch typ {
	case ResultParish:
		r.Title = field("name")
		r.Snippet = firstNonBlank(field("serviceTimes"), field("address"))
		r.Context = decodeString(hit, "archdeaconryName")
	case ResultPriest:
		r.Title = strings.TrimSpace(decodeString(hit, "title") + " " + field("name"))
		r.Snippet = field("bio")
		r.Context = decodeString(hit, "parishName")
	case ResultEvent:
		r.Title = field("title")
		r.Snippet = firstNonBlank(field("description"), field("location"))
		r.Context = decodeString(hit, "category")
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexParish(_ context.Context, r ParishRecord) error {
	_, err := m.client.Index(idxParishes).AddDocuments([]ParishRecord{r}, nil)
	return err
}

func (m *Meili) IndexPriest(_ context.Context, r PriestRecord) error {
	_, err := m.client.Index(idxPriests).AddDocuments([]PriestRecord{r}, nil)
	return err
}

func (m *Meili) IndexEvent(_ context.Context, r EventRecord) error {
	_, err := m.client.Index(idxEvents).AddDocuments([]EventRecord{r}, nil)
	return err
}

func (m *Meili) Delete(_ context.Context, typ ResultType, id string) error {
	uid, err := indexFor(typ)
	if err != nil {
		return err
	}
	_, err = m.client.Index(uid).DeleteDocument(id, nil)
	return err
}

// Replace drops every index and rebuilds it from records. Meilisearch runs
// the queued tasks of an index in order, so searches see the new content
// once the additions are processed.
func (m *Meili) Replace(_ context.Context, records Records) error {
	for _, spec := range indexSpecs {
		if _, err := m.client.DeleteIndex(spec.uid); err != nil {
			m.logger.Debug("delete index", zap.String("index", spec.uid), zap.Error(err))
		}
		m.configureIndex(spec)
	}
	if len(records.Parishes) > 0 {
		if _, err := m.client.Index(idxParishes).AddDocuments(records.Parishes, nil); err != nil {
			return fmt.Errorf("index parishes: %w", err)
		}
	}
	if len(records.Priests) > 0 {
		if _, err := m.client.Index(idxPriests).AddDocuments(records.Priests, nil); err != nil {
			return fmt.Errorf("index priests: %w", err)
		}
	}
	if len(records.Events) > 0 {
		if _, err := m.client.Index(idxEvents).AddDocuments(records.Events, nil); err != nil {
			return fmt.Errorf("index events: %w", err)
		}
	}
	return nil
}
