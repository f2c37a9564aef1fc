// Package autosave persists a document after it has been idle for a while.
//
// A Hook watches a Document. Every change restarts an idle timer; when the
// timer elapses and the content still differs from the last saved content,
// the SaveFunc is called once with the latest content. Saves never overlap:
// a timer that fires while a save is running is re-armed when the save
// returns. Failed saves are logged and reported through Status, and are not
// retried until the next change.
package autosave

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDelay       = 2 * time.Second
	defaultSaveTimeout = 30 * time.Second
)

// Document is the content source the hook watches.
type Document interface {
	HTML() string
	Subscribe(fn func()) (unsubscribe func())
}

type SaveFunc func(ctx context.Context, content string) error

// Timer is the subset of *time.Timer the hook uses.
type Timer interface {
	Stop() bool
}

type Options struct {
	Delay       time.Duration
	Disabled    bool
	SaveTimeout time.Duration
	Logger      *zap.Logger
	// AfterFunc and Now replace the clock in tests.
	AfterFunc func(d time.Duration, f func()) Timer
	Now       func() time.Time
}

type Status struct {
	Enabled     bool       `json:"enabled"`
	Dirty       bool       `json:"dirty"`
	Pending     bool       `json:"pending"`
	Saving      bool       `json:"saving"`
	Saves       int        `json:"saves"`
	LastSavedAt *time.Time `json:"lastSavedAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

type Hook struct {
	save        SaveFunc
	delay       time.Duration
	saveTimeout time.Duration
	logger      *zap.Logger
	afterFunc   func(d time.Duration, f func()) Timer
	now         func() time.Time

	mu          sync.Mutex
	doc         Document
	unsubscribe func()
	enabled     bool
	closed      bool
	baseline    string
	timer       Timer
	generation  uint64
	saving      bool
	rearm       bool
	marks       uint64
	saves       int
	lastSavedAt time.Time
	lastErr     error

	inflight sync.WaitGroup
}

// New binds a hook to doc. The document's current content is the baseline,
// so an untouched document never saves.
func New(doc Document, save SaveFunc, opts Options) *Hook {
	h := &Hook{
		save:        save,
		delay:       opts.Delay,
		saveTimeout: opts.SaveTimeout,
		logger:      opts.Logger,
		afterFunc:   opts.AfterFunc,
		now:         opts.Now,
		enabled:     !opts.Disabled,
	}
	if h.delay <= 0 {
		h.delay = DefaultDelay
	}
	if h.saveTimeout <= 0 {
		h.saveTimeout = defaultSaveTimeout
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.afterFunc == nil {
		h.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if h.now == nil {
		h.now = time.Now
	}

	h.mu.Lock()
	h.bindLocked(doc)
	h.mu.Unlock()
	return h
}

func (h *Hook) bindLocked(doc Document) {
	h.doc = doc
	h.baseline = doc.HTML()
	h.unsubscribe = doc.Subscribe(h.changed)
}

// SetDocument rebinds the hook. A save pending for the old document is dropped.
func (h *Hook) SetDocument(doc Document) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.stopTimerLocked()
	unsubscribe := h.unsubscribe
	h.bindLocked(doc)
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// SetEnabled pauses or resumes the hook. Resuming with unsaved content
// starts a new idle period.
func (h *Hook) SetEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.enabled == enabled {
		return
	}
	h.enabled = enabled
	if !enabled {
		h.stopTimerLocked()
		return
	}
	if h.doc.HTML() != h.baseline {
		h.armLocked()
	}
}

// MarkSaved records a save made outside the hook, such as a manual save.
func (h *Hook) MarkSaved(content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.marks++
	h.baseline = content
	h.lastSavedAt = h.now()
	h.lastErr = nil
	if h.doc.HTML() == content {
		h.stopTimerLocked()
	}
}

func (h *Hook) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := Status{
		Enabled: h.enabled && !h.closed,
		Dirty:   h.doc.HTML() != h.baseline,
		Pending: h.timer != nil,
		Saving:  h.saving,
		Saves:   h.saves,
	}
	if !h.lastSavedAt.IsZero() {
		at := h.lastSavedAt
		status.LastSavedAt = &at
	}
	if h.lastErr != nil {
		status.LastError = h.lastErr.Error()
	}
	return status
}

// Close stops watching the document. A pending save is discarded; a save
// already running is waited for. Close must not be called from the SaveFunc.
func (h *Hook) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		h.stopTimerLocked()
	}
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	h.inflight.Wait()
}

func (h *Hook) changed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || !h.enabled {
		return
	}
	if h.doc.HTML() == h.baseline {
		h.stopTimerLocked()
		return
	}
	h.armLocked()
}

func (h *Hook) armLocked() {
	h.stopTimerLocked()
	generation := h.generation
	h.timer = h.afterFunc(h.delay, func() { h.fire(generation) })
}

// stopTimerLocked cancels the pending timer. Bumping the generation also
// disarms a callback that already started but has not taken the lock yet.
func (h *Hook) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.generation++
}

func (h *Hook) fire(generation uint64) {
	h.mu.Lock()
	if h.closed || !h.enabled || generation != h.generation {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	if h.saving {
		h.rearm = true
		h.mu.Unlock()
		return
	}
	doc := h.doc
	content := doc.HTML()
	if content == h.baseline {
		h.mu.Unlock()
		return
	}
	marks := h.marks
	h.saving = true
	h.inflight.Add(1)
	h.mu.Unlock()

	defer h.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), h.saveTimeout)
	err := h.save(ctx, content)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.saving = false
	if err != nil {
		h.lastErr = err
		h.logger.Warn("autosave failed", zap.Error(err), zap.Int("bytes", len(content)))
	} else if doc == h.doc {
		// A MarkSaved during the save recorded newer content.
		if marks == h.marks {
			h.baseline = content
		}
		h.lastSavedAt = h.now()
		h.lastErr = nil
		h.saves++
		h.logger.Debug("autosaved", zap.Int("bytes", len(content)))
	}

	rearm := h.rearm
	h.rearm = false
	if rearm && !h.closed && h.enabled && h.timer == nil && h.doc.HTML() != h.baseline {
		h.armLocked()
	}
}
