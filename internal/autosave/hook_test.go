package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"diocese/api/internal/editor"
)

type fakeDoc struct {
	mu   sync.Mutex
	html string
	subs map[int]func()
	next int
}

func newFakeDoc(html string) *fakeDoc {
	return &fakeDoc{html: html, subs: map[int]func(){}}
}

func (d *fakeDoc) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.html
}

func (d *fakeDoc) Subscribe(fn func()) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

func (d *fakeDoc) set(html string) {
	d.mu.Lock()
	d.html = html
	fns := make([]func(), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (d *fakeDoc) subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

type fakeTimer struct {
	clock   *fakeClock
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, fn: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

// Elapse fires every timer that has not been stopped.
func (c *fakeClock) Elapse() {
	c.mu.Lock()
	var due []func()
	for _, t := range c.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t.fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type recorder struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (r *recorder) save(_ context.Context, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, content)
	return nil
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saved...)
}

func newTestHook(t *testing.T, doc Document, save SaveFunc, opts Options) (*Hook, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	opts.AfterFunc = clock.AfterFunc
	if opts.Delay == 0 {
		opts.Delay = 500 * time.Millisecond
	}
	h := New(doc, save, opts)
	t.Cleanup(h.Close)
	return h, clock
}

func TestBurstOfChangesSavesOnceWithLatestContent(t *testing.T) {
	doc := newFakeDoc("<p></p>")
	rec := &recorder{}
	h, clock := newTestHook(t, doc, rec.save, Options{})

	doc.set("<p>G</p>")
	doc.set("<p>Gr</p>")
	doc.set("<p>Grace</p>")
	assert.Equal(t, 1, clock.Pending())
	assert.Empty(t, rec.calls())

	clock.Elapse()
	assert.Equal(t, []string{"<p>Grace</p>"}, rec.calls())

	status := h.Status()
	assert.False(t, status.Dirty)
	assert.Equal(t, 1, status.Saves)
	assert.NotNil(t, status.LastSavedAt)
}

func TestDelayIsPassedToTimer(t *testing.T) {
	doc := newFakeDoc("")
	_, clock := newTestHook(t, doc, (&recorder{}).save, Options{Delay: 3 * time.Second})

	doc.set("<p>x</p>")
	require.Len(t, clock.delays, 1)
	assert.Equal(t, 3*time.Second, clock.delays[0])
}

func TestUntouchedDocumentNeverSaves(t *testing.T) {
	doc := newFakeDoc("<p>Loaded</p>")
	rec := &recorder{}
	h, clock := newTestHook(t, doc, rec.save, Options{})

	clock.Elapse()
	assert.Empty(t, rec.calls())
	assert.False(t, h.Status().Dirty)
}

func TestRevertToBaselineCancelsPendingSave(t *testing.T) {
	doc := newFakeDoc("<p>Loaded</p>")
	rec := &recorder{}
	_, clock := newTestHook(t, doc, rec.save, Options{})

	doc.set("<p>Loaded!</p>")
	doc.set("<p>Loaded</p>")
	assert.Equal(t, 0, clock.Pending())

	clock.Elapse()
	assert.Empty(t, rec.calls())
}

func TestCloseDiscardsPendingSave(t *testing.T) {
	doc := newFakeDoc("")
	rec := &recorder{}
	h, clock := newTestHook(t, doc, rec.save, Options{})

	doc.set("<p>unsaved</p>")
	h.Close()
	clock.Elapse()

	assert.Empty(t, rec.calls())
	assert.Zero(t, doc.subscribers())
	assert.False(t, h.Status().Enabled)
}

func TestSetDocumentDropsPendingSaveForOldDocument(t *testing.T) {
	first := newFakeDoc("")
	second := newFakeDoc("<p>Second</p>")
	rec := &recorder{}
	h, clock := newTestHook(t, first, rec.save, Options{})

	first.set("<p>changed</p>")
	h.SetDocument(second)
	clock.Elapse()
	assert.Empty(t, rec.calls())
	assert.Zero(t, first.subscribers())

	second.set("<p>Second edit</p>")
	clock.Elapse()
	assert.Equal(t, []string{"<p>Second edit</p>"}, rec.calls())
}

func TestFailedSaveIsReportedAndNotRetried(t *testing.T) {
	doc := newFakeDoc("")
	rec := &recorder{err: errors.New("database unavailable")}
	h, clock := newTestHook(t, doc, rec.save, Options{})

	doc.set("<p>x</p>")
	clock.Elapse()

	status := h.Status()
	assert.True(t, status.Dirty)
	assert.Equal(t, "database unavailable", status.LastError)
	assert.Zero(t, status.Saves)
	assert.Equal(t, 0, clock.Pending())

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	doc.set("<p>xy</p>")
	clock.Elapse()

	assert.Equal(t, []string{"<p>xy</p>"}, rec.calls())
	assert.Empty(t, h.Status().LastError)
}

func TestChangeDuringSaveIsSavedAfterward(t *testing.T) {
	doc := newFakeDoc("")
	started := make(chan string, 4)
	release := make(chan struct{})
	var mu sync.Mutex
	var saved []string
	save := func(_ context.Context, content string) error {
		started <- content
		<-release
		mu.Lock()
		saved = append(saved, content)
		mu.Unlock()
		return nil
	}
	h, clock := newTestHook(t, doc, save, Options{})

	doc.set("<p>one</p>")
	done := make(chan struct{})
	go func() {
		clock.Elapse()
		close(done)
	}()
	require.Equal(t, "<p>one</p>", <-started)
	assert.True(t, h.Status().Saving)

	// The second timer fires while the first save is still running.
	doc.set("<p>one two</p>")
	clock.Elapse()
	release <- struct{}{}
	<-done

	assert.Equal(t, 1, clock.Pending())
	go clock.Elapse()
	require.Equal(t, "<p>one two</p>", <-started)
	release <- struct{}{}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(saved) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"<p>one</p>", "<p>one two</p>"}, saved)
}

func TestDisabledHookDoesNotSaveUntilEnabled(t *testing.T) {
	doc := newFakeDoc("")
	rec := &recorder{}
	h, clock := newTestHook(t, doc, rec.save, Options{Disabled: true})

	doc.set("<p>draft</p>")
	clock.Elapse()
	assert.Empty(t, rec.calls())
	assert.False(t, h.Status().Enabled)

	h.SetEnabled(true)
	assert.Equal(t, 1, clock.Pending())
	clock.Elapse()
	assert.Equal(t, []string{"<p>draft</p>"}, rec.calls())

	h.SetEnabled(false)
	doc.set("<p>draft 2</p>")
	assert.Equal(t, 0, clock.Pending())
}

func TestMarkSavedCancelsPendingSave(t *testing.T) {
	doc := newFakeDoc("")
	rec := &recorder{}
	h, clock := newTestHook(t, doc, rec.save, Options{})

	doc.set("<p>manual</p>")
	h.MarkSaved("<p>manual</p>")
	clock.Elapse()

	assert.Empty(t, rec.calls())
	status := h.Status()
	assert.False(t, status.Dirty)
	assert.NotNil(t, status.LastSavedAt)
}

func TestMarkSavedDuringSaveKeepsNewerBaseline(t *testing.T) {
	doc := newFakeDoc("")
	started := make(chan string, 1)
	release := make(chan struct{})
	save := func(_ context.Context, content string) error {
		started <- content
		<-release
		return nil
	}
	h, clock := newTestHook(t, doc, save, Options{})

	doc.set("<p>a</p>")
	done := make(chan struct{})
	go func() {
		clock.Elapse()
		close(done)
	}()
	require.Equal(t, "<p>a</p>", <-started)

	// A manual save of newer content completes while the autosave runs.
	doc.set("<p>b</p>")
	h.MarkSaved("<p>b</p>")
	close(release)
	<-done

	status := h.Status()
	assert.False(t, status.Dirty)
	assert.Equal(t, 0, clock.Pending())
}

func TestHookWithEditorDocument(t *testing.T) {
	defer goleak.VerifyNone(t)

	doc := editor.NewDocument(editor.EmptyDoc(), true)
	saved := make(chan string, 1)
	h := New(doc, func(_ context.Context, content string) error {
		saved <- content
		return nil
	}, Options{Delay: 20 * time.Millisecond})
	defer h.Close()

	_, err := doc.Apply(func(root *editor.Node) error {
		root.Content = []editor.Node{{
			Type:    editor.NodeParagraph,
			Content: []editor.Node{{Type: editor.NodeText, Text: "Peace be with you"}},
		}}
		return nil
	})
	require.NoError(t, err)

	select {
	case content := <-saved:
		assert.Equal(t, "<p>Peace be with you</p>", content)
	case <-time.After(2 * time.Second):
		t.Fatal("autosave did not run")
	}
	require.Eventually(t, func() bool { return !h.Status().Dirty }, time.Second, 5*time.Millisecond)
}
