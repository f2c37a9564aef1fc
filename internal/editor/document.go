package editor

import (
	"sort"
	"sync"
)

const defaultHistoryDepth = 100

// Document is a goroutine-safe, versioned document tree. Subscribers are
// called after every transaction that changes the serialised content.
type Document struct {
	mu      sync.RWMutex
	root    Node
	html    string
	version int64

	history bool
	depth   int
	undo    []Node
	redo    []Node

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

func NewDocument(root Node, history bool) *Document {
	root = root.Clone()
	normalize(&root)
	return &Document{
		root:    root,
		html:    RenderHTML(root),
		history: history,
		depth:   defaultHistoryDepth,
		subs:    map[int]func(){},
	}
}

func (d *Document) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.html
}

func (d *Document) Version() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Snapshot returns a deep copy of the current tree.
func (d *Document) Snapshot() Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root.Clone()
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. The returned function is safe to call more than once.
func (d *Document) Subscribe(fn func()) func() {
	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subs, id)
			d.subMu.Unlock()
		})
	}
}

func (d *Document) notify() {
	d.subMu.Lock()
	ids := make([]int, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, d.subs[id])
	}
	d.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Apply runs tx against a copy of the tree and commits it if tx succeeds.
// It reports whether the content changed.
func (d *Document) Apply(tx func(root *Node) error) (bool, error) {
	d.mu.Lock()
	next := d.root.Clone()
	if err := tx(&next); err != nil {
		d.mu.Unlock()
		return false, err
	}
	normalize(&next)
	html := RenderHTML(next)
	if html == d.html {
		d.mu.Unlock()
		return false, nil
	}
	if d.history {
		d.undo = append(d.undo, d.root)
		if len(d.undo) > d.depth {
			d.undo = d.undo[len(d.undo)-d.depth:]
		}
		d.redo = nil
	}
	d.commit(next, html)
	d.mu.Unlock()

	d.notify()
	return true, nil
}

func (d *Document) commit(root Node, html string) {
	d.root = root
	d.html = html
	d.version++
}

// Undo restores the state before the last transaction.
func (d *Document) Undo() bool {
	d.mu.Lock()
	if len(d.undo) == 0 {
		d.mu.Unlock()
		return false
	}
	prev := d.undo[len(d.undo)-1]
	d.undo = d.undo[:len(d.undo)-1]
	d.redo = append(d.redo, d.root)
	d.commit(prev, RenderHTML(prev))
	d.mu.Unlock()

	d.notify()
	return true
}

func (d *Document) Redo() bool {
	d.mu.Lock()
	if len(d.redo) == 0 {
		d.mu.Unlock()
		return false
	}
	next := d.redo[len(d.redo)-1]
	d.redo = d.redo[:len(d.redo)-1]
	d.undo = append(d.undo, d.root)
	d.commit(next, RenderHTML(next))
	d.mu.Unlock()

	d.notify()
	return true
}

func (d *Document) CanUndo() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.undo) > 0
}

func (d *Document) CanRedo() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.redo) > 0
}
