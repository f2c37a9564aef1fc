// Package editor implements the rich-text editing core behind the Bishop's
// Charge drafts: a document tree, the commands that transform it, HTML
// serialisation, keyboard shortcuts and manual save.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	ErrNotMounted        = errors.New("editor is not mounted")
	ErrReadOnly          = errors.New("editor is read-only")
	ErrExtensionDisabled = errors.New("extension is not enabled")
	ErrUnknownCommand    = errors.New("unknown editor command")
	ErrInvalidBlock      = errors.New("block index out of range")
	ErrInvalidRange      = errors.New("text range out of bounds")
	ErrInvalidArgument   = errors.New("invalid command argument")
)

type Config struct {
	Content     string
	Placeholder string
	ReadOnly    bool
	// Extensions defaults to DefaultExtensions when nil.
	Extensions []Extension
	// OnChange receives the serialised document after every change.
	OnChange func(html string)
	// OnSave is invoked by Save and the save shortcut.
	OnSave func(ctx context.Context, html string) error
}

type Selection struct {
	Block int `json:"block"`
	From  int `json:"from"`
	To    int `json:"to"`
}

type View struct {
	Loading     bool      `json:"loading"`
	HTML        string    `json:"html,omitempty"`
	Version     int64     `json:"version"`
	Empty       bool      `json:"empty"`
	Placeholder string    `json:"placeholder,omitempty"`
	ReadOnly    bool      `json:"readOnly"`
	Selection   Selection `json:"selection"`
	CanUndo     bool      `json:"canUndo"`
	CanRedo     bool      `json:"canRedo"`
	Words       int       `json:"words"`
	Characters  int       `json:"characters"`
}

type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Meta  bool   `json:"meta"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
}

type Editor struct {
	cfg Config
	ext extensionSet
	doc *Document

	mu          sync.Mutex
	mounted     bool
	destroyed   bool
	selection   Selection
	unsubscribe func()
}

// New builds an unmounted editor around cfg.Content.
func New(cfg Config) (*Editor, error) {
	set := newExtensionSet(cfg.Extensions)
	root := EmptyDoc()
	if strings.TrimSpace(cfg.Content) != "" {
		parsed, err := ParseHTML(cfg.Content)
		if err != nil {
			return nil, err
		}
		root = set.conform(parsed)[0]
	}

	e := &Editor{
		cfg: cfg,
		ext: set,
		doc: NewDocument(root, set[ExtHistory]),
	}
	if cfg.OnChange != nil {
		e.unsubscribe = e.doc.Subscribe(func() {
			cfg.OnChange(e.doc.HTML())
		})
	}
	return e, nil
}

// Mount marks the editor interactive. Until then View reports Loading and
// commands fail with ErrNotMounted.
func (e *Editor) Mount() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.destroyed {
		e.mounted = true
	}
}

func (e *Editor) Mounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mounted
}

// Destroy unmounts the editor and stops change notifications.
func (e *Editor) Destroy() {
	e.mu.Lock()
	e.mounted = false
	e.destroyed = true
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (e *Editor) Document() *Document {
	return e.doc
}

func (e *Editor) HTML() string {
	return e.doc.HTML()
}

func (e *Editor) Enabled(ext Extension) bool {
	return e.ext[ext]
}

func (e *Editor) SetSelection(sel Selection) {
	e.mu.Lock()
	e.selection = sel
	e.mu.Unlock()
}

func (e *Editor) View() View {
	e.mu.Lock()
	mounted, sel := e.mounted, e.selection
	e.mu.Unlock()

	view := View{
		Loading:  !mounted,
		ReadOnly: e.cfg.ReadOnly,
	}
	if !mounted {
		view.Placeholder = e.cfg.Placeholder
		return view
	}

	root := e.doc.Snapshot()
	text := root.TextContent()
	view.HTML = e.doc.HTML()
	view.Version = e.doc.Version()
	view.Empty = root.IsEmpty()
	view.Selection = sel
	view.CanUndo = e.doc.CanUndo()
	view.CanRedo = e.doc.CanRedo()
	view.Words = len(strings.Fields(text))
	view.Characters = utf8.RuneCountInString(text)
	if view.Empty {
		view.Placeholder = e.cfg.Placeholder
	}
	return view
}

func (e *Editor) ready() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.mounted {
		return ErrNotMounted
	}
	return nil
}

// Exec applies cmd as a single transaction.
func (e *Editor) Exec(cmd Command) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.cfg.ReadOnly {
		return ErrReadOnly
	}
	if ext, ok := requiredExtension(cmd); ok && !e.ext[ext] {
		return fmt.Errorf("%w: %s", ErrExtensionDisabled, ext)
	}

	switch cmd.Name {
	case CmdUndo:
		e.doc.Undo()
		return nil
	case CmdRedo:
		e.doc.Redo()
		return nil
	}

	tx, err := transaction(cmd, e.ext)
	if err != nil {
		return err
	}
	_, err = e.doc.Apply(tx)
	return err
}

// SetContent replaces the whole document.
func (e *Editor) SetContent(html string) error {
	return e.Exec(Command{Name: CmdSetContent, Args: Args{HTML: html}})
}

// Save hands the current HTML to OnSave, bypassing any debounce.
func (e *Editor) Save(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.cfg.OnSave == nil {
		return nil
	}
	return e.cfg.OnSave(ctx, e.doc.HTML())
}

// HandleKey runs the shortcut bound to ev. Ctrl and Cmd are interchangeable.
// It reports whether the key was bound.
func (e *Editor) HandleKey(ctx context.Context, ev KeyEvent) (bool, error) {
	if !(ev.Ctrl || ev.Meta) || ev.Alt {
		return false, nil
	}

	key := strings.ToLower(ev.Key)
	switch {
	case key == "s" && !ev.Shift:
		return true, e.Save(ctx)
	case key == "s" && ev.Shift:
		return true, e.toggleSelection(MarkStrike)
	case key == "b" && !ev.Shift:
		return true, e.toggleSelection(MarkBold)
	case key == "i" && !ev.Shift:
		return true, e.toggleSelection(MarkItalic)
	case key == "u" && !ev.Shift:
		return true, e.toggleSelection(MarkUnderline)
	case key == "e" && !ev.Shift:
		return true, e.toggleSelection(MarkCode)
	case key == "z" && !ev.Shift:
		return true, e.Exec(Command{Name: CmdUndo})
	case (key == "z" && ev.Shift) || (key == "y" && !ev.Shift):
		return true, e.Exec(Command{Name: CmdRedo})
	}
	return false, nil
}

// toggleSelection applies a mark shortcut to the current selection. A
// collapsed selection leaves the document untouched.
func (e *Editor) toggleSelection(markType string) error {
	e.mu.Lock()
	sel := e.selection
	e.mu.Unlock()

	if err := e.ready(); err != nil {
		return err
	}
	if sel.From == sel.To {
		return nil
	}
	return e.Exec(Command{Name: CmdToggleMark, Args: Args{Mark: markType, Block: sel.Block, From: sel.From, To: sel.To}})
}
