package editor

import (
	"errors"
	"testing"
)

func appendParagraph(text string) func(root *Node) error {
	return func(root *Node) error {
		return insertBlocks(root, nil, inlineBlock(NodeParagraph, text))
	}
}

func TestDocumentNotifiesOnChange(t *testing.T) {
	doc := NewDocument(EmptyDoc(), true)
	calls := 0
	unsubscribe := doc.Subscribe(func() { calls++ })

	changed, err := doc.Apply(appendParagraph("Amen"))
	if err != nil || !changed {
		t.Fatalf("Apply() = %v, %v", changed, err)
	}
	if calls != 1 || doc.Version() != 1 || doc.HTML() != "<p>Amen</p>" {
		t.Fatalf("calls=%d version=%d html=%s", calls, doc.Version(), doc.HTML())
	}

	unsubscribe()
	unsubscribe()
	if _, err := doc.Apply(appendParagraph("Alleluia")); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("unsubscribed callback ran, calls=%d", calls)
	}
}

func TestDocumentSkipsNoopAndFailedTransactions(t *testing.T) {
	doc := NewDocument(EmptyDoc(), true)
	calls := 0
	doc.Subscribe(func() { calls++ })

	changed, err := doc.Apply(func(*Node) error { return nil })
	if err != nil || changed {
		t.Fatalf("noop Apply() = %v, %v", changed, err)
	}
	boom := errors.New("boom")
	if _, err := doc.Apply(func(root *Node) error {
		root.Content = nil
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Apply() error = %v, want boom", err)
	}
	if calls != 0 || doc.Version() != 0 || doc.CanUndo() {
		t.Fatalf("calls=%d version=%d canUndo=%v", calls, doc.Version(), doc.CanUndo())
	}
}

func TestDocumentUndoRedo(t *testing.T) {
	doc := NewDocument(EmptyDoc(), true)
	for _, text := range []string{"one", "two"} {
		if _, err := doc.Apply(appendParagraph(text)); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	if !doc.Undo() || doc.HTML() != "<p>one</p>" {
		t.Fatalf("after undo html=%s", doc.HTML())
	}
	if !doc.Redo() || doc.HTML() != "<p>one</p><p>two</p>" {
		t.Fatalf("after redo html=%s", doc.HTML())
	}
	if doc.Redo() {
		t.Fatal("redo stack should be empty")
	}

	doc.Undo()
	if _, err := doc.Apply(appendParagraph("three")); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if doc.CanRedo() {
		t.Fatal("a new transaction must clear the redo stack")
	}
}

func TestDocumentWithoutHistory(t *testing.T) {
	doc := NewDocument(EmptyDoc(), false)
	if _, err := doc.Apply(appendParagraph("one")); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if doc.Undo() {
		t.Fatal("undo must be unavailable without history")
	}
}
