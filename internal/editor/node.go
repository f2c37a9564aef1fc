package editor

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Node types. The tree has the same shape as a ProseMirror document.
const (
	NodeDoc            = "doc"
	NodeParagraph      = "paragraph"
	NodeHeading        = "heading"
	NodeBlockquote     = "blockquote"
	NodeCodeBlock      = "codeBlock"
	NodeBulletList     = "bulletList"
	NodeOrderedList    = "orderedList"
	NodeListItem       = "listItem"
	NodeTable          = "table"
	NodeTableRow       = "tableRow"
	NodeTableHeader    = "tableHeader"
	NodeTableCell      = "tableCell"
	NodeImage          = "image"
	NodeHorizontalRule = "horizontalRule"
	NodeHardBreak      = "hardBreak"
	NodeText           = "text"
)

// Mark types.
const (
	MarkBold      = "bold"
	MarkItalic    = "italic"
	MarkUnderline = "underline"
	MarkStrike    = "strike"
	MarkCode      = "code"
	MarkLink      = "link"
	MarkHighlight = "highlight"
)

// markRank fixes the nesting order of marks, outermost first.
var markRank = map[string]int{
	MarkLink:      0,
	MarkBold:      1,
	MarkItalic:    2,
	MarkUnderline: 3,
	MarkStrike:    4,
	MarkHighlight: 5,
	MarkCode:      6,
}

type Mark struct {
	Type  string            `json:"type"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

func (m Mark) equal(other Mark) bool {
	if m.Type != other.Type || len(m.Attrs) != len(other.Attrs) {
		return false
	}
	for k, v := range m.Attrs {
		if other.Attrs[k] != v {
			return false
		}
	}
	return true
}

type Node struct {
	Type    string            `json:"type"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Content []Node            `json:"content,omitempty"`
	Text    string            `json:"text,omitempty"`
	Marks   []Mark            `json:"marks,omitempty"`
}

// EmptyDoc is a document holding one empty paragraph.
func EmptyDoc() Node {
	return Node{Type: NodeDoc, Content: []Node{{Type: NodeParagraph}}}
}

func (n Node) Clone() Node {
	out := Node{Type: n.Type, Text: n.Text}
	if n.Attrs != nil {
		out.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			out.Attrs[k] = v
		}
	}
	if n.Content != nil {
		out.Content = make([]Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = child.Clone()
		}
	}
	if n.Marks != nil {
		out.Marks = cloneMarks(n.Marks)
	}
	return out
}

func (n Node) attr(key string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[key]
}

func (n *Node) setAttr(key, value string) {
	if value == "" {
		delete(n.Attrs, key)
		if len(n.Attrs) == 0 {
			n.Attrs = nil
		}
		return
	}
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs[key] = value
}

func isTextblock(nodeType string) bool {
	return nodeType == NodeParagraph || nodeType == NodeHeading || nodeType == NodeCodeBlock
}

// TextContent concatenates the text of every descendant.
func (n Node) TextContent() string {
	if n.Type == NodeText {
		return n.Text
	}
	var b strings.Builder
	for _, child := range n.Content {
		b.WriteString(child.TextContent())
	}
	return b.String()
}

// IsEmpty reports whether the document is a single empty paragraph.
func (n Node) IsEmpty() bool {
	if n.Type != NodeDoc {
		return false
	}
	if len(n.Content) == 0 {
		return true
	}
	return len(n.Content) == 1 && n.Content[0].Type == NodeParagraph && len(n.Content[0].Content) == 0
}

// textblocks returns pointers to every textblock in document order.
func (n *Node) textblocks() []*Node {
	var out []*Node
	var walk func(node *Node)
	walk = func(node *Node) {
		if isTextblock(node.Type) {
			out = append(out, node)
			return
		}
		for i := range node.Content {
			walk(&node.Content[i])
		}
	}
	walk(n)
	return out
}

func cloneMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]Mark, len(marks))
	for i, m := range marks {
		out[i] = Mark{Type: m.Type}
		if m.Attrs != nil {
			out[i].Attrs = make(map[string]string, len(m.Attrs))
			for k, v := range m.Attrs {
				out[i].Attrs[k] = v
			}
		}
	}
	return out
}

func sortMarks(marks []Mark) {
	sort.SliceStable(marks, func(i, j int) bool {
		return markRank[marks[i].Type] < markRank[marks[j].Type]
	})
}

func marksEqual(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}

func hasMark(marks []Mark, markType string) bool {
	for _, m := range marks {
		if m.Type == markType {
			return true
		}
	}
	return false
}

// unit is one inline position: a rune of text or a hard break.
type unit struct {
	r         rune
	hardBreak bool
	marks     []Mark
}

func explode(block Node) []unit {
	var units []unit
	for _, child := range block.Content {
		switch child.Type {
		case NodeText:
			for _, r := range child.Text {
				units = append(units, unit{r: r, marks: cloneMarks(child.Marks)})
			}
		case NodeHardBreak:
			units = append(units, unit{hardBreak: true})
		}
	}
	return units
}

// implode rebuilds inline content, merging neighbours with identical marks.
func implode(units []unit) []Node {
	var (
		out  []Node
		text strings.Builder
		cur  []Mark
		open bool
	)
	flush := func() {
		if open && text.Len() > 0 {
			out = append(out, Node{Type: NodeText, Text: text.String(), Marks: cloneMarks(cur)})
		}
		text.Reset()
		open = false
	}
	for _, u := range units {
		if u.hardBreak {
			flush()
			out = append(out, Node{Type: NodeHardBreak})
			continue
		}
		sortMarks(u.marks)
		if open && !marksEqual(cur, u.marks) {
			flush()
		}
		if !open {
			cur = u.marks
			open = true
		}
		text.WriteRune(u.r)
	}
	flush()
	return out
}

func textLength(block Node) int {
	n := 0
	for _, child := range block.Content {
		switch child.Type {
		case NodeText:
			n += utf8.RuneCountInString(child.Text)
		case NodeHardBreak:
			n++
		}
	}
	return n
}
