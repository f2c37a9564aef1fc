package editor

import (
	"fmt"
	"strconv"
	"strings"
)

// Command names accepted by Exec.
const (
	CmdSetContent           = "setContent"
	CmdClearContent         = "clearContent"
	CmdInsertParagraph      = "insertParagraph"
	CmdInsertHeading        = "insertHeading"
	CmdInsertText           = "insertText"
	CmdDeleteBlock          = "deleteBlock"
	CmdToggleMark           = "toggleMark"
	CmdSetLink              = "setLink"
	CmdUnsetLink            = "unsetLink"
	CmdSetHighlight         = "setHighlight"
	CmdUnsetHighlight       = "unsetHighlight"
	CmdSetTextAlign         = "setTextAlign"
	CmdToggleBulletList     = "toggleBulletList"
	CmdToggleOrderedList    = "toggleOrderedList"
	CmdToggleBlockquote     = "toggleBlockquote"
	CmdInsertTable          = "insertTable"
	CmdInsertImage          = "insertImage"
	CmdInsertHorizontalRule = "insertHorizontalRule"
	CmdUndo                 = "undo"
	CmdRedo                 = "redo"
)

// Command is one editor transaction request.
type Command struct {
	Name string `json:"command"`
	Args Args   `json:"args"`
}

// Args addresses content two ways: At is an index into the top-level blocks,
// Block is an index into all textblocks in document order. From and To are
// rune offsets inside that textblock; both zero means the whole block.
type Args struct {
	At        *int   `json:"at,omitempty"`
	Block     int    `json:"block"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	Mark      string `json:"mark,omitempty"`
	Level     int    `json:"level,omitempty"`
	Text      string `json:"text,omitempty"`
	HTML      string `json:"html,omitempty"`
	Href      string `json:"href,omitempty"`
	Color     string `json:"color,omitempty"`
	Align     string `json:"align,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	HeaderRow bool   `json:"headerRow,omitempty"`
	Src       string `json:"src,omitempty"`
	Alt       string `json:"alt,omitempty"`
}

var commandExtension = map[string]Extension{
	CmdInsertHeading:        ExtHeading,
	CmdSetLink:              ExtLink,
	CmdUnsetLink:            ExtLink,
	CmdSetHighlight:         ExtHighlight,
	CmdUnsetHighlight:       ExtHighlight,
	CmdSetTextAlign:         ExtTextAlign,
	CmdToggleBulletList:     ExtBulletList,
	CmdToggleOrderedList:    ExtOrderedList,
	CmdToggleBlockquote:     ExtBlockquote,
	CmdInsertTable:          ExtTable,
	CmdInsertImage:          ExtImage,
	CmdInsertHorizontalRule: ExtHorizontalRule,
	CmdUndo:                 ExtHistory,
	CmdRedo:                 ExtHistory,
}

// requiredExtension names the extension a command needs, if any.
func requiredExtension(cmd Command) (Extension, bool) {
	if cmd.Name == CmdToggleMark {
		ext, ok := markExtension[cmd.Args.Mark]
		return ext, ok
	}
	ext, ok := commandExtension[cmd.Name]
	return ext, ok
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// transaction builds the tree mutation for a command.
func transaction(cmd Command, set extensionSet) (func(root *Node) error, error) {
	a := cmd.Args
	switch cmd.Name {
	case CmdSetContent:
		parsed, err := ParseHTML(a.HTML)
		if err != nil {
			return nil, err
		}
		conformed := set.conform(parsed)
		return func(root *Node) error {
			*root = conformed[0]
			return nil
		}, nil
	case CmdClearContent:
		return func(root *Node) error {
			*root = EmptyDoc()
			return nil
		}, nil
	case CmdInsertParagraph:
		return func(root *Node) error {
			return insertBlocks(root, a.At, inlineBlock(NodeParagraph, a.Text))
		}, nil
	case CmdInsertHeading:
		if a.Level < 1 || a.Level > 6 {
			return nil, invalidArg("heading level must be between 1 and 6")
		}
		return func(root *Node) error {
			heading := inlineBlock(NodeHeading, a.Text)
			heading.setAttr("level", strconv.Itoa(a.Level))
			return insertBlocks(root, a.At, heading)
		}, nil
	case CmdInsertText:
		if a.Text == "" {
			return nil, invalidArg("text is required")
		}
		return func(root *Node) error { return insertText(root, a.Block, a.From, a.Text) }, nil
	case CmdDeleteBlock:
		return func(root *Node) error {
			idx, err := topLevelIndex(root, a.At)
			if err != nil {
				return err
			}
			root.Content = append(root.Content[:idx], root.Content[idx+1:]...)
			return nil
		}, nil
	case CmdToggleMark:
		if _, ok := markExtension[a.Mark]; !ok || a.Mark == MarkLink || a.Mark == MarkHighlight {
			return nil, invalidArg("unknown mark %q", a.Mark)
		}
		return func(root *Node) error {
			return updateMarks(root, a, func(units []unit) {
				toggleMark(units, Mark{Type: a.Mark})
			})
		}, nil
	case CmdSetLink:
		href := strings.TrimSpace(a.Href)
		if href == "" {
			return nil, invalidArg("href is required")
		}
		return func(root *Node) error {
			return updateMarks(root, a, func(units []unit) {
				setMark(units, Mark{Type: MarkLink, Attrs: map[string]string{"href": href}})
			})
		}, nil
	case CmdUnsetLink, CmdUnsetHighlight:
		markType := MarkLink
		if cmd.Name == CmdUnsetHighlight {
			markType = MarkHighlight
		}
		return func(root *Node) error {
			return updateMarks(root, a, func(units []unit) { removeMark(units, markType) })
		}, nil
	case CmdSetHighlight:
		mark := Mark{Type: MarkHighlight}
		if color := strings.TrimSpace(a.Color); color != "" {
			mark.Attrs = map[string]string{"color": color}
		}
		return func(root *Node) error {
			return updateMarks(root, a, func(units []unit) { setMark(units, mark) })
		}, nil
	case CmdSetTextAlign:
		switch a.Align {
		case "left", "center", "right", "justify":
		default:
			return nil, invalidArg("unknown alignment %q", a.Align)
		}
		return func(root *Node) error {
			block, err := textblockAt(root, a.Block)
			if err != nil {
				return err
			}
			if block.Type == NodeCodeBlock {
				return invalidArg("code blocks cannot be aligned")
			}
			block.setAttr("textAlign", a.Align)
			return nil
		}, nil
	case CmdToggleBulletList, CmdToggleOrderedList:
		listType := NodeBulletList
		if cmd.Name == CmdToggleOrderedList {
			listType = NodeOrderedList
		}
		return func(root *Node) error { return toggleList(root, a.At, listType) }, nil
	case CmdToggleBlockquote:
		return func(root *Node) error { return toggleBlockquote(root, a.At) }, nil
	case CmdInsertTable:
		rows, cols := a.Rows, a.Cols
		if rows == 0 {
			rows = 3
		}
		if cols == 0 {
			cols = 3
		}
		if rows < 1 || cols < 1 || rows > 50 || cols > 20 {
			return nil, invalidArg("table must have 1-50 rows and 1-20 columns")
		}
		return func(root *Node) error {
			return insertBlocks(root, a.At, newTable(rows, cols, a.HeaderRow))
		}, nil
	case CmdInsertImage:
		src := strings.TrimSpace(a.Src)
		if src == "" {
			return nil, invalidArg("src is required")
		}
		return func(root *Node) error {
			img := Node{Type: NodeImage}
			img.setAttr("src", src)
			img.setAttr("alt", a.Alt)
			return insertBlocks(root, a.At, img)
		}, nil
	case CmdInsertHorizontalRule:
		return func(root *Node) error {
			return insertBlocks(root, a.At, Node{Type: NodeHorizontalRule})
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
}

// inlineBlock builds a textblock; newlines become hard breaks.
func inlineBlock(nodeType, text string) Node {
	block := Node{Type: nodeType}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			block.Content = append(block.Content, Node{Type: NodeHardBreak})
		}
		if line != "" {
			block.Content = append(block.Content, Node{Type: NodeText, Text: line})
		}
	}
	return block
}

// insertBlocks inserts at the top-level index at, or appends when at is nil.
// A document holding only the empty placeholder paragraph is replaced.
func insertBlocks(root *Node, at *int, blocks ...Node) error {
	if root.IsEmpty() && (at == nil || *at == 0 || *at == 1) {
		root.Content = blocks
		return nil
	}
	idx := len(root.Content)
	if at != nil {
		if *at < 0 || *at > len(root.Content) {
			return fmt.Errorf("%w: %d", ErrInvalidBlock, *at)
		}
		idx = *at
	}
	content := make([]Node, 0, len(root.Content)+len(blocks))
	content = append(content, root.Content[:idx]...)
	content = append(content, blocks...)
	content = append(content, root.Content[idx:]...)
	root.Content = content
	return nil
}

func topLevelIndex(root *Node, at *int) (int, error) {
	if at == nil {
		return 0, invalidArg("at is required")
	}
	if *at < 0 || *at >= len(root.Content) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBlock, *at)
	}
	return *at, nil
}

func textblockAt(root *Node, index int) (*Node, error) {
	blocks := root.textblocks()
	if index < 0 || index >= len(blocks) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlock, index)
	}
	return blocks[index], nil
}

func insertText(root *Node, index, offset int, text string) error {
	block, err := textblockAt(root, index)
	if err != nil {
		return err
	}
	if block.Type == NodeCodeBlock {
		runes := []rune(block.TextContent())
		if offset < 0 || offset > len(runes) {
			return fmt.Errorf("%w: offset %d", ErrInvalidRange, offset)
		}
		block.Content = []Node{{Type: NodeText, Text: string(runes[:offset]) + text + string(runes[offset:])}}
		return nil
	}

	units := explode(*block)
	if offset < 0 || offset > len(units) {
		return fmt.Errorf("%w: offset %d", ErrInvalidRange, offset)
	}
	var marks []Mark
	if offset > 0 && !units[offset-1].hardBreak {
		marks = units[offset-1].marks
	}
	inserted := make([]unit, 0, len(text))
	for _, r := range text {
		if r == '\n' {
			inserted = append(inserted, unit{hardBreak: true})
			continue
		}
		inserted = append(inserted, unit{r: r, marks: cloneMarks(marks)})
	}
	units = append(units[:offset], append(inserted, units[offset:]...)...)
	block.Content = implode(units)
	return nil
}

func updateMarks(root *Node, a Args, fn func(units []unit)) error {
	block, err := textblockAt(root, a.Block)
	if err != nil {
		return err
	}
	if block.Type == NodeCodeBlock {
		return invalidArg("code blocks cannot carry marks")
	}
	units := explode(*block)
	from, to := a.From, a.To
	if from == 0 && to == 0 {
		to = len(units)
	}
	if from < 0 || to > len(units) || from >= to {
		return fmt.Errorf("%w: %d-%d of %d", ErrInvalidRange, a.From, a.To, len(units))
	}
	fn(units[from:to])
	block.Content = implode(units)
	return nil
}

// toggleMark removes the mark when every character in range has it, otherwise adds it.
func toggleMark(units []unit, mark Mark) {
	all, found := true, false
	for _, u := range units {
		if u.hardBreak {
			continue
		}
		found = true
		if !hasMark(u.marks, mark.Type) {
			all = false
		}
	}
	if !found {
		return
	}
	if all {
		removeMark(units, mark.Type)
		return
	}
	setMark(units, mark)
}

func setMark(units []unit, mark Mark) {
	for i := range units {
		if units[i].hardBreak {
			continue
		}
		kept := units[i].marks[:0:0]
		for _, m := range units[i].marks {
			if m.Type != mark.Type {
				kept = append(kept, m)
			}
		}
		units[i].marks = append(kept, cloneMarks([]Mark{mark})...)
	}
}

func removeMark(units []unit, markType string) {
	for i := range units {
		kept := units[i].marks[:0:0]
		for _, m := range units[i].marks {
			if m.Type != markType {
				kept = append(kept, m)
			}
		}
		units[i].marks = kept
	}
}

func toggleList(root *Node, at *int, listType string) error {
	idx, err := topLevelIndex(root, at)
	if err != nil {
		return err
	}
	block := root.Content[idx]
	switch block.Type {
	case listType:
		return replaceBlock(root, idx, flattenContainer(block)...)
	case NodeBulletList, NodeOrderedList:
		root.Content[idx].Type = listType
		return nil
	case NodeTable, NodeHorizontalRule:
		return invalidArg("%s cannot be placed in a list", block.Type)
	}
	list := Node{Type: listType, Content: []Node{{Type: NodeListItem, Content: []Node{block}}}}
	return replaceBlock(root, idx, list)
}

func toggleBlockquote(root *Node, at *int) error {
	idx, err := topLevelIndex(root, at)
	if err != nil {
		return err
	}
	block := root.Content[idx]
	if block.Type == NodeBlockquote {
		return replaceBlock(root, idx, block.Content...)
	}
	return replaceBlock(root, idx, Node{Type: NodeBlockquote, Content: []Node{block}})
}

func replaceBlock(root *Node, idx int, blocks ...Node) error {
	content := make([]Node, 0, len(root.Content)+len(blocks))
	content = append(content, root.Content[:idx]...)
	content = append(content, blocks...)
	content = append(content, root.Content[idx+1:]...)
	root.Content = content
	return nil
}

func newTable(rows, cols int, headerRow bool) Node {
	table := Node{Type: NodeTable}
	for r := 0; r < rows; r++ {
		row := Node{Type: NodeTableRow}
		cellType := NodeTableCell
		if headerRow && r == 0 {
			cellType = NodeTableHeader
		}
		for c := 0; c < cols; c++ {
			row.Content = append(row.Content, Node{Type: cellType, Content: []Node{{Type: NodeParagraph}}})
		}
		table.Content = append(table.Content, row)
	}
	return table
}
