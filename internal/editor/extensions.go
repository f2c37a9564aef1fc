package editor

// Extension names a feature the editor can be built with.
type Extension string

const (
	ExtBold           Extension = "bold"
	ExtItalic         Extension = "italic"
	ExtUnderline      Extension = "underline"
	ExtStrike         Extension = "strike"
	ExtCode           Extension = "code"
	ExtLink           Extension = "link"
	ExtHighlight      Extension = "highlight"
	ExtTextAlign      Extension = "textAlign"
	ExtHeading        Extension = "heading"
	ExtBulletList     Extension = "bulletList"
	ExtOrderedList    Extension = "orderedList"
	ExtBlockquote     Extension = "blockquote"
	ExtCodeBlock      Extension = "codeBlock"
	ExtTable          Extension = "table"
	ExtImage          Extension = "image"
	ExtHorizontalRule Extension = "horizontalRule"
	ExtHistory        Extension = "history"
)

func DefaultExtensions() []Extension {
	return []Extension{
		ExtBold, ExtItalic, ExtUnderline, ExtStrike, ExtCode, ExtLink, ExtHighlight, ExtTextAlign,
		ExtHeading, ExtBulletList, ExtOrderedList, ExtBlockquote, ExtCodeBlock, ExtTable, ExtImage,
		ExtHorizontalRule, ExtHistory,
	}
}

type extensionSet map[Extension]bool

func newExtensionSet(exts []Extension) extensionSet {
	if exts == nil {
		exts = DefaultExtensions()
	}
	set := make(extensionSet, len(exts))
	for _, ext := range exts {
		set[ext] = true
	}
	return set
}

var markExtension = map[string]Extension{
	MarkBold:      ExtBold,
	MarkItalic:    ExtItalic,
	MarkUnderline: ExtUnderline,
	MarkStrike:    ExtStrike,
	MarkCode:      ExtCode,
	MarkLink:      ExtLink,
	MarkHighlight: ExtHighlight,
}

var nodeExtension = map[string]Extension{
	NodeHeading:        ExtHeading,
	NodeBulletList:     ExtBulletList,
	NodeOrderedList:    ExtOrderedList,
	NodeBlockquote:     ExtBlockquote,
	NodeCodeBlock:      ExtCodeBlock,
	NodeTable:          ExtTable,
	NodeImage:          ExtImage,
	NodeHorizontalRule: ExtHorizontalRule,
}

// conform rewrites content the enabled extensions cannot represent: disabled
// marks and attributes are dropped, disabled containers are unwrapped and
// disabled atoms removed.
func (set extensionSet) conform(n Node) []Node {
	if ext, ok := nodeExtension[n.Type]; ok && !set[ext] {
		switch n.Type {
		case NodeImage, NodeHorizontalRule:
			return nil
		case NodeHeading, NodeCodeBlock:
			n.Type = NodeParagraph
			delete(n.Attrs, "level")
		default:
			return set.conformChildren(flattenContainer(n))
		}
	}
	if !set[ExtTextAlign] {
		n.setAttr("textAlign", "")
	}
	if n.Type == NodeText {
		kept := n.Marks[:0:0]
		for _, m := range n.Marks {
			if set[markExtension[m.Type]] {
				kept = append(kept, m)
			}
		}
		n.Marks = kept
		if len(n.Marks) == 0 {
			n.Marks = nil
		}
		return []Node{n}
	}
	if n.Content != nil {
		n.Content = set.conformChildren(n.Content)
	}
	return []Node{n}
}

func (set extensionSet) conformChildren(nodes []Node) []Node {
	var out []Node
	for _, child := range nodes {
		out = append(out, set.conform(child)...)
	}
	return out
}

// flattenContainer returns the blocks inside a list, table or blockquote.
func flattenContainer(n Node) []Node {
	var out []Node
	for _, child := range n.Content {
		switch child.Type {
		case NodeListItem, NodeTableRow, NodeTableHeader, NodeTableCell:
			out = append(out, flattenContainer(child)...)
		default:
			out = append(out, child)
		}
	}
	return out
}
