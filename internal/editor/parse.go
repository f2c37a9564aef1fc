package editor

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseHTML converts markup into a document tree. Unknown elements are
// unwrapped, scripts and styles are dropped.
func ParseHTML(src string) (Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return Node{}, fmt.Errorf("parse html: %w", err)
	}
	doc := Node{Type: NodeDoc, Content: parseBlocks(nodes)}
	normalize(&doc)
	return doc, nil
}

var inlineElements = map[atom.Atom]bool{
	atom.A: true, atom.B: true, atom.Strong: true, atom.I: true, atom.Em: true, atom.U: true,
	atom.S: true, atom.Strike: true, atom.Del: true, atom.Code: true, atom.Mark: true,
	atom.Span: true, atom.Br: true, atom.Sub: true, atom.Sup: true, atom.Small: true,
	atom.Font: true, atom.Abbr: true, atom.Cite: true, atom.Q: true, atom.Kbd: true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Template: true, atom.Head: true,
	atom.Title: true, atom.Meta: true, atom.Link: true, atom.Noscript: true,
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func alignOf(n *html.Node) string {
	value := strings.ToLower(attrOf(n, "align"))
	for _, decl := range strings.Split(attrOf(n, "style"), ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(strings.ToLower(prop)) == "text-align" {
			value = strings.TrimSpace(strings.ToLower(val))
		}
	}
	switch value {
	case "left", "center", "right", "justify":
		return value
	default:
		return ""
	}
}

func parseBlocks(nodes []*html.Node) []Node {
	var (
		out    []Node
		loose  []unit
		images []Node
	)
	flush := func() {
		if block, ok := textblockFrom(NodeParagraph, loose); ok && hasVisibleText(block) {
			out = append(out, block)
		}
		loose = nil
		out = append(out, images...)
		images = nil
	}

	for _, n := range nodes {
		if n.Type == html.TextNode || (n.Type == html.ElementNode && inlineElements[n.DataAtom]) {
			loose = parseInline(n, nil, loose, &images)
			continue
		}
		if n.Type != html.ElementNode || skippedElements[n.DataAtom] {
			continue
		}
		flush()

		switch n.DataAtom {
		case atom.P:
			var inner []Node
			units := parseInlineChildren(n, nil, nil, &inner)
			block, _ := textblockFrom(NodeParagraph, units)
			block.setAttr("textAlign", alignOf(n))
			if len(inner) == 0 || hasVisibleText(block) {
				out = append(out, block)
			}
			out = append(out, inner...)
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			var inner []Node
			units := parseInlineChildren(n, nil, nil, &inner)
			block, _ := textblockFrom(NodeHeading, units)
			block.setAttr("level", n.Data[1:])
			block.setAttr("textAlign", alignOf(n))
			out = append(out, block)
			out = append(out, inner...)
		case atom.Blockquote:
			out = append(out, Node{Type: NodeBlockquote, Content: parseBlocks(children(n))})
		case atom.Pre:
			block := Node{Type: NodeCodeBlock}
			if text := rawText(n); text != "" {
				block.Content = []Node{{Type: NodeText, Text: text}}
			}
			out = append(out, block)
		case atom.Ul, atom.Ol:
			list := Node{Type: NodeBulletList}
			if n.DataAtom == atom.Ol {
				list.Type = NodeOrderedList
			}
			for _, c := range children(n) {
				if c.Type != html.ElementNode {
					continue
				}
				list.Content = append(list.Content, Node{Type: NodeListItem, Content: parseBlocks(children(c))})
			}
			if len(list.Content) > 0 {
				out = append(out, list)
			}
		case atom.Table:
			if table, ok := parseTable(n); ok {
				out = append(out, table)
			}
		case atom.Img:
			if img, ok := imageFrom(n); ok {
				out = append(out, img)
			}
		case atom.Hr:
			out = append(out, Node{Type: NodeHorizontalRule})
		default:
			out = append(out, parseBlocks(children(n))...)
		}
	}
	flush()
	return out
}

func parseTable(n *html.Node) (Node, bool) {
	table := Node{Type: NodeTable}
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for _, c := range children(node) {
			if c.Type != html.ElementNode || c.DataAtom == atom.Table {
				continue
			}
			if c.DataAtom != atom.Tr {
				walk(c)
				continue
			}
			row := Node{Type: NodeTableRow}
			for _, cell := range children(c) {
				if cell.Type != html.ElementNode || (cell.DataAtom != atom.Td && cell.DataAtom != atom.Th) {
					continue
				}
				cellType := NodeTableCell
				if cell.DataAtom == atom.Th {
					cellType = NodeTableHeader
				}
				row.Content = append(row.Content, Node{Type: cellType, Content: parseBlocks(children(cell))})
			}
			if len(row.Content) > 0 {
				table.Content = append(table.Content, row)
			}
		}
	}
	walk(n)
	return table, len(table.Content) > 0
}

func imageFrom(n *html.Node) (Node, bool) {
	src := strings.TrimSpace(attrOf(n, "src"))
	if src == "" {
		return Node{}, false
	}
	img := Node{Type: NodeImage}
	img.setAttr("src", src)
	img.setAttr("alt", attrOf(n, "alt"))
	return img, true
}

func parseInlineChildren(n *html.Node, marks []Mark, units []unit, images *[]Node) []unit {
	for _, c := range children(n) {
		units = parseInline(c, marks, units, images)
	}
	return units
}

func withMark(marks []Mark, mark Mark) []Mark {
	if hasMark(marks, mark.Type) {
		return marks
	}
	out := cloneMarks(marks)
	return append(out, mark)
}

func parseInline(n *html.Node, marks []Mark, units []unit, images *[]Node) []unit {
	switch n.Type {
	case html.TextNode:
		space := false
		for _, r := range n.Data {
			if r == ' ' || r == '\n' || r == '\t' || r == '\r' || r == '\f' {
				if space {
					continue
				}
				space = true
				r = ' '
			} else {
				space = false
			}
			units = append(units, unit{r: r, marks: cloneMarks(marks)})
		}
		return units
	case html.ElementNode:
	default:
		return units
	}

	if skippedElements[n.DataAtom] {
		return units
	}
	switch n.DataAtom {
	case atom.Br:
		return append(units, unit{hardBreak: true})
	case atom.Img:
		if img, ok := imageFrom(n); ok {
			*images = append(*images, img)
		}
		return units
	case atom.B, atom.Strong:
		marks = withMark(marks, Mark{Type: MarkBold})
	case atom.I, atom.Em:
		marks = withMark(marks, Mark{Type: MarkItalic})
	case atom.U:
		marks = withMark(marks, Mark{Type: MarkUnderline})
	case atom.S, atom.Strike, atom.Del:
		marks = withMark(marks, Mark{Type: MarkStrike})
	case atom.Code:
		marks = withMark(marks, Mark{Type: MarkCode})
	case atom.A:
		if href := strings.TrimSpace(attrOf(n, "href")); href != "" {
			marks = withMark(marks, Mark{Type: MarkLink, Attrs: map[string]string{"href": href}})
		}
	case atom.Mark:
		mark := Mark{Type: MarkHighlight}
		if color := attrOf(n, "data-color"); color != "" {
			mark.Attrs = map[string]string{"color": color}
		}
		marks = withMark(marks, mark)
	}
	return parseInlineChildren(n, marks, units, images)
}

// textblockFrom trims edge whitespace and collapses spaces across element boundaries.
func textblockFrom(nodeType string, units []unit) (Node, bool) {
	cleaned := make([]unit, 0, len(units))
	for _, u := range units {
		if !u.hardBreak && u.r == ' ' {
			if len(cleaned) == 0 {
				continue
			}
			if last := cleaned[len(cleaned)-1]; last.hardBreak || last.r == ' ' {
				continue
			}
		}
		cleaned = append(cleaned, u)
	}
	for len(cleaned) > 0 {
		last := cleaned[len(cleaned)-1]
		if last.hardBreak || last.r != ' ' {
			break
		}
		cleaned = cleaned[:len(cleaned)-1]
	}
	block := Node{Type: nodeType, Content: implode(cleaned)}
	return block, len(cleaned) > 0
}

func hasVisibleText(block Node) bool {
	return strings.TrimSpace(block.TextContent()) != "" || len(block.Content) > 0 && block.Content[0].Type == NodeHardBreak
}

func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			return
		}
		if node.Type == html.ElementNode && node.DataAtom == atom.Br {
			b.WriteString("\n")
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// normalize restores structural invariants after parsing or a transaction.
func normalize(n *Node) {
	switch {
	case n.Type == NodeCodeBlock:
		text := n.TextContent()
		n.Content = nil
		if text != "" {
			n.Content = []Node{{Type: NodeText, Text: text}}
		}
		return
	case isTextblock(n.Type):
		n.Content = implode(explode(*n))
		return
	case n.Type == NodeText || n.Type == NodeHardBreak || n.Type == NodeImage || n.Type == NodeHorizontalRule:
		return
	}

	for i := range n.Content {
		normalize(&n.Content[i])
	}
	switch n.Type {
	case NodeDoc, NodeBlockquote, NodeListItem, NodeTableHeader, NodeTableCell:
		if len(n.Content) == 0 {
			n.Content = []Node{{Type: NodeParagraph}}
		}
	case NodeBulletList, NodeOrderedList:
		if len(n.Content) == 0 {
			n.Content = []Node{{Type: NodeListItem, Content: []Node{{Type: NodeParagraph}}}}
		}
	}
}
