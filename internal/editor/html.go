package editor

import (
	"fmt"
	"html"
	"strings"
)

// RenderHTML serialises a document. An empty document renders as <p></p>.
func RenderHTML(doc Node) string {
	if doc.IsEmpty() {
		return "<p></p>"
	}
	var b strings.Builder
	renderNode(&b, doc)
	return b.String()
}

func alignStyle(n Node) string {
	align := n.attr("textAlign")
	if align == "" || align == "left" {
		return ""
	}
	return fmt.Sprintf(` style="text-align: %s"`, align)
}

func renderNode(b *strings.Builder, n Node) {
	switch n.Type {
	case NodeDoc:
		renderChildren(b, n)
	case NodeParagraph:
		b.WriteString("<p" + alignStyle(n) + ">")
		renderChildren(b, n)
		b.WriteString("</p>")
	case NodeHeading:
		level := headingLevel(n)
		fmt.Fprintf(b, "<h%d%s>", level, alignStyle(n))
		renderChildren(b, n)
		fmt.Fprintf(b, "</h%d>", level)
	case NodeBlockquote:
		b.WriteString("<blockquote>")
		renderChildren(b, n)
		b.WriteString("</blockquote>")
	case NodeCodeBlock:
		b.WriteString("<pre><code>")
		b.WriteString(html.EscapeString(n.TextContent()))
		b.WriteString("</code></pre>")
	case NodeBulletList:
		b.WriteString("<ul>")
		renderChildren(b, n)
		b.WriteString("</ul>")
	case NodeOrderedList:
		b.WriteString("<ol>")
		renderChildren(b, n)
		b.WriteString("</ol>")
	case NodeListItem:
		b.WriteString("<li>")
		renderChildren(b, n)
		b.WriteString("</li>")
	case NodeTable:
		b.WriteString("<table><tbody>")
		renderChildren(b, n)
		b.WriteString("</tbody></table>")
	case NodeTableRow:
		b.WriteString("<tr>")
		renderChildren(b, n)
		b.WriteString("</tr>")
	case NodeTableHeader:
		b.WriteString("<th>")
		renderChildren(b, n)
		b.WriteString("</th>")
	case NodeTableCell:
		b.WriteString("<td>")
		renderChildren(b, n)
		b.WriteString("</td>")
	case NodeImage:
		b.WriteString(`<img src="` + html.EscapeString(n.attr("src")) + `"`)
		if alt := n.attr("alt"); alt != "" {
			b.WriteString(` alt="` + html.EscapeString(alt) + `"`)
		}
		b.WriteString(">")
	case NodeHorizontalRule:
		b.WriteString("<hr>")
	case NodeHardBreak:
		b.WriteString("<br>")
	case NodeText:
		b.WriteString(renderText(n))
	default:
		renderChildren(b, n)
	}
}

func renderChildren(b *strings.Builder, n Node) {
	for _, child := range n.Content {
		renderNode(b, child)
	}
}

func headingLevel(n Node) int {
	var level int
	if _, err := fmt.Sscanf(n.attr("level"), "%d", &level); err != nil || level < 1 || level > 6 {
		return 1
	}
	return level
}

// renderText wraps the escaped text in its marks, first mark outermost.
func renderText(n Node) string {
	out := html.EscapeString(n.Text)
	for i := len(n.Marks) - 1; i >= 0; i-- {
		mark := n.Marks[i]
		switch mark.Type {
		case MarkBold:
			out = "<strong>" + out + "</strong>"
		case MarkItalic:
			out = "<em>" + out + "</em>"
		case MarkUnderline:
			out = "<u>" + out + "</u>"
		case MarkStrike:
			out = "<s>" + out + "</s>"
		case MarkCode:
			out = "<code>" + out + "</code>"
		case MarkLink:
			out = `<a href="` + html.EscapeString(mark.Attrs["href"]) + `">` + out + "</a>"
		case MarkHighlight:
			if color := mark.Attrs["color"]; color != "" {
				escaped := html.EscapeString(color)
				out = `<mark data-color="` + escaped + `" style="background-color: ` + escaped + `">` + out + "</mark>"
			} else {
				out = "<mark>" + out + "</mark>"
			}
		}
	}
	return out
}
