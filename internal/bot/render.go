package bot

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// maxMessageLen is Telegram's hard cap on message text length.
const maxMessageLen = 4096

// renderHTML converts assistant markdown to the HTML subset Telegram
// accepts. Telegram rejects most block-level tags, so headings collapse to
// bold, lists to "-"/"1." prefixes and rules to a dashed line.
func renderHTML(input string) string {
	extensions := parser.HardLineBreak | parser.NoEmptyLineBeforeBlock | parser.NoIntraEmphasis |
		parser.FencedCode | parser.Strikethrough | parser.SpaceHeadings | parser.BackslashLineBreak
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(input))

	r := &replyRenderer{}
	var buf bytes.Buffer
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		return r.renderNode(&buf, node, entering)
	})
	return strings.TrimSpace(buf.String())
}

type replyRenderer struct{}

func (r *replyRenderer) renderNode(w io.Writer, node ast.Node, entering bool) ast.WalkStatus {
	switch n := node.(type) {
	case *ast.Document, *ast.List:
	case *ast.Paragraph:
		// List items already emit their own prefix on their line.
		if _, inItem := n.GetParent().(*ast.ListItem); entering && !inItem {
			io.WriteString(w, "\n")
		}
	case *ast.Text:
		html.EscapeHTML(w, n.Literal)
	case *ast.Strong, *ast.Heading:
		r.tag(w, entering, "<b>", "</b>")
	case *ast.Emph:
		r.tag(w, entering, "<i>", "</i>")
	case *ast.Del:
		r.tag(w, entering, "<s>", "</s>")
	case *ast.Code:
		io.WriteString(w, "<code>")
		html.EscapeHTML(w, n.Literal)
		io.WriteString(w, "</code>")
	case *ast.Link:
		if entering {
			io.WriteString(w, "<a href=\"")
			html.EscLink(w, n.Destination)
			io.WriteString(w, "\">")
		} else {
			io.WriteString(w, "</a>")
		}
	case *ast.BlockQuote:
		io.WriteString(w, "\n")
		r.tag(w, entering, "<blockquote>", "</blockquote>")
	case *ast.HorizontalRule:
		if entering {
			io.WriteString(w, "\n------\n")
		}
	case *ast.CodeBlock:
		io.WriteString(w, "\n")
		r.writeCodeBlock(w, n)
		io.WriteString(w, "\n")
	case *ast.ListItem:
		if entering {
			io.WriteString(w, "\n")
			r.writeListItemPrefix(w, n)
		}
	case *ast.HTMLSpan:
		r.tag(w, entering, "<span>", "</span>")
	case *ast.HTMLBlock:
		if entering {
			io.WriteString(w, "<code>")
			html.EscapeHTML(w, n.Literal)
		} else {
			io.WriteString(w, "</code>")
		}
	default:
		return ast.SkipChildren
	}
	return ast.GoToNext
}

func (r *replyRenderer) tag(w io.Writer, entering bool, opening, closing string) {
	if entering {
		io.WriteString(w, opening)
	} else {
		io.WriteString(w, closing)
	}
}

func (r *replyRenderer) writeListItemPrefix(w io.Writer, item *ast.ListItem) {
	prefix := " - "
	list, ok := item.GetParent().(*ast.List)
	if !ok {
		return
	}
	if list.Start > 0 {
		for i, child := range list.GetChildren() {
			if child == item {
				prefix = fmt.Sprintf("%d. ", list.Start+i)
				break
			}
		}
	}
	if _, nested := list.GetParent().(*ast.List); nested {
		prefix = "  " + prefix
	}
	io.WriteString(w, prefix)
}

func (r *replyRenderer) writeCodeBlock(w io.Writer, n *ast.CodeBlock) {
	if len(n.Info) > 0 {
		fmt.Fprintf(w, "<pre><code class=\"language-%s\">", bytes.TrimSpace(n.Info))
	} else {
		io.WriteString(w, "<pre><code>")
	}
	html.EscapeHTML(w, n.Literal)
	io.WriteString(w, "</code></pre>")
}

// splitMessage cuts text into chunks of at most maxLen runes, preferring to
// break at a newline in the back half of a chunk.
func splitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(runes) > maxLen {
		splitAt := maxLen
		if idx := lastNewline(runes[:maxLen]); idx > maxLen/2 {
			splitAt = idx + 1
		}
		parts = append(parts, string(runes[:splitAt]))
		runes = runes[splitAt:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
