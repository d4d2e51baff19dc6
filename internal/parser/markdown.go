package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*Parsed, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	out := newOutline(baseTitle(filename))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			out.heading(node.Level, extractText(node, src))
		default:
			out.paragraph(extractText(n, src))
		}
	}
	return out.result(), nil
}

// extractText gets the text content of a goldmark AST node. Leaf blocks
// (code) contribute their raw lines; everything else its inline text.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
			continue
		}
		if c.Type() == ast.TypeBlock && buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(extractText(c, src))
	}
	return strings.TrimSpace(buf.String())
}
