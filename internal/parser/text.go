package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Parsed, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	out := newOutline(baseTitle(filename))
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				out.paragraph(current.String())
				current.Reset()
			}
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if current.Len() > 0 {
		out.paragraph(current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out.result(), nil
}
