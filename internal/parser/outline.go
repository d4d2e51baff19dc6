package parser

import "strings"

// outline accumulates headings and paragraphs in document order.
type outline struct {
	title    string
	sections []Section
	cur      Section
	paras    []string
}

func newOutline(title string) *outline {
	return &outline{title: title}
}

// heading starts a new section.
func (o *outline) heading(level int, text string) {
	o.flush()
	o.cur = Section{Heading: strings.TrimSpace(text), Level: level, Page: o.cur.Page}
}

// page starts a new untitled section on page n.
func (o *outline) page(n int) {
	o.flush()
	o.cur = Section{Page: n}
}

func (o *outline) paragraph(text string) {
	if t := strings.TrimSpace(text); t != "" {
		o.paras = append(o.paras, t)
	}
}

func (o *outline) flush() {
	if len(o.paras) > 0 || o.cur.Heading != "" {
		o.cur.Text = strings.Join(o.paras, "\n\n")
		o.sections = append(o.sections, o.cur)
	}
	o.paras = nil
}

func (o *outline) result() *Parsed {
	o.flush()
	var blocks []string
	for _, s := range o.sections {
		if s.Heading != "" {
			blocks = append(blocks, s.Heading)
		}
		if s.Text != "" {
			blocks = append(blocks, s.Text)
		}
	}
	return &Parsed{
		Title:    o.title,
		Content:  strings.Join(blocks, "\n\n"),
		Sections: o.sections,
	}
}
