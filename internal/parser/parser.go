package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Parsed is the text of an uploaded file. Content holds every section in
// order, separated by blank lines so paragraph boundaries survive.
type Parsed struct {
	Title    string
	Content  string
	Sections []Section
}

// Section is a run of paragraphs under one heading. Level is 0 for text
// before the first heading; Page is 0 when the format has no pages.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Level   int    `json:"level"`
	Page    int    `json:"page,omitempty"`
	Text    string `json:"text"`
}

// Parser converts raw document bytes into text.
type Parser interface {
	Parse(r io.Reader, filename string) (*Parsed, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: true}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ContentType returns the MIME type recorded for an upload of filename.
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return "text/plain"
	case ".md", ".markdown":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	case ".html", ".htm":
		return "text/html"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}

func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
