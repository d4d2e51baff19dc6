package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/patterns"
)

// Config controls chunking behavior. Sizes are in bytes of UTF-8 content.
type Config struct {
	ChunkSize    int // Target chunk length before the next break point.
	ChunkOverlap int // Lookahead carried past each non-final chunk.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// breakPointRe finds sentence ends followed by whitespace and blank-line
// paragraph breaks. The chunk boundary sits at the end of each match.
var breakPointRe = regexp.MustCompile(`[.!?]\s+|\n\s*\n`)

// Chunker splits document content into overlapping, sentence-aligned chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker, replacing unusable settings with defaults.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = def.ChunkOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	return &Chunker{cfg: cfg}
}

// Config returns the effective configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk splits content into chunks. Consecutive chunks overlap by
// ChunkOverlap bytes of nominal span; the final chunk ends at len(content).
func (c *Chunker) Chunk(content string) []document.Chunk {
	if content == "" {
		return nil
	}

	var breaks []int
	for _, loc := range breakPointRe.FindAllStringIndex(content, -1) {
		breaks = append(breaks, loc[1])
	}

	var chunks []document.Chunk
	start, bi := 0, 0
	for start < len(content) {
		idealEnd := start + c.cfg.ChunkSize
		for bi < len(breaks) && breaks[bi] < idealEnd {
			bi++
		}
		end := len(content)
		if bi < len(breaks) {
			end = breaks[bi]
		}

		final := end >= len(content)
		stop := end
		if !final {
			stop = alignForward(content, min(end+c.cfg.ChunkOverlap, len(content)))
		}

		text := content[start:stop]
		chunks = append(chunks, document.Chunk{
			ID:         fmt.Sprintf("chunk-%d", start),
			Content:    text,
			StartIndex: start,
			EndIndex:   end,
			Metadata: document.ChunkMetadata{
				WordCount:     CountWords(text),
				HasLegalTerms: patterns.ContainsLegalTerms(text),
			},
		})

		if final {
			break
		}
		next := alignBackward(content, end-c.cfg.ChunkOverlap)
		if next <= start {
			next = alignForward(content, start+1)
		}
		start = next
	}

	return chunks
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func alignForward(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

func alignBackward(s string, i int) int {
	if i <= 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
