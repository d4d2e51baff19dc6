package document

import "time"

// Document is a source document as supplied by the document store.
// The pipeline treats it as a read-only snapshot.
type Document struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Chunk is a contiguous slice of a document's content. StartIndex and EndIndex
// are the nominal byte span; non-final chunks carry extra lookahead text past
// EndIndex so that neighbours overlap.
type Chunk struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	StartIndex int           `json:"startIndex"`
	EndIndex   int           `json:"endIndex"`
	Metadata   ChunkMetadata `json:"metadata"`
}

type ChunkMetadata struct {
	WordCount     int  `json:"wordCount"`
	HasLegalTerms bool `json:"hasLegalTerms"`
}

// Position is a half-open byte range [Start, End) into the owning document.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is a typed span of text recognized by a pattern rule.
type Entity struct {
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Position   Position `json:"position"`
	Confidence float64  `json:"confidence"`
}

// Key identifies an entity within one document. No two entities of a
// document's extraction result share a key.
func (e Entity) Key() EntityKey {
	return EntityKey{Text: e.Text, Type: e.Type, Start: e.Position.Start}
}

type EntityKey struct {
	Text  string
	Type  string
	Start int
}

// TimelineEvent is a dated occurrence derived from a date entity and the
// entities found around it.
type TimelineEvent struct {
	Date             time.Time `json:"date"`
	Description      string    `json:"description"`
	DocumentID       string    `json:"documentId"`
	EntityReferences []Entity  `json:"entityReferences"`
	Confidence       float64   `json:"confidence"`
}

// CrossReference links matching entities in two different documents.
type CrossReference struct {
	SourceDocID string  `json:"sourceDocId"`
	TargetDocID string  `json:"targetDocId"`
	SourceText  string  `json:"sourceText"`
	TargetText  string  `json:"targetText"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
}

// ProcessedDocument is the aggregate result of one analysis run.
type ProcessedDocument struct {
	ID              string           `json:"id"`
	Chunks          []Chunk          `json:"chunks"`
	Entities        []Entity         `json:"entities"`
	TimelineEvents  []TimelineEvent  `json:"timelineEvents"`
	CrossReferences []CrossReference `json:"crossReferences"`
	Metadata        ProcessMetadata  `json:"metadata"`
}

type ProcessMetadata struct {
	ProcessingDate   time.Time `json:"processingDate"`
	ProcessingStatus Status    `json:"processingStatus"`
	Confidence       float64   `json:"confidence"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
}

// Clamp bounds a confidence score to [0, 1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
