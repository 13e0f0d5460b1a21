package common

// Source represents a web document returned by the retrieval collaborator.
// It is the unit of evidence that answer blocks cite and from which
// secondary concepts are extracted.
//
// ID is assigned by the retriever and is the identifier answer blocks use in
// their citations. Score is the retriever's relevance score; higher is better.
type Source struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Snippet       string  `json:"snippet"`
	FullText      string  `json:"full_text,omitempty"`
	Score         float64 `json:"score"`
	Author        string  `json:"author,omitempty"`
	PublishedDate string  `json:"publishedDate,omitempty"`
}

// Content returns the richest text available for the source.
func (s Source) Content() string {
	if s.FullText != "" {
		return s.FullText
	}
	return s.Snippet
}

// BlockKind is the rendering hint of an answer block.
type BlockKind string

const (
	BlockKindParagraph BlockKind = "paragraph"
	BlockKindBullet    BlockKind = "bullet"
)

// AnswerBlock is one paragraph or bullet of a generated answer together with
// the ids of the sources it cites.
type AnswerBlock struct {
	ID        string    `json:"id"`
	Type      BlockKind `json:"type"`
	Text      string    `json:"text"`
	SourceIDs []string  `json:"source_ids"`
}

// Answer is the output of the answer generation collaborator.
type Answer struct {
	Text   string        `json:"text"`
	Blocks []AnswerBlock `json:"blocks"`
}

// RawConcept is a concept as returned by the extraction collaborator, before
// validation. Fields are kept loosely typed on purpose; ParseConcepts in the
// graph package decides what survives.
type RawConcept map[string]any

// Concept is a validated supporting idea extracted from a source.
// Importance is nil when the collaborator did not provide a numeric value.
type Concept struct {
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	ShortLabel string   `json:"short_label"`
	Importance *float64 `json:"importance,omitempty"`
}

// Reasoning is the output of the reasoning expansion collaborator.
type Reasoning struct {
	ExpandedText string         `json:"expandedText"`
	Meta         map[string]any `json:"meta,omitempty"`
}
