package graph

import (
	"context"

	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/progress"
)

// Retriever finds web sources for a query.
type Retriever interface {
	Search(ctx context.Context, query string, count int) ([]common.Source, error)
}

// AnswerGenerator writes a cited answer from sources. It must only cite ids
// present in sources.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, sources []common.Source) (*common.Answer, error)
}

// ConceptExtractor extracts supporting concepts from a single source. The
// result is untrusted and validated by ParseConcepts.
type ConceptExtractor interface {
	ExtractConcepts(ctx context.Context, source common.Source, count int) ([]common.RawConcept, error)
}

// Embedder turns text into a vector of fixed dimensionality.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
}

// ReasoningExpander explains the reasoning behind a piece of text.
type ReasoningExpander interface {
	ExpandReasoning(ctx context.Context, title string, text string) (*common.Reasoning, error)
}

// ProgressReporter receives phase updates of a build. *progress.Tracker
// implements it.
type ProgressReporter interface {
	UpdateProgress(id string, progress int, status string, phase progress.Phase)
	CompleteJob(id string)
	FailJob(id string, status string)
}

type noopReporter struct{}

func (noopReporter) UpdateProgress(string, int, string, progress.Phase) {}
func (noopReporter) CompleteJob(string)                                 {}
func (noopReporter) FailJob(string, string)                             {}
