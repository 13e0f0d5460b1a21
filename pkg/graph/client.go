package graph

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultParallelAiRequests = 6
	tracerName                = "github.com/OFFIS-RIT/evidence-graph/pkg/graph"
)

// GraphClient assembles evidence graphs. It owns no state between builds;
// the collaborators and the progress reporter are shared by every request.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	retriever Retriever
	answers   AnswerGenerator
	extractor ConceptExtractor
	embedder  Embedder
	reasoner  ReasoningExpander
	progress  ProgressReporter

	parallelAiRequests int
	tracer             trace.Tracer
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Collaborators left nil make the operations that need them fail with
// common.ErrConfiguration. Progress may be nil when nobody polls.
// ParallelAiRequests bounds concurrent extraction and embedding calls
// within one build.
type NewGraphClientParams struct {
	Retriever Retriever
	Answers   AnswerGenerator
	Extractor ConceptExtractor
	Embedder  Embedder
	Reasoner  ReasoningExpander
	Progress  ProgressReporter

	ParallelAiRequests int
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	research := ai.NewResearchClient(ai.NewResearchClientParams{Client: aiClient})
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Retriever:          exa,
//		Answers:            research,
//		Extractor:          research,
//		Embedder:           research,
//		Reasoner:           research,
//		Progress:           tracker,
//		ParallelAiRequests: 6,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	parallel := params.ParallelAiRequests
	if parallel <= 0 {
		parallel = defaultParallelAiRequests
	}
	var reporter ProgressReporter = noopReporter{}
	if params.Progress != nil {
		reporter = params.Progress
	}

	g := &GraphClient{
		retriever: params.Retriever,
		answers:   params.Answers,
		extractor: params.Extractor,
		embedder:  params.Embedder,
		reasoner:  params.Reasoner,
		progress:  reporter,

		parallelAiRequests: parallel,
		tracer:             otel.Tracer(tracerName),
	}

	return g, nil
}
