package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/evidence-graph/internal/util"
	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/density"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"
	"github.com/OFFIS-RIT/evidence-graph/pkg/progress"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	questionLabelWords = 12
	blockLabelWords    = 8
)

// BuildRequest is the input of BuildEvidenceGraph. An empty DensityLevel
// infers the level from the question. JobID may be empty when nobody polls.
type BuildRequest struct {
	JobID        string
	Question     string
	DensityLevel string
}

// Stats summarises what happened during a build.
type Stats struct {
	SourceCount        int   `json:"sourceCount"`
	DirectSourceCount  int   `json:"directSourceCount"`
	ConceptCount       int   `json:"conceptCount"`
	DroppedConcepts    int   `json:"droppedConcepts"`
	SemanticEdgeCount  int   `json:"semanticEdgeCount"`
	EmbeddingFailures  int   `json:"embeddingFailures"`
	ExtractionFailures int   `json:"extractionFailures"`
	LatencyMs          int64 `json:"latencyMs"`
}

// BuildResult is the output of BuildEvidenceGraph.
type BuildResult struct {
	JobID   string         `json:"jobId,omitempty"`
	Level   density.Level  `json:"densityLevel"`
	Density density.Config `json:"density"`
	Graph   *Graph         `json:"graph"`
	Stats   Stats          `json:"stats"`
}

// BuildEvidenceGraph answers req.Question and assembles the evidence graph
// around the answer. Failures scoped to one source or one node shrink the
// graph instead of failing the build. Only an invalid question, a missing
// configuration or a failed answer abort it.
//
// Progress is reported under req.JobID; the job must have been created by
// the caller.
func (g *GraphClient) BuildEvidenceGraph(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		g.progress.FailJob(req.JobID, failureStatus(common.ErrValidation))
		return nil, fmt.Errorf("%w: question must not be empty", common.ErrValidation)
	}

	level := density.ParseLevel(req.DensityLevel)
	if strings.TrimSpace(req.DensityLevel) == "" {
		level = density.Infer(question, nil)
	}
	cfg := density.ForLevel(level)

	ctx, span := g.tracer.Start(ctx, "graph.BuildEvidenceGraph", trace.WithAttributes(
		attribute.String("job.id", req.JobID),
		attribute.String("density.level", string(level)),
	))
	defer span.End()

	logger.Info("[Graph] Building evidence graph", "job_id", req.JobID, "density", level)

	result, err := g.build(ctx, req.JobID, question, level, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.progress.FailJob(req.JobID, failureStatus(err))
		logger.Error("[Graph] Build failed", "job_id", req.JobID, "err", err)
		return nil, err
	}

	result.Stats.LatencyMs = time.Since(start).Milliseconds()
	g.progress.CompleteJob(req.JobID)

	logger.Info("[Graph] Evidence graph ready",
		"job_id", req.JobID,
		"nodes", len(result.Graph.Nodes),
		"edges", len(result.Graph.Edges),
		"concepts", result.Stats.ConceptCount,
		"semantic_edges", result.Stats.SemanticEdgeCount,
		"latency_ms", result.Stats.LatencyMs,
	)
	return result, nil
}

func (g *GraphClient) build(
	ctx context.Context,
	jobID string,
	question string,
	level density.Level,
	cfg density.Config,
) (*BuildResult, error) {
	result := &BuildResult{JobID: jobID, Level: level, Density: cfg}

	g.progress.UpdateProgress(jobID, 10, "Searching the web", progress.PhaseResearch)
	sources, err := g.research(ctx, question, cfg.ExaNumResults)
	if err != nil {
		return nil, err
	}
	result.Stats.SourceCount = len(sources)
	g.progress.UpdateProgress(jobID, 25, fmt.Sprintf("Found %d sources", len(sources)), progress.PhaseResearch)

	g.progress.UpdateProgress(jobID, 35, "Generating answer", progress.PhaseAnswer)
	answer, err := g.answer(ctx, question, sources)
	if err != nil {
		return nil, err
	}
	g.progress.UpdateProgress(jobID, 55, fmt.Sprintf("Answer ready with %d blocks", len(answer.Blocks)), progress.PhaseAnswer)

	graph := NewGraph()
	direct, err := addBaseLayers(graph, question, answer, sources, cfg.DirectSourcesPerBlock)
	if err != nil {
		return nil, err
	}
	result.Stats.DirectSourceCount = len(direct)
	result.Graph = graph

	g.progress.UpdateProgress(jobID, 65, "Extracting concepts", progress.PhaseGraph)
	vectors, err := g.enrich(ctx, graph, direct, cfg.SecondarySources, &result.Stats)
	if err != nil {
		return nil, err
	}

	g.progress.UpdateProgress(jobID, 80, "Linking related nodes", progress.PhaseGraph)
	semantic := BuildSemanticEdges(graph.Nodes, vectors, cfg.SemanticEdges)
	_, result.Stats.SemanticEdgeCount = graph.Merge(nil, semantic)

	return result, nil
}

func (g *GraphClient) research(ctx context.Context, question string, count int) ([]common.Source, error) {
	if g.retriever == nil {
		return nil, fmt.Errorf("%w: no retriever configured", common.ErrConfiguration)
	}
	ctx, span := g.tracer.Start(ctx, "graph.research")
	defer span.End()

	sources, err := g.retriever.Search(ctx, question, count)
	if err != nil {
		if errors.Is(err, common.ErrConfiguration) {
			return nil, err
		}
		span.RecordError(err)
		logger.Warn("[Graph] Retrieval failed, continuing without sources", "err", err)
		return nil, nil
	}
	span.SetAttributes(attribute.Int("sources", len(sources)))
	return dedupeSources(sources), nil
}

func (g *GraphClient) answer(ctx context.Context, question string, sources []common.Source) (*common.Answer, error) {
	if g.answers == nil {
		return nil, fmt.Errorf("%w: no answer generator configured", common.ErrConfiguration)
	}
	ctx, span := g.tracer.Start(ctx, "graph.answer")
	defer span.End()

	answer, err := g.answers.GenerateAnswer(ctx, question, sources)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, common.ErrConfiguration) || errors.Is(err, common.ErrCollaborator) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: answer generation: %v", common.ErrCollaborator, err)
	}
	if answer == nil {
		return nil, fmt.Errorf("%w: answer generation returned nothing", common.ErrCollaborator)
	}

	normalized := normalizeAnswer(answer, sources)
	if len(normalized.Blocks) == 0 {
		return nil, fmt.Errorf("%w: answer has no usable blocks", common.ErrCollaborator)
	}
	span.SetAttributes(attribute.Int("blocks", len(normalized.Blocks)))
	return normalized, nil
}

// enrich adds layer 3 and returns the embeddings of every node that could be
// embedded. Concept extraction and the embedding of layers 0 to 2 run
// concurrently; concepts are embedded once they exist.
func (g *GraphClient) enrich(
	ctx context.Context,
	graph *Graph,
	direct []directSource,
	cfg density.SecondarySources,
	stats *Stats,
) (map[string][]float32, error) {
	ctx, span := g.tracer.Start(ctx, "graph.enrich")
	defer span.End()

	base := slices.Clone(graph.Nodes)

	var (
		extraction extractionResult
		vectors    map[string][]float32
		baseFails  int
	)
	eg := errgroup.Group{}
	eg.Go(func() error {
		res, err := g.extractSecondary(ctx, direct, cfg)
		if err != nil {
			return err
		}
		extraction = res
		return nil
	})
	eg.Go(func() error {
		vecs, fails, err := g.EmbedNodes(ctx, base)
		if err != nil {
			return err
		}
		vectors, baseFails = vecs, fails
		return nil
	})
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	nodes, edges, err := conceptNodes(extraction.concepts)
	if err != nil {
		return nil, err
	}
	graph.Merge(nodes, edges)
	stats.ConceptCount = len(nodes)
	stats.DroppedConcepts = extraction.dropped
	stats.ExtractionFailures = extraction.failures

	conceptVecs, conceptFails, err := g.EmbedNodes(ctx, nodes)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for id, v := range conceptVecs {
		vectors[id] = v
	}
	stats.EmbeddingFailures = baseFails + conceptFails

	span.SetAttributes(
		attribute.Int("concepts", stats.ConceptCount),
		attribute.Int("embedding_failures", stats.EmbeddingFailures),
	)
	return vectors, nil
}

// addBaseLayers adds layers 0 to 2 with their structural edges and returns
// the direct sources in order of first citation.
func addBaseLayers(
	graph *Graph,
	question string,
	answer *common.Answer,
	sources []common.Source,
	bounds density.Range,
) ([]directSource, error) {
	byID := make(map[string]common.Source, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}

	root := []Node{
		NewNode(QuestionNodeID, util.FirstNWords(question, questionLabelWords), QuestionData{Text: question}),
		NewNode(AnswerRootNodeID, "Answer", AnswerRootData{Text: answer.Text}),
	}
	for _, n := range root {
		if err := graph.AddNode(n); err != nil {
			return nil, err
		}
	}
	if err := graph.AddEdge(Edge{From: QuestionNodeID, To: AnswerRootNodeID, Relation: RelationAnswers, Weight: 1}); err != nil {
		return nil, err
	}

	var direct []directSource
	directIndex := make(map[string]int)

	for _, block := range answer.Blocks {
		selected := selectBlockSources(block.SourceIDs, byID, bounds)
		blockNodeID := BlockNodeID(block.ID)

		n := NewNode(blockNodeID, util.FirstNWords(block.Text, blockLabelWords), AnswerBlockData{
			BlockID:   block.ID,
			Kind:      string(block.Type),
			Text:      block.Text,
			SourceIDs: nonNil(selected),
		})
		if err := graph.AddNode(n); err != nil {
			return nil, err
		}
		if err := graph.AddEdge(Edge{From: AnswerRootNodeID, To: blockNodeID, Relation: RelationAnswers, Weight: 1}); err != nil {
			return nil, err
		}

		for _, id := range selected {
			at, ok := directIndex[id]
			if !ok {
				at = len(direct)
				directIndex[id] = at
				direct = append(direct, directSource{
					source: byID[id],
					nodeID: SourceNodeID(id),
				})
			}
			direct[at].citedBy = append(direct[at].citedBy, block.ID)
		}
	}

	for _, ds := range direct {
		s := ds.source
		n := NewNode(ds.nodeID, s.Title, DirectSourceData{
			SourceID:      s.ID,
			Title:         s.Title,
			URL:           s.URL,
			Snippet:       s.Snippet,
			FullText:      s.FullText,
			Score:         s.Score,
			Author:        s.Author,
			PublishedDate: s.PublishedDate,
			CitedBy:       nonNil(ds.citedBy),
		})
		if err := graph.AddNode(n); err != nil {
			return nil, err
		}
	}

	for _, block := range answer.Blocks {
		for _, id := range selectBlockSources(block.SourceIDs, byID, bounds) {
			err := graph.AddEdge(Edge{
				From:     BlockNodeID(block.ID),
				To:       SourceNodeID(id),
				Relation: RelationSupports,
				Weight:   clampWeight(byID[id].Score),
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return direct, nil
}

// selectBlockSources returns the known sources a block cites. When it cites
// more than bounds.Max, the highest scored are kept with ties going to the
// earlier citation. Fewer than bounds.Min are accepted as they are.
func selectBlockSources(cited []string, byID map[string]common.Source, bounds density.Range) []string {
	out := make([]string, 0, len(cited))
	seen := make(map[string]struct{}, len(cited))
	for _, id := range cited {
		if _, ok := byID[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if bounds.Max <= 0 || len(out) <= bounds.Max {
		return out
	}

	ranked := slices.Clone(out)
	slices.SortStableFunc(ranked, func(a, b string) int {
		sa, sb := byID[a].Score, byID[b].Score
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return 0
	})
	keep := make(map[string]struct{}, bounds.Max)
	for _, id := range ranked[:bounds.Max] {
		keep[id] = struct{}{}
	}

	kept := out[:0]
	for _, id := range out {
		if _, ok := keep[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept
}

// normalizeAnswer drops blank blocks, citations of unknown sources and
// replaces missing or duplicate block ids with b<n>.
func normalizeAnswer(answer *common.Answer, sources []common.Source) *common.Answer {
	known := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		known[s.ID] = struct{}{}
	}

	out := &common.Answer{Text: strings.TrimSpace(answer.Text)}
	used := make(map[string]struct{}, len(answer.Blocks))
	for _, b := range answer.Blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}

		id := strings.TrimSpace(b.ID)
		if _, dup := used[id]; id == "" || dup {
			for n := len(out.Blocks) + 1; ; n++ {
				id = "b" + strconv.Itoa(n)
				if _, taken := used[id]; !taken {
					break
				}
			}
		}
		used[id] = struct{}{}

		kind := b.Type
		if kind != common.BlockKindBullet {
			kind = common.BlockKindParagraph
		}

		cited := make([]string, 0, len(b.SourceIDs))
		for _, sid := range b.SourceIDs {
			sid = strings.TrimSpace(sid)
			if _, ok := known[sid]; ok {
				cited = append(cited, sid)
			}
		}

		out.Blocks = append(out.Blocks, common.AnswerBlock{
			ID:        id,
			Type:      kind,
			Text:      text,
			SourceIDs: cited,
		})
	}

	if out.Text == "" {
		parts := make([]string, 0, len(out.Blocks))
		for _, b := range out.Blocks {
			parts = append(parts, b.Text)
		}
		out.Text = strings.Join(parts, "\n\n")
	}
	return out
}

// dedupeSources drops sources without id and repeated ids, keeping the first.
func dedupeSources(sources []common.Source) []common.Source {
	out := make([]common.Source, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

func failureStatus(err error) string {
	switch {
	case errors.Is(err, common.ErrConfiguration):
		return "Failed: service is not configured"
	case errors.Is(err, common.ErrValidation):
		return "Failed: invalid request"
	default:
		return "Failed: " + err.Error()
	}
}
