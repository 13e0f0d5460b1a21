package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/density"
	"github.com/OFFIS-RIT/evidence-graph/pkg/progress"
)

const testQuestion = "How do goroutines and channels work together?"

func testSources() []common.Source {
	return []common.Source{
		{ID: "S1", Title: "Goroutines", URL: "https://example.com/1", Snippet: "goroutine scheduler basics", Score: 0.9},
		{ID: "S2", Title: "Channels", URL: "https://example.com/2", Snippet: "channel operations", Score: 0.8},
		{ID: "S3", Title: "Scheduler", URL: "https://example.com/3", Snippet: "scheduler and goroutine queues", Score: 0.7},
		{ID: "S4", Title: "Memory", URL: "https://example.com/4", Snippet: "garbage collector and memory", Score: 0.6},
		{ID: "S5", Title: "Misc", URL: "https://example.com/5", Snippet: "channel trivia", Score: 0.1},
		{ID: "S6", Title: "Unused", URL: "https://example.com/6", Snippet: "memory layout", Score: 0.5},
	}
}

func testAnswer() *common.Answer {
	return &common.Answer{
		Text: "Goroutines communicate over channels.",
		Blocks: []common.AnswerBlock{
			{ID: "b1", Type: common.BlockKindParagraph, Text: "Each goroutine is scheduled by the runtime scheduler.", SourceIDs: []string{"S1", "S9"}},
			{ID: "b2", Type: common.BlockKindBullet, Text: "A channel synchronises goroutine handoffs.", SourceIDs: []string{"S2", "S3"}},
			{ID: "b3", Type: common.BlockKindBullet, Text: "Channels and memory interact.", SourceIDs: []string{"S5", "S1", "S2", "S3", "S4"}},
		},
	}
}

func conceptFallback(s common.Source, count int) []common.RawConcept {
	out := make([]common.RawConcept, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, common.RawConcept{
			"title":       fmt.Sprintf("%s concept %d", s.Title, i),
			"text":        s.Snippet + " explained",
			"short_label": fmt.Sprintf("%s %d", s.Title, i),
			"importance":  0.5 + float64(i)/10,
		})
	}
	return out
}

type harness struct {
	retriever *fakeRetriever
	answers   *fakeAnswers
	extractor *fakeExtractor
	embedder  *topicEmbedder
	tracker   *progress.Tracker
	client    *GraphClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		retriever: &fakeRetriever{sources: testSources()},
		answers:   &fakeAnswers{answer: testAnswer()},
		extractor: &fakeExtractor{fallback: conceptFallback},
		embedder:  &topicEmbedder{},
		tracker:   progress.NewTracker(progress.TrackerParams{DisableSweeper: true}),
	}
	t.Cleanup(h.tracker.Shutdown)
	return h
}

func (h *harness) build(t *testing.T, req BuildRequest) (*BuildResult, error) {
	t.Helper()
	client, err := NewGraphClient(NewGraphClientParams{
		Retriever:          h.retriever,
		Answers:            h.answers,
		Extractor:          h.extractor,
		Embedder:           h.embedder,
		Reasoner:           &fakeReasoner{res: &common.Reasoning{ExpandedText: "because"}},
		Progress:           h.tracker,
		ParallelAiRequests: 3,
	})
	if err != nil {
		t.Fatalf("NewGraphClient: %v", err)
	}
	h.client = client
	if req.JobID != "" {
		h.tracker.CreateJob(req.JobID)
	}
	return client.BuildEvidenceGraph(context.Background(), req)
}

func nodeIDs(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestBuildEvidenceGraph(t *testing.T) {
	h := newHarness(t)
	h.extractor.errs = map[string]error{"S2": errors.New("extraction timed out")}
	h.embedder.fail = []string{"garbage"}

	res, err := h.build(t, BuildRequest{JobID: "job-1", Question: testQuestion, DensityLevel: "low"})
	if err != nil {
		t.Fatalf("BuildEvidenceGraph: %v", err)
	}
	g := res.Graph
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	low := density.ForLevel(density.LevelLow)
	if res.Level != density.LevelLow || res.Density != low {
		t.Fatalf("unexpected density %s %+v", res.Level, res.Density)
	}
	if h.retriever.count != low.ExaNumResults {
		t.Fatalf("requested %d sources, want %d", h.retriever.count, low.ExaNumResults)
	}

	if got := nodeIDs(g.NodesOfType(NodeTypeAnswerBlock)); !slices.Equal(got, []string{"block-b1", "block-b2", "block-b3"}) {
		t.Fatalf("unexpected blocks %v", got)
	}
	direct := nodeIDs(g.NodesOfType(NodeTypeDirectSource))
	if want := []string{"source-S1", "source-S2", "source-S3", "source-S4"}; !slices.Equal(direct, want) {
		t.Fatalf("direct sources = %v, want %v", direct, want)
	}

	b3, _ := g.Node("block-b3")
	if got := b3.Data.(AnswerBlockData).SourceIDs; !slices.Equal(got, []string{"S1", "S2", "S3", "S4"}) {
		t.Fatalf("block b3 should keep its %d best sources in citation order, got %v", low.DirectSourcesPerBlock.Max, got)
	}
	b1, _ := g.Node("block-b1")
	if got := b1.Data.(AnswerBlockData).SourceIDs; !slices.Equal(got, []string{"S1"}) {
		t.Fatalf("unknown citations must be dropped, got %v", got)
	}
	s1, _ := g.Node("source-S1")
	if got := s1.Data.(DirectSourceData).CitedBy; !slices.Equal(got, []string{"b1", "b3"}) {
		t.Fatalf("S1 cited by %v", got)
	}

	for _, e := range g.EdgesOf(RelationSupports) {
		from, _ := g.Node(e.From)
		to, _ := g.Node(e.To)
		if from.Type != NodeTypeAnswerBlock || to.Type != NodeTypeDirectSource {
			t.Fatalf("supports edge %s->%s has wrong endpoints", e.From, e.To)
		}
		if e.Weight != to.Data.(DirectSourceData).Score {
			t.Fatalf("supports weight %v does not match source score", e.Weight)
		}
	}
	if n := len(g.EdgesOf(RelationAnswers)); n != 4 {
		t.Fatalf("expected 4 answers edges, got %d", n)
	}

	concepts := g.NodesOfType(NodeTypeSecondarySource)
	if len(concepts) != 4 || res.Stats.ConceptCount != 4 {
		t.Fatalf("expected 4 concepts from S1 and S3, got %d", len(concepts))
	}
	if len(concepts) > low.SecondarySources.MaxTotalConcepts {
		t.Fatalf("%d concepts exceed the cap", len(concepts))
	}
	for _, c := range concepts {
		d := c.Data.(SecondarySourceData)
		if d.ParentSourceID != "S1" && d.ParentSourceID != "S3" {
			t.Fatalf("unexpected parent %s", d.ParentSourceID)
		}
	}
	if n := len(g.EdgesOf(RelationUnderpins)); n != 4 {
		t.Fatalf("expected 4 underpins edges, got %d", n)
	}
	if res.Stats.ExtractionFailures != 1 {
		t.Fatalf("extraction failures = %d", res.Stats.ExtractionFailures)
	}

	semantic := g.EdgesOf(RelationSemanticRelated)
	if len(semantic) == 0 || len(semantic) != res.Stats.SemanticEdgeCount {
		t.Fatalf("semantic edges %d, stats %d", len(semantic), res.Stats.SemanticEdgeCount)
	}
	if len(semantic) > low.SemanticEdges.MaxEdges {
		t.Fatalf("%d semantic edges exceed the cap", len(semantic))
	}
	for _, e := range semantic {
		if e.From == "source-S4" || e.To == "source-S4" {
			t.Fatal("node whose embedding failed must not get semantic edges")
		}
		if e.Weight < low.SemanticEdges.MinSimilarity {
			t.Fatalf("semantic weight %v below threshold", e.Weight)
		}
	}
	if res.Stats.EmbeddingFailures != 1 {
		t.Fatalf("embedding failures = %d, want 1", res.Stats.EmbeddingFailures)
	}

	st, _ := h.tracker.GetProgress("job-1")
	if st.Progress != 100 || st.Phase != progress.PhaseComplete {
		t.Fatalf("unexpected final progress %+v", st)
	}
}

func TestBuildEvidenceGraphRetrievalFailureDegrades(t *testing.T) {
	h := newHarness(t)
	h.retriever.err = errors.New("search backend returned 502")

	res, err := h.build(t, BuildRequest{JobID: "job-2", Question: testQuestion, DensityLevel: "medium"})
	if err != nil {
		t.Fatalf("BuildEvidenceGraph: %v", err)
	}
	if len(h.answers.seen) != 0 {
		t.Fatalf("answer generator received %d sources", len(h.answers.seen))
	}
	if n := len(res.Graph.NodesOfType(NodeTypeDirectSource)); n != 0 {
		t.Fatalf("expected no direct sources, got %d", n)
	}
	if n := len(res.Graph.NodesOfType(NodeTypeAnswerBlock)); n != 3 {
		t.Fatalf("expected 3 blocks, got %d", n)
	}
	if err := res.Graph.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	st, _ := h.tracker.GetProgress("job-2")
	if st.Phase != progress.PhaseComplete {
		t.Fatalf("unexpected phase %s", st.Phase)
	}
}

func TestBuildEvidenceGraphFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		req     BuildRequest
		wantErr error
		phase   progress.Phase
	}{
		{
			name:    "answer failure",
			setup:   func(h *harness) { h.answers.err = errors.New("model overloaded") },
			req:     BuildRequest{JobID: "j", Question: testQuestion},
			wantErr: common.ErrCollaborator,
			phase:   progress.PhaseAnswer,
		},
		{
			name:    "answer without blocks",
			setup:   func(h *harness) { h.answers.answer = &common.Answer{Blocks: []common.AnswerBlock{{ID: "b1", Text: "  "}}} },
			req:     BuildRequest{JobID: "j", Question: testQuestion},
			wantErr: common.ErrCollaborator,
			phase:   progress.PhaseAnswer,
		},
		{
			name:    "retriever not configured",
			setup:   func(h *harness) { h.retriever.err = fmt.Errorf("%w: EXA_API_KEY is not set", common.ErrConfiguration) },
			req:     BuildRequest{JobID: "j", Question: testQuestion},
			wantErr: common.ErrConfiguration,
			phase:   progress.PhaseResearch,
		},
		{
			name:    "embedder not configured",
			setup:   func(h *harness) { h.embedder.err = fmt.Errorf("%w: no embedding key", common.ErrConfiguration) },
			req:     BuildRequest{JobID: "j", Question: testQuestion},
			wantErr: common.ErrConfiguration,
			phase:   progress.PhaseGraph,
		},
		{
			name:    "blank question",
			setup:   func(*harness) {},
			req:     BuildRequest{JobID: "j", Question: "   "},
			wantErr: common.ErrValidation,
			phase:   progress.PhaseInit,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)

			res, err := h.build(t, tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if res != nil {
				t.Fatal("expected no result on failure")
			}
			st, _ := h.tracker.GetProgress("j")
			if !strings.HasPrefix(st.Status, "Failed") {
				t.Fatalf("status = %q, want a failure", st.Status)
			}
			if st.Phase != tc.phase {
				t.Fatalf("phase = %s, want %s", st.Phase, tc.phase)
			}
			if st.Progress == 100 {
				t.Fatal("failed job must not report completion")
			}
		})
	}
}

func TestBuildEvidenceGraphInfersDensity(t *testing.T) {
	h := newHarness(t)
	res, err := h.build(t, BuildRequest{Question: testQuestion})
	if err != nil {
		t.Fatalf("BuildEvidenceGraph: %v", err)
	}
	if want := density.Infer(testQuestion, nil); res.Level != want {
		t.Fatalf("level = %s, want %s", res.Level, want)
	}
}

func TestSelectBlockSources(t *testing.T) {
	byID := map[string]common.Source{}
	for _, s := range []common.Source{
		{ID: "A", Score: 0.5},
		{ID: "B", Score: 0.9},
		{ID: "C", Score: 0.5},
		{ID: "D", Score: 0.1},
	} {
		byID[s.ID] = s
	}

	tests := []struct {
		name   string
		cited  []string
		bounds density.Range
		want   []string
	}{
		{name: "under max", cited: []string{"D", "A"}, bounds: density.Range{Min: 1, Max: 3}, want: []string{"D", "A"}},
		{name: "below min kept", cited: []string{"A"}, bounds: density.Range{Min: 2, Max: 3}, want: []string{"A"}},
		{name: "over max keeps best", cited: []string{"D", "A", "B"}, bounds: density.Range{Max: 2}, want: []string{"A", "B"}},
		{name: "score tie goes to earlier citation", cited: []string{"C", "A", "D"}, bounds: density.Range{Max: 1}, want: []string{"C"}},
		{name: "unknown and duplicate ids", cited: []string{"X", "A", "A"}, bounds: density.Range{Max: 3}, want: []string{"A"}},
		{name: "nothing cited", cited: nil, bounds: density.Range{Max: 3}, want: []string{}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := selectBlockSources(tc.cited, byID, tc.bounds); !slices.Equal(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalizeAnswer(t *testing.T) {
	in := &common.Answer{
		Blocks: []common.AnswerBlock{
			{ID: "b1", Type: common.BlockKindBullet, Text: " first ", SourceIDs: []string{"S1", "S7"}},
			{ID: "b1", Type: "table", Text: "second", SourceIDs: []string{" S2 "}},
			{ID: "", Text: "third"},
			{ID: "b9", Text: "  "},
		},
	}
	out := normalizeAnswer(in, []common.Source{{ID: "S1"}, {ID: "S2"}})

	if len(out.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %+v", out.Blocks)
	}
	ids := []string{out.Blocks[0].ID, out.Blocks[1].ID, out.Blocks[2].ID}
	if !slices.Equal(ids, []string{"b1", "b2", "b3"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
	if out.Blocks[1].Type != common.BlockKindParagraph {
		t.Fatalf("unknown kind should become paragraph, got %s", out.Blocks[1].Type)
	}
	if !slices.Equal(out.Blocks[0].SourceIDs, []string{"S1"}) || !slices.Equal(out.Blocks[1].SourceIDs, []string{"S2"}) {
		t.Fatalf("unexpected citations %v %v", out.Blocks[0].SourceIDs, out.Blocks[1].SourceIDs)
	}
	if out.Text != "first\n\nsecond\n\nthird" {
		t.Fatalf("answer text = %q", out.Text)
	}
}
