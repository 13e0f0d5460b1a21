package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/density"
)

func fptr(v float64) *float64 { return &v }

func TestParseConcepts(t *testing.T) {
	tests := []struct {
		name       string
		raw        common.RawConcept
		ok         bool
		label      string
		importance *float64
	}{
		{
			name:       "complete",
			raw:        common.RawConcept{"title": "Channels", "text": "Typed conduits.", "short_label": "Chan", "importance": 0.8},
			ok:         true,
			label:      "Chan",
			importance: fptr(0.8),
		},
		{
			name:  "missing short label",
			raw:   common.RawConcept{"title": "Channels", "text": "Typed conduits."},
			ok:    true,
			label: "Channels",
		},
		{
			name:  "blank short label",
			raw:   common.RawConcept{"title": "Channels", "text": "Typed conduits.", "short_label": "  "},
			ok:    true,
			label: "Channels",
		},
		{
			name:  "non string short label",
			raw:   common.RawConcept{"title": "Channels", "text": "Typed conduits.", "short_label": 7},
			ok:    true,
			label: "Channels",
		},
		{
			name:  "string importance",
			raw:   common.RawConcept{"title": "Channels", "text": "Typed conduits.", "importance": "high"},
			ok:    true,
			label: "Channels",
		},
		{
			name:  "nan importance",
			raw:   common.RawConcept{"title": "Channels", "text": "Typed conduits.", "importance": math.NaN()},
			ok:    true,
			label: "Channels",
		},
		{
			name:       "integer importance",
			raw:        common.RawConcept{"title": "Channels", "text": "Typed conduits.", "importance": 1},
			ok:         true,
			label:      "Channels",
			importance: fptr(1),
		},
		{
			name:       "json number importance",
			raw:        common.RawConcept{"title": "Channels", "text": "Typed conduits.", "importance": json.Number("0.25")},
			ok:         true,
			label:      "Channels",
			importance: fptr(0.25),
		},
		{name: "missing title", raw: common.RawConcept{"text": "Typed conduits."}},
		{name: "blank title", raw: common.RawConcept{"title": " ", "text": "Typed conduits."}},
		{name: "non string title", raw: common.RawConcept{"title": 3, "text": "Typed conduits."}},
		{name: "missing text", raw: common.RawConcept{"title": "Channels"}},
		{name: "empty object", raw: common.RawConcept{}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, dropped := ParseConcepts([]common.RawConcept{tc.raw})
			if !tc.ok {
				if len(got) != 0 || dropped != 1 {
					t.Fatalf("expected concept to be dropped, got %+v (dropped %d)", got, dropped)
				}
				return
			}
			if len(got) != 1 || dropped != 0 {
				t.Fatalf("expected one concept, got %+v (dropped %d)", got, dropped)
			}
			c := got[0]
			if c.ShortLabel != tc.label {
				t.Fatalf("short label = %q, want %q", c.ShortLabel, tc.label)
			}
			switch {
			case tc.importance == nil && c.Importance != nil:
				t.Fatalf("importance = %v, want nil", *c.Importance)
			case tc.importance != nil && (c.Importance == nil || *c.Importance != *tc.importance):
				t.Fatalf("importance = %v, want %v", c.Importance, *tc.importance)
			}
		})
	}
}

func TestParseConceptsDropsIndividually(t *testing.T) {
	raw := []common.RawConcept{
		rawConcept("A", "first", 0.5),
		{"title": "broken"},
		rawConcept("B", "second", nil),
	}
	got, dropped := ParseConcepts(raw)
	if dropped != 1 || len(got) != 2 || got[0].Title != "A" || got[1].Title != "B" {
		t.Fatalf("unexpected result %+v (dropped %d)", got, dropped)
	}
}

func concepts(importance ...*float64) []common.Concept {
	out := make([]common.Concept, len(importance))
	for i, imp := range importance {
		out[i] = common.Concept{Title: fmt.Sprintf("c%d", i), Text: "t", ShortLabel: "l", Importance: imp}
	}
	return out
}

func titles(cs []common.Concept) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Title
	}
	return out
}

func TestCapConcepts(t *testing.T) {
	tests := []struct {
		name  string
		in    []common.Concept
		limit int
		want  []string
	}{
		{
			name:  "no truncation keeps order",
			in:    concepts(fptr(0.1), nil, fptr(0.9)),
			limit: 3,
			want:  []string{"c0", "c1", "c2"},
		},
		{
			name:  "keeps highest importance",
			in:    concepts(fptr(0.1), fptr(0.9), fptr(0.5), fptr(0.7)),
			limit: 2,
			want:  []string{"c1", "c3"},
		},
		{
			name:  "missing importance ranks last",
			in:    concepts(nil, fptr(0.1), nil, fptr(0.2)),
			limit: 3,
			want:  []string{"c3", "c1", "c0"},
		},
		{
			name:  "ties keep input order",
			in:    concepts(fptr(0.5), fptr(0.5), fptr(0.5)),
			limit: 2,
			want:  []string{"c0", "c1"},
		},
		{
			name:  "zero limit",
			in:    concepts(fptr(0.5)),
			limit: 0,
			want:  []string{},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := titles(CapConcepts(tc.in, tc.limit))
			if !slices.Equal(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRankSourcesIsStable(t *testing.T) {
	in := []common.Source{
		{ID: "S1", Score: 0.2},
		{ID: "S2", Score: 0.9},
		{ID: "S3", Score: 0.2},
		{ID: "S4", Score: 0.5},
	}
	got := RankSources(in)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	if want := []string{"S2", "S4", "S1", "S3"}; !slices.Equal(ids, want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	if in[0].ID != "S1" {
		t.Fatal("input was reordered")
	}
}

func directSources(scores ...float64) []directSource {
	out := make([]directSource, len(scores))
	for i, s := range scores {
		id := fmt.Sprintf("S%d", i+1)
		out[i] = directSource{
			source:  common.Source{ID: id, Title: id, URL: "https://example.com/" + id, Snippet: "text", Score: s},
			nodeID:  SourceNodeID(id),
			citedBy: []string{"b1"},
		}
	}
	return out
}

func TestExtractSecondary(t *testing.T) {
	ex := &fakeExtractor{
		errs: map[string]error{"S2": errors.New("model timeout")},
		fallback: func(s common.Source, count int) []common.RawConcept {
			out := make([]common.RawConcept, 0, count+1)
			for i := 0; i <= count; i++ {
				out = append(out, rawConcept(fmt.Sprintf("%s-%d", s.ID, i), "text", s.Score))
			}
			return out
		},
	}
	g, err := NewGraphClient(NewGraphClientParams{Extractor: ex, ParallelAiRequests: 2})
	if err != nil {
		t.Fatalf("NewGraphClient: %v", err)
	}

	cfg := density.SecondarySources{TopSourcesToProcess: 3, ConceptsPerSource: 2, MaxTotalConcepts: 3}
	res, err := g.extractSecondary(context.Background(), directSources(0.1, 0.9, 0.8, 0.7), cfg)
	if err != nil {
		t.Fatalf("extractSecondary: %v", err)
	}

	if len(ex.calls) != 3 {
		t.Fatalf("expected 3 extraction calls, got %v", ex.calls)
	}
	if slices.Contains(ex.calls, "S1") {
		t.Fatal("lowest ranked source must not be processed")
	}
	for _, c := range ex.counts {
		if c != 2 {
			t.Fatalf("requested %d concepts, want 2", c)
		}
	}
	if res.failures != 1 {
		t.Fatalf("failures = %d, want 1", res.failures)
	}
	if res.dropped != 2 {
		t.Fatalf("surplus concepts should count as dropped, got %d", res.dropped)
	}
	if len(res.concepts) != 3 {
		t.Fatalf("expected concepts capped at 3, got %d", len(res.concepts))
	}
	for _, c := range res.concepts {
		if c.parentSourceID == "S2" {
			t.Fatal("failed source produced concepts")
		}
		if c.parentNodeID != SourceNodeID(c.parentSourceID) {
			t.Fatalf("unexpected parent node %s for %s", c.parentNodeID, c.parentSourceID)
		}
	}
	if res.concepts[0].parentSourceID != "S3" || res.concepts[2].parentSourceID != "S4" {
		t.Fatalf("expected higher importance concepts first, got %+v", res.concepts)
	}
}

func TestExtractSecondaryConfigurationErrorAborts(t *testing.T) {
	ex := &fakeExtractor{errs: map[string]error{"S1": fmt.Errorf("%w: missing key", common.ErrConfiguration)}}
	g, _ := NewGraphClient(NewGraphClientParams{Extractor: ex})

	cfg := density.SecondarySources{TopSourcesToProcess: 2, ConceptsPerSource: 2, MaxTotalConcepts: 10}
	_, err := g.extractSecondary(context.Background(), directSources(0.9, 0.5), cfg)
	if !errors.Is(err, common.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestConceptNodes(t *testing.T) {
	in := []extractedConcept{
		{
			concept:        common.Concept{Title: "Work stealing", Text: "Idle Ps steal goroutines.", ShortLabel: "Work stealing in the Go scheduler explained", Importance: fptr(1.4)},
			parentSourceID: "S1",
			parentNodeID:   SourceNodeID("S1"),
			citingBlockIDs: []string{"b1"},
		},
		{
			concept:        common.Concept{Title: "Orphan", Text: "No parent.", ShortLabel: "Orphan"},
			parentSourceID: "S9",
		},
	}
	nodes, edges, err := conceptNodes(in)
	if err != nil {
		t.Fatalf("conceptNodes: %v", err)
	}
	if len(nodes) != 2 || len(edges) != 1 {
		t.Fatalf("got %d nodes and %d edges", len(nodes), len(edges))
	}
	if nodes[0].ID == nodes[1].ID {
		t.Fatal("concept ids must be unique")
	}
	if nodes[0].Layer != LayerSecondary || nodes[0].Type != NodeTypeSecondarySource {
		t.Fatalf("unexpected node %+v", nodes[0])
	}
	if nodes[0].Label != "Work stealing in the Go scheduler…" {
		t.Fatalf("label = %q", nodes[0].Label)
	}
	e := edges[0]
	if e.From != SourceNodeID("S1") || e.To != nodes[0].ID || e.Relation != RelationUnderpins || e.Weight != 1 {
		t.Fatalf("unexpected edge %+v", e)
	}
	if d := nodes[1].Data.(SecondarySourceData); d.CitingBlockIDs == nil {
		t.Fatal("citing block ids must not be nil")
	}
}
