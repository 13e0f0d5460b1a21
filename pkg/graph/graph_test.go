package graph

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewNodeDerivesTypeAndLayer(t *testing.T) {
	tests := []struct {
		data  NodeData
		typ   NodeType
		layer int
	}{
		{QuestionData{Text: "q"}, NodeTypeQuestion, 0},
		{AnswerRootData{Text: "a"}, NodeTypeAnswerRoot, 0},
		{AnswerBlockData{BlockID: "b1"}, NodeTypeAnswerBlock, 1},
		{DirectSourceData{SourceID: "S1"}, NodeTypeDirectSource, 2},
		{SecondarySourceData{Title: "c"}, NodeTypeSecondarySource, 3},
	}
	for _, tc := range tests {
		n := NewNode("id", "label", tc.data)
		if n.Type != tc.typ || n.Layer != tc.layer {
			t.Fatalf("%T: got %s/%d, want %s/%d", tc.data, n.Type, n.Layer, tc.typ, tc.layer)
		}
	}
}

func TestNodeJSON(t *testing.T) {
	n := NewNode(SourceNodeID("S1"), "Go", DirectSourceData{SourceID: "S1", Title: "Go", URL: "https://go.dev", Score: 0.5, CitedBy: []string{"b1"}})
	raw, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"id":"source-S1"`, `"type":"direct_source"`, `"layer":2`, `"citedBy":["b1"]`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}
}

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	for _, n := range []Node{
		NewNode("a", "a", QuestionData{Text: "a"}),
		NewNode("b", "b", AnswerRootData{Text: "b"}),
		NewNode("c", "c", AnswerBlockData{BlockID: "c"}),
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	return g
}

func TestAddNodeRejectsDuplicates(t *testing.T) {
	g := newTestGraph(t)
	if err := g.AddNode(NewNode("a", "again", QuestionData{})); !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := g.AddNode(NewNode("", "empty", QuestionData{})); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestAddEdgeInvariants(t *testing.T) {
	g := newTestGraph(t)

	if err := g.AddEdge(Edge{From: "a", To: "b", Relation: RelationSemanticRelated, Weight: 0.9}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	tests := []struct {
		name string
		edge Edge
	}{
		{name: "self edge", edge: Edge{From: "a", To: "a", Relation: RelationAnswers, Weight: 1}},
		{name: "unknown from", edge: Edge{From: "x", To: "a", Relation: RelationAnswers, Weight: 1}},
		{name: "unknown to", edge: Edge{From: "a", To: "x", Relation: RelationAnswers, Weight: 1}},
		{name: "weight above one", edge: Edge{From: "a", To: "c", Relation: RelationAnswers, Weight: 1.5}},
		{name: "negative weight", edge: Edge{From: "a", To: "c", Relation: RelationAnswers, Weight: -0.1}},
		{name: "reversed semantic pair", edge: Edge{From: "b", To: "a", Relation: RelationSemanticRelated, Weight: 0.7}},
		{name: "same semantic pair", edge: Edge{From: "a", To: "b", Relation: RelationSemanticRelated, Weight: 0.7}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if err := g.AddEdge(tc.edge); !errors.Is(err, ErrInvalidEdge) {
				t.Fatalf("expected invalid edge error, got %v", err)
			}
		})
	}

	if err := g.AddEdge(Edge{From: "b", To: "a", Relation: RelationAnswers, Weight: 1}); err != nil {
		t.Fatalf("a structural edge may share a pair with a semantic one: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMergeIsAdditive(t *testing.T) {
	g := newTestGraph(t)
	before, _ := g.Node("a")

	nodes := []Node{
		NewNode("a", "replacement", AnswerRootData{Text: "other"}),
		NewNode("d", "d", SecondarySourceData{Title: "d"}),
	}
	edges := []Edge{
		{From: "c", To: "d", Relation: RelationUnderpins, Weight: 0.5},
		{From: "d", To: "missing", Relation: RelationUnderpins, Weight: 0.5},
		{From: "d", To: "d", Relation: RelationSemanticRelated, Weight: 0.9},
	}

	addedNodes, addedEdges := g.Merge(nodes, edges)
	if addedNodes != 1 || addedEdges != 1 {
		t.Fatalf("expected 1 node and 1 edge added, got %d and %d", addedNodes, addedEdges)
	}
	after, _ := g.Node("a")
	if after.Label != before.Label || after.Type != before.Type {
		t.Fatalf("existing node was modified: %+v", after)
	}
	if len(g.Nodes) != 4 || len(g.Edges) != 1 {
		t.Fatalf("unexpected graph size %d nodes %d edges", len(g.Nodes), len(g.Edges))
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			NewNode("a", "a", QuestionData{}),
			NewNode("b", "b", AnswerRootData{}),
		},
		Edges: []Edge{
			{From: "a", To: "b", Relation: RelationSemanticRelated, Weight: 0.8},
			{From: "b", To: "a", Relation: RelationSemanticRelated, Weight: 0.8},
		},
	}
	if err := g.Validate(); !errors.Is(err, ErrInvalidEdge) {
		t.Fatalf("expected duplicate semantic pair to be reported, got %v", err)
	}

	retyped := NewNode("c", "c", QuestionData{})
	retyped.Type = NodeTypeDirectSource
	g = &Graph{Nodes: []Node{retyped}}
	if err := g.Validate(); err == nil {
		t.Fatal("expected mismatched type to be reported")
	}
}

func TestZeroGraphIsUsable(t *testing.T) {
	var g Graph
	if err := g.AddNode(NewNode("a", "a", QuestionData{})); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if _, ok := g.Node("a"); !ok {
		t.Fatal("expected node to be found")
	}
	if got := g.NodesOfType(NodeTypeQuestion); len(got) != 1 {
		t.Fatalf("NodesOfType returned %d nodes", len(got))
	}
}
