package graph

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrInvalidEdge   = errors.New("invalid edge")
)

// Graph is an evidence graph. Node ids are unique, every edge references
// existing nodes and an unordered pair carries at most one semantic edge.
//
// The zero value is ready to use. Graph is not safe for concurrent mutation.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	nodeIndex map[string]int
	edgeIndex map[edgeKey]struct{}
}

type edgeKey struct {
	from     string
	to       string
	relation Relation
}

func keyFor(e Edge) edgeKey {
	from, to := e.From, e.To
	if e.Relation == RelationSemanticRelated && to < from {
		from, to = to, from
	}
	return edgeKey{from: from, to: to, relation: e.Relation}
}

// NewGraph returns an empty graph whose slices marshal as [] instead of null.
func NewGraph() *Graph {
	return &Graph{
		Nodes: []Node{},
		Edges: []Edge{},
	}
}

func (g *Graph) ensureIndex() {
	if g.nodeIndex != nil {
		return
	}
	g.nodeIndex = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.nodeIndex[n.ID] = i
	}
	g.edgeIndex = make(map[edgeKey]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		g.edgeIndex[keyFor(e)] = struct{}{}
	}
}

// AddNode appends n. A node with an id already in the graph is rejected.
func (g *Graph) AddNode(n Node) error {
	g.ensureIndex()
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrDuplicateNode)
	}
	if _, ok := g.nodeIndex[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	g.nodeIndex[n.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return nil
}

// AddEdge appends e after checking it against the graph invariants. Semantic
// edges are undirected: (a,b) and (b,a) are the same edge.
func (g *Graph) AddEdge(e Edge) error {
	g.ensureIndex()
	if e.From == e.To {
		return fmt.Errorf("%w: self edge on %s", ErrInvalidEdge, e.From)
	}
	if _, ok := g.nodeIndex[e.From]; !ok {
		return fmt.Errorf("%w: unknown node %s", ErrInvalidEdge, e.From)
	}
	if _, ok := g.nodeIndex[e.To]; !ok {
		return fmt.Errorf("%w: unknown node %s", ErrInvalidEdge, e.To)
	}
	if e.Weight < 0 || e.Weight > 1 || e.Weight != e.Weight {
		return fmt.Errorf("%w: weight %v out of range", ErrInvalidEdge, e.Weight)
	}
	key := keyFor(e)
	if _, ok := g.edgeIndex[key]; ok {
		return fmt.Errorf("%w: duplicate %s edge %s-%s", ErrInvalidEdge, e.Relation, e.From, e.To)
	}
	g.edgeIndex[key] = struct{}{}
	g.Edges = append(g.Edges, e)
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.ensureIndex()
	i, ok := g.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Merge adds nodes and edges without touching existing elements. Nodes whose
// id already exists and edges that would break an invariant are skipped.
// It returns how many nodes and edges were added.
func (g *Graph) Merge(nodes []Node, edges []Edge) (int, int) {
	addedNodes, addedEdges := 0, 0
	for _, n := range nodes {
		if err := g.AddNode(n); err == nil {
			addedNodes++
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err == nil {
			addedEdges++
		}
	}
	return addedNodes, addedEdges
}

// NodesOfType returns the nodes of type t in insertion order.
func (g *Graph) NodesOfType(t NodeType) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// EdgesOf returns the edges with relation r in insertion order.
func (g *Graph) EdgesOf(r Relation) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Relation == r {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks every invariant from scratch. It is independent of the
// incremental checks in AddNode and AddEdge.
func (g *Graph) Validate() error {
	ids := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, ok := ids[n.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		ids[n.ID] = struct{}{}
		if n.Data == nil {
			return fmt.Errorf("node %s has no data", n.ID)
		}
		if t, layer := n.Data.nodeKind(); t != n.Type || layer != n.Layer {
			return fmt.Errorf("node %s is %s/%d but carries %s/%d data", n.ID, n.Type, n.Layer, t, layer)
		}
	}
	seen := make(map[edgeKey]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if e.From == e.To {
			return fmt.Errorf("%w: self edge on %s", ErrInvalidEdge, e.From)
		}
		if _, ok := ids[e.From]; !ok {
			return fmt.Errorf("%w: unknown node %s", ErrInvalidEdge, e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return fmt.Errorf("%w: unknown node %s", ErrInvalidEdge, e.To)
		}
		if e.Weight < 0 || e.Weight > 1 {
			return fmt.Errorf("%w: weight %v out of range", ErrInvalidEdge, e.Weight)
		}
		key := keyFor(e)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: duplicate %s edge %s-%s", ErrInvalidEdge, e.Relation, e.From, e.To)
		}
		seen[key] = struct{}{}
	}
	return nil
}
