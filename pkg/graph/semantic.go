package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/density"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// canonicalTextLimit caps the characters of node text sent for embedding.
const canonicalTextLimit = 2000

// CanonicalText returns the text a node is embedded by: its title followed by
// its descriptive text.
func CanonicalText(n Node) string {
	var title, body string
	switch d := n.Data.(type) {
	case QuestionData:
		body = d.Text
	case AnswerRootData:
		body = d.Text
	case AnswerBlockData:
		body = d.Text
	case DirectSourceData:
		title = d.Title
		body = d.Snippet
		if body == "" {
			body = d.FullText
		}
	case SecondarySourceData:
		title = d.Title
		body = d.Text
	}
	if title == "" {
		title = n.Label
	}

	text := strings.TrimSpace(title)
	if body = strings.TrimSpace(body); body != "" && body != text {
		if text != "" {
			text += "\n"
		}
		text += body
	}
	if len(text) > canonicalTextLimit {
		text = strings.ToValidUTF8(text[:canonicalTextLimit], "")
	}
	return text
}

// EmbedNodes embeds the canonical text of every node with bounded
// concurrency. Nodes whose call fails or yields an empty vector are left out
// of the result and counted as failures. A configuration error aborts.
func (g *GraphClient) EmbedNodes(ctx context.Context, nodes []Node) (map[string][]float32, int, error) {
	if g.embedder == nil {
		return nil, 0, fmt.Errorf("%w: no embedder configured", common.ErrConfiguration)
	}

	var (
		mu       sync.Mutex
		vectors  = make(map[string][]float32, len(nodes))
		failures int
		cfgErr   error
	)

	eg := errgroup.Group{}
	eg.SetLimit(g.parallelAiRequests)
	for _, node := range nodes {
		n := node
		eg.Go(func() error {
			text := CanonicalText(n)
			if text == "" {
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			vec, err := g.embedder.GenerateEmbedding(ctx, []byte(text))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if errors.Is(err, common.ErrConfiguration) {
					cfgErr = err
				}
				logger.Debug("[Graph] Embedding failed, excluding node", "node_id", n.ID, "err", err)
				failures++
			case len(vec) == 0:
				failures++
			default:
				vectors[n.ID] = vec
			}
			return nil
		})
	}
	_ = eg.Wait()

	if cfgErr != nil {
		return nil, failures, cfgErr
	}
	return vectors, failures, nil
}

// CosineSimilarity returns the cosine of the angle between a and b. It
// reports false when the vectors differ in length or one has zero norm.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

type neighbour struct {
	index int
	score float64
}

type semanticCandidate struct {
	from  string
	to    string
	score float64
}

// BuildSemanticEdges connects embedded nodes by cosine similarity. Each node
// keeps its TopK most similar neighbours at or above MinSimilarity. Pairs are
// made unordered (lower id first) keeping the higher score, and the result is
// capped to MaxEdges strongest edges. Nodes without a vector are ignored.
// The output depends only on the node order and the vectors.
func BuildSemanticEdges(nodes []Node, vectors map[string][]float32, cfg density.SemanticEdges) []Edge {
	if cfg.TopK <= 0 || cfg.MaxEdges <= 0 {
		return nil
	}

	embedded := make([]Node, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		if len(vectors[n.ID]) == 0 {
			continue
		}
		seen[n.ID] = struct{}{}
		embedded = append(embedded, n)
	}

	index := make(map[[2]string]int)
	var candidates []semanticCandidate

	for i, a := range embedded {
		var neighbours []neighbour
		for j, b := range embedded {
			if i == j {
				continue
			}
			score, ok := CosineSimilarity(vectors[a.ID], vectors[b.ID])
			if !ok || score < cfg.MinSimilarity {
				continue
			}
			neighbours = append(neighbours, neighbour{index: j, score: score})
		}
		slices.SortStableFunc(neighbours, func(x, y neighbour) int {
			switch {
			case x.score > y.score:
				return -1
			case x.score < y.score:
				return 1
			}
			return 0
		})
		if len(neighbours) > cfg.TopK {
			neighbours = neighbours[:cfg.TopK]
		}

		for _, nb := range neighbours {
			from, to := a.ID, embedded[nb.index].ID
			if to < from {
				from, to = to, from
			}
			key := [2]string{from, to}
			if at, ok := index[key]; ok {
				if nb.score > candidates[at].score {
					candidates[at].score = nb.score
				}
				continue
			}
			index[key] = len(candidates)
			candidates = append(candidates, semanticCandidate{from: from, to: to, score: nb.score})
		}
	}

	slices.SortStableFunc(candidates, func(x, y semanticCandidate) int {
		switch {
		case x.score > y.score:
			return -1
		case x.score < y.score:
			return 1
		}
		return 0
	})
	if len(candidates) > cfg.MaxEdges {
		candidates = candidates[:cfg.MaxEdges]
	}

	edges := make([]Edge, 0, len(candidates))
	for _, c := range candidates {
		edges = append(edges, Edge{
			From:     c.from,
			To:       c.to,
			Relation: RelationSemanticRelated,
			Weight:   clampWeight(c.score),
		})
	}
	return edges
}
