package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/evidence-graph/internal/util"
	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/density"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

// directSource is a source that made it into layer 2, together with the
// blocks citing it.
type directSource struct {
	source  common.Source
	nodeID  string
	citedBy []string
}

// extractedConcept is a validated concept with its linkage back into the
// graph.
type extractedConcept struct {
	concept        common.Concept
	parentSourceID string
	parentNodeID   string
	citingBlockIDs []string
}

// extractionResult summarises one extraction pass over several sources.
type extractionResult struct {
	concepts []extractedConcept
	dropped  int
	failures int
}

// RankSources returns sources ordered by descending score. Equal scores keep
// their input order. The input is not modified.
func RankSources(sources []common.Source) []common.Source {
	out := slices.Clone(sources)
	slices.SortStableFunc(out, func(a, b common.Source) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return out
}

// ParseConcepts validates loosely typed concepts. title and text must be
// non-blank strings; short_label falls back to title when it is missing,
// blank or not a string; importance is kept only when it is a finite number.
// Invalid concepts are dropped individually and counted.
func ParseConcepts(raw []common.RawConcept) ([]common.Concept, int) {
	out := make([]common.Concept, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		c, ok := parseConcept(r)
		if !ok {
			dropped++
			continue
		}
		out = append(out, c)
	}
	return out, dropped
}

func parseConcept(r common.RawConcept) (common.Concept, bool) {
	title, ok := nonBlankString(r["title"])
	if !ok {
		return common.Concept{}, false
	}
	text, ok := nonBlankString(r["text"])
	if !ok {
		return common.Concept{}, false
	}
	label, ok := nonBlankString(r["short_label"])
	if !ok {
		label = title
	}
	return common.Concept{
		Title:      title,
		Text:       text,
		ShortLabel: label,
		Importance: numeric(r["importance"]),
	}, true
}

func nonBlankString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func numeric(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// CapConcepts keeps at most limit concepts, preferring higher importance.
// Concepts without importance rank last; ties keep their input order. When no
// truncation is needed the input order is preserved.
func CapConcepts(concepts []common.Concept, limit int) []common.Concept {
	return capByImportance(concepts, limit, func(c common.Concept) *float64 { return c.Importance })
}

func capByImportance[T any](items []T, limit int, importance func(T) *float64) []T {
	if limit < 0 {
		limit = 0
	}
	if len(items) <= limit {
		return items
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		ia, ib := importance(a), importance(b)
		switch {
		case ia == nil && ib == nil:
			return 0
		case ia == nil:
			return 1
		case ib == nil:
			return -1
		case *ia > *ib:
			return -1
		case *ia < *ib:
			return 1
		}
		return 0
	})
	return sorted[:limit]
}

// extractSecondary runs concept extraction on the top ranked direct sources.
// A failing source is skipped; configuration errors are returned since no
// other source can succeed either.
func (g *GraphClient) extractSecondary(
	ctx context.Context,
	direct []directSource,
	cfg density.SecondarySources,
) (extractionResult, error) {
	if g.extractor == nil {
		return extractionResult{}, fmt.Errorf("%w: no concept extractor configured", common.ErrConfiguration)
	}

	ranked := rankDirect(direct)
	if len(ranked) > cfg.TopSourcesToProcess {
		ranked = ranked[:max(cfg.TopSourcesToProcess, 0)]
	}

	type slot struct {
		concepts []extractedConcept
		dropped  int
		err      error
	}
	slots := make([]slot, len(ranked))

	eg := errgroup.Group{}
	eg.SetLimit(g.parallelAiRequests)
	for i := range ranked {
		idx := i
		ds := ranked[i]
		eg.Go(func() error {
			concepts, dropped, err := g.extractFromSource(ctx, ds.source, cfg.ConceptsPerSource)
			if err != nil {
				slots[idx].err = err
				return nil
			}
			for _, c := range concepts {
				slots[idx].concepts = append(slots[idx].concepts, extractedConcept{
					concept:        c,
					parentSourceID: ds.source.ID,
					parentNodeID:   ds.nodeID,
					citingBlockIDs: ds.citedBy,
				})
			}
			slots[idx].dropped = dropped
			return nil
		})
	}
	_ = eg.Wait()

	var res extractionResult
	for i, s := range slots {
		if s.err != nil {
			if errors.Is(s.err, common.ErrConfiguration) {
				return extractionResult{}, s.err
			}
			logger.Warn("[Graph] Concept extraction failed, skipping source",
				"source_id", ranked[i].source.ID, "err", s.err)
			res.failures++
			continue
		}
		res.concepts = append(res.concepts, s.concepts...)
		res.dropped += s.dropped
	}

	res.concepts = capByImportance(res.concepts, cfg.MaxTotalConcepts, func(c extractedConcept) *float64 {
		return c.concept.Importance
	})
	return res, nil
}

// extractFromSource requests count concepts for one source and keeps at most
// count valid ones. Surplus concepts count as dropped.
func (g *GraphClient) extractFromSource(
	ctx context.Context,
	source common.Source,
	count int,
) ([]common.Concept, int, error) {
	if count <= 0 {
		return nil, 0, nil
	}
	raw, err := g.extractor.ExtractConcepts(ctx, source, count)
	if err != nil {
		return nil, 0, err
	}
	concepts, dropped := ParseConcepts(raw)
	if len(concepts) > count {
		dropped += len(concepts) - count
		concepts = concepts[:count]
	}
	if dropped > 0 {
		logger.Debug("[Graph] Dropped invalid concepts", "source_id", source.ID, "dropped", dropped)
	}
	return concepts, dropped, nil
}

func rankDirect(direct []directSource) []directSource {
	out := slices.Clone(direct)
	slices.SortStableFunc(out, func(a, b directSource) int {
		switch {
		case a.source.Score > b.source.Score:
			return -1
		case a.source.Score < b.source.Score:
			return 1
		}
		return 0
	})
	return out
}

// conceptNodes turns extracted concepts into layer 3 nodes. When a concept
// has a parent node an underpins edge from that node is added.
func conceptNodes(concepts []extractedConcept) ([]Node, []Edge, error) {
	nodes := make([]Node, 0, len(concepts))
	edges := make([]Edge, 0, len(concepts))
	for _, c := range concepts {
		id, err := gonanoid.New()
		if err != nil {
			return nil, nil, fmt.Errorf("nanoid: %w", err)
		}
		nodeID := "concept-" + id
		nodes = append(nodes, NewNode(nodeID, conceptLabel(c.concept), SecondarySourceData{
			Title:          c.concept.Title,
			Text:           c.concept.Text,
			ShortLabel:     c.concept.ShortLabel,
			Importance:     c.concept.Importance,
			ParentSourceID: c.parentSourceID,
			ParentNodeID:   c.parentNodeID,
			CitingBlockIDs: nonNil(c.citingBlockIDs),
		}))
		if c.parentNodeID == "" {
			continue
		}
		edges = append(edges, Edge{
			From:     c.parentNodeID,
			To:       nodeID,
			Relation: RelationUnderpins,
			Weight:   underpinsWeight(c.concept.Importance),
		})
	}
	return nodes, edges, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func conceptLabel(c common.Concept) string {
	return util.FirstNWords(c.ShortLabel, 6)
}
