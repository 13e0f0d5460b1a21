package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/density"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SourceExpansionRequest asks for more concepts of one source. SourceNodeID
// is the id of the source's node in an already delivered graph; when it is
// empty the concepts come back without underpins edges.
type SourceExpansionRequest struct {
	SourceNodeID   string
	Source         common.Source
	CitingBlockIDs []string
	DensityLevel   string
}

// Expansion holds the additive result of expanding a source. Nodes and Edges
// are meant to be merged into the graph the source belongs to.
type Expansion struct {
	Level    density.Level    `json:"densityLevel"`
	Concepts []common.Concept `json:"concepts"`
	Nodes    []Node           `json:"nodes"`
	Edges    []Edge           `json:"edges"`
	Dropped  int              `json:"droppedConcepts"`
}

// NodeExpansion is the result of ExpandNode. Exactly one field is set.
type NodeExpansion struct {
	Source    *Expansion        `json:"source,omitempty"`
	Reasoning *common.Reasoning `json:"reasoning,omitempty"`
}

// ExpandSource re-runs single source extraction for req.Source. Repeated
// calls are allowed and yield fresh node ids each time.
func (g *GraphClient) ExpandSource(ctx context.Context, req SourceExpansionRequest) (*Expansion, error) {
	if err := validateExpansionSource(req.Source); err != nil {
		return nil, err
	}
	if g.extractor == nil {
		return nil, fmt.Errorf("%w: no concept extractor configured", common.ErrConfiguration)
	}

	level := density.ParseLevel(req.DensityLevel)
	cfg := density.ForLevel(level)

	ctx, span := g.tracer.Start(ctx, "graph.ExpandSource", trace.WithAttributes(
		attribute.String("source.url", req.Source.URL),
		attribute.String("density.level", string(level)),
	))
	defer span.End()

	concepts, dropped, err := g.extractFromSource(ctx, req.Source, cfg.SecondarySources.ConceptsPerSource)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, common.ErrConfiguration) || errors.Is(err, common.ErrCollaborator) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: concept extraction: %v", common.ErrCollaborator, err)
	}

	extracted := make([]extractedConcept, 0, len(concepts))
	for _, c := range concepts {
		extracted = append(extracted, extractedConcept{
			concept:        c,
			parentSourceID: req.Source.ID,
			parentNodeID:   req.SourceNodeID,
			citingBlockIDs: req.CitingBlockIDs,
		})
	}
	nodes, edges, err := conceptNodes(extracted)
	if err != nil {
		return nil, err
	}

	logger.Debug("[Graph] Expanded source", "url", req.Source.URL, "concepts", len(concepts), "dropped", dropped)

	return &Expansion{
		Level:    level,
		Concepts: concepts,
		Nodes:    nodes,
		Edges:    edges,
		Dropped:  dropped,
	}, nil
}

// ExpandReasoning asks for an expanded explanation of an answer block. No
// nodes are created.
func (g *GraphClient) ExpandReasoning(ctx context.Context, title string, text string) (*common.Reasoning, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text must not be empty", common.ErrValidation)
	}
	if g.reasoner == nil {
		return nil, fmt.Errorf("%w: no reasoning expander configured", common.ErrConfiguration)
	}

	ctx, span := g.tracer.Start(ctx, "graph.ExpandReasoning")
	defer span.End()

	res, err := g.reasoner.ExpandReasoning(ctx, strings.TrimSpace(title), strings.TrimSpace(text))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, common.ErrConfiguration) || errors.Is(err, common.ErrCollaborator) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reasoning expansion: %v", common.ErrCollaborator, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: reasoning expansion returned nothing", common.ErrCollaborator)
	}
	return res, nil
}

// ExpandNode expands a node of a delivered graph according to its type:
// direct sources get new concepts, answer blocks get expanded reasoning.
// Every other type yields common.ErrNotExpandable.
func (g *GraphClient) ExpandNode(ctx context.Context, node Node, level string) (*NodeExpansion, error) {
	switch d := node.Data.(type) {
	case DirectSourceData:
		exp, err := g.ExpandSource(ctx, SourceExpansionRequest{
			SourceNodeID: node.ID,
			Source: common.Source{
				ID:            d.SourceID,
				Title:         d.Title,
				URL:           d.URL,
				Snippet:       d.Snippet,
				FullText:      d.FullText,
				Score:         d.Score,
				Author:        d.Author,
				PublishedDate: d.PublishedDate,
			},
			CitingBlockIDs: d.CitedBy,
			DensityLevel:   level,
		})
		if err != nil {
			return nil, err
		}
		return &NodeExpansion{Source: exp}, nil
	case AnswerBlockData:
		title := node.Label
		if title == "" {
			title = d.BlockID
		}
		res, err := g.ExpandReasoning(ctx, title, d.Text)
		if err != nil {
			return nil, err
		}
		return &NodeExpansion{Reasoning: res}, nil
	case QuestionData, AnswerRootData, SecondarySourceData:
		return nil, fmt.Errorf("%w: %s", common.ErrNotExpandable, node.Type)
	default:
		return nil, fmt.Errorf("%w: unknown node data %T", common.ErrNotExpandable, node.Data)
	}
}

func validateExpansionSource(s common.Source) error {
	switch {
	case strings.TrimSpace(s.Title) == "":
		return fmt.Errorf("%w: title must not be empty", common.ErrValidation)
	case strings.TrimSpace(s.URL) == "":
		return fmt.Errorf("%w: url must not be empty", common.ErrValidation)
	case strings.TrimSpace(s.Content()) == "":
		return fmt.Errorf("%w: content must not be empty", common.ErrValidation)
	}
	return nil
}
