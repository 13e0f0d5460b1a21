package graph

// NodeType is the discriminator of a graph node.
type NodeType string

const (
	NodeTypeQuestion        NodeType = "question"
	NodeTypeAnswerRoot      NodeType = "answer_root"
	NodeTypeAnswerBlock     NodeType = "answer_block"
	NodeTypeDirectSource    NodeType = "direct_source"
	NodeTypeSecondarySource NodeType = "secondary_source"
)

// Layers group nodes by their distance from the answer root.
const (
	LayerRoot      = 0
	LayerBlock     = 1
	LayerSource    = 2
	LayerSecondary = 3
)

// Relation is the tag of an edge.
type Relation string

const (
	RelationAnswers         Relation = "answers"
	RelationSupports        Relation = "supports"
	RelationUnderpins       Relation = "underpins"
	RelationSemanticRelated Relation = "semantic_related"
)

// Fixed node ids of layer 0.
const (
	QuestionNodeID   = "question"
	AnswerRootNodeID = "answer_root"
)

const defaultUnderpinsWeight = 0.5

// NodeData is the type specific payload of a Node. The set of
// implementations is closed; every variant maps to exactly one NodeType.
type NodeData interface {
	nodeKind() (NodeType, int)
}

// QuestionData is the payload of the question node.
type QuestionData struct {
	Text string `json:"text"`
}

// AnswerRootData is the payload of the answer root node.
type AnswerRootData struct {
	Text string `json:"text"`
}

// AnswerBlockData is the payload of an answer block node.
type AnswerBlockData struct {
	BlockID   string   `json:"blockId"`
	Kind      string   `json:"kind"`
	Text      string   `json:"text"`
	SourceIDs []string `json:"sourceIds"`
}

// DirectSourceData is the payload of a retrieved source cited by the answer.
type DirectSourceData struct {
	SourceID      string   `json:"sourceId"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Snippet       string   `json:"snippet,omitempty"`
	FullText      string   `json:"fullText,omitempty"`
	Score         float64  `json:"score"`
	Author        string   `json:"author,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
	CitedBy       []string `json:"citedBy"`
}

// SecondarySourceData is the payload of a concept extracted from a direct
// source.
type SecondarySourceData struct {
	Title          string   `json:"title"`
	Text           string   `json:"text"`
	ShortLabel     string   `json:"shortLabel"`
	Importance     *float64 `json:"importance,omitempty"`
	ParentSourceID string   `json:"parentSourceId"`
	ParentNodeID   string   `json:"parentNodeId,omitempty"`
	CitingBlockIDs []string `json:"citingBlockIds"`
}

func (QuestionData) nodeKind() (NodeType, int)        { return NodeTypeQuestion, LayerRoot }
func (AnswerRootData) nodeKind() (NodeType, int)      { return NodeTypeAnswerRoot, LayerRoot }
func (AnswerBlockData) nodeKind() (NodeType, int)     { return NodeTypeAnswerBlock, LayerBlock }
func (DirectSourceData) nodeKind() (NodeType, int)    { return NodeTypeDirectSource, LayerSource }
func (SecondarySourceData) nodeKind() (NodeType, int) { return NodeTypeSecondarySource, LayerSecondary }

// Node is a vertex of the evidence graph. Type and Layer always agree with
// Data; construct nodes with NewNode.
type Node struct {
	ID    string   `json:"id"`
	Type  NodeType `json:"type"`
	Label string   `json:"label"`
	Layer int      `json:"layer"`
	Data  NodeData `json:"data"`
}

// NewNode creates a node whose type and layer are derived from data.
func NewNode(id string, label string, data NodeData) Node {
	t, layer := data.nodeKind()
	return Node{
		ID:    id,
		Type:  t,
		Label: label,
		Layer: layer,
		Data:  data,
	}
}

// Edge is a directed, weighted connection between two nodes.
type Edge struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Relation Relation `json:"relation"`
	Weight   float64  `json:"weight"`
}

// BlockNodeID returns the node id of the answer block with the given id.
func BlockNodeID(blockID string) string { return "block-" + blockID }

// SourceNodeID returns the node id of the direct source with the given id.
func SourceNodeID(sourceID string) string { return "source-" + sourceID }

func clampWeight(w float64) float64 {
	if w != w || w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

func underpinsWeight(importance *float64) float64 {
	if importance == nil {
		return defaultUnderpinsWeight
	}
	return clampWeight(*importance)
}
