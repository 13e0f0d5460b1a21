package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/evidence-graph/internal/util"
	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"
)

const (
	defaultMaxRetries   = 2
	defaultSourceTokens = 1500
	defaultAnswerBlocks = 5
)

// ResearchClient turns a GraphAIClient into the answer, concept, reasoning
// and embedding collaborators of the evidence graph.
//
// A ResearchClient should be created using NewResearchClient.
type ResearchClient struct {
	client       GraphAIClient
	maxRetries   int
	sourceTokens int
	answerBlocks int
}

// NewResearchClientParams configures a ResearchClient.
//
// SourceTokens caps how much of each source's text ends up in a prompt.
// MaxRetries is the number of attempts per model call. AnswerBlocks is the
// number of blocks the model is asked to split an answer into.
type NewResearchClientParams struct {
	Client       GraphAIClient
	MaxRetries   int
	SourceTokens int
	AnswerBlocks int
}

// NewResearchClient creates a ResearchClient. Zero values select defaults.
func NewResearchClient(params NewResearchClientParams) *ResearchClient {
	retries := params.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	tokens := params.SourceTokens
	if tokens <= 0 {
		tokens = defaultSourceTokens
	}
	blocks := params.AnswerBlocks
	if blocks <= 0 {
		blocks = defaultAnswerBlocks
	}
	return &ResearchClient{
		client:       params.Client,
		maxRetries:   retries,
		sourceTokens: tokens,
		answerBlocks: blocks,
	}
}

type answerBlockPayload struct {
	ID        string   `json:"id" jsonschema:"description=Block id such as b1"`
	Type      string   `json:"type" jsonschema:"enum=paragraph,enum=bullet"`
	Text      string   `json:"text"`
	SourceIDs []string `json:"source_ids"`
}

type answerPayload struct {
	Blocks []answerBlockPayload `json:"blocks"`
}

// GenerateAnswer produces a cited answer built only from sources. The model
// is asked for structured blocks first; if that fails it falls back to cited
// markdown which is split into blocks locally.
func (r *ResearchClient) GenerateAnswer(
	ctx context.Context,
	question string,
	sources []common.Source,
) (*common.Answer, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: no chat model configured", common.ErrConfiguration)
	}
	targetBlocks := r.answerBlocks
	sourceList := r.formatSources(sources)

	prompt := fmt.Sprintf(AnswerPrompt, sourceList, targetBlocks, question)
	payload, err := util.RetryWithContext(ctx, r.maxRetries, func(ctx context.Context) (answerPayload, error) {
		var out answerPayload
		err := r.client.GenerateCompletionWithFormat(ctx, "answer", "Cited answer split into blocks", prompt, &out)
		return out, permanentOnConfig(err)
	})
	if err == nil && len(payload.Blocks) > 0 {
		return answerFromPayload(payload), nil
	}
	if err != nil && (errors.Is(err, common.ErrConfiguration) || ctx.Err() != nil) {
		return nil, wrapCollaborator("answer generation", err)
	}
	logger.Warn("[AI] Structured answer failed, falling back to markdown", "err", err)

	prompt = fmt.Sprintf(AnswerMarkdownPrompt, sourceList, targetBlocks, question)
	markdown, err := util.RetryWithContext(ctx, r.maxRetries, func(ctx context.Context) (string, error) {
		res, err := r.client.GenerateCompletion(ctx, prompt)
		return res, permanentOnConfig(err)
	})
	if err != nil {
		return nil, wrapCollaborator("answer generation", err)
	}

	answer := ParseMarkdownAnswer(markdown)
	if len(answer.Blocks) == 0 {
		return nil, fmt.Errorf("%w: answer generation returned no content", common.ErrCollaborator)
	}
	return answer, nil
}

// ExtractConcepts asks the model for count concepts of source. The result is
// returned loosely typed; both {"concepts": [...]} and a bare array are
// accepted and non-object items are kept as empty concepts so validation can
// count them as dropped.
func (r *ResearchClient) ExtractConcepts(
	ctx context.Context,
	source common.Source,
	count int,
) ([]common.RawConcept, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: no chat model configured", common.ErrConfiguration)
	}
	content := strings.TrimSpace(util.SanitizeText(source.Content()))
	if content == "" {
		content = source.Title
	}
	content = TruncateToTokens(content, r.sourceTokens)

	prompt := fmt.Sprintf(ConceptPrompt, source.Title, source.URL, content, count)
	raw, err := util.RetryWithContext(ctx, r.maxRetries, func(ctx context.Context) ([]common.RawConcept, error) {
		res, err := r.client.GenerateCompletion(ctx, prompt)
		if err != nil {
			return nil, permanentOnConfig(err)
		}
		return ParseRawConcepts(res)
	})
	if err != nil {
		return nil, wrapCollaborator("concept extraction", err)
	}
	return raw, nil
}

// ParseRawConcepts decodes a model response into loosely typed concepts.
func ParseRawConcepts(response string) ([]common.RawConcept, error) {
	var decoded any
	if err := UnmarshalFlexible(response, &decoded); err != nil {
		return nil, err
	}

	var items []any
	switch v := decoded.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["concepts"].([]any)
		if !ok {
			return nil, errors.New("response has no concepts array")
		}
		items = list
	default:
		return nil, fmt.Errorf("unexpected concept response of type %T", decoded)
	}

	out := make([]common.RawConcept, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, common.RawConcept{})
			continue
		}
		out = append(out, common.RawConcept(obj))
	}
	return out, nil
}

// ExpandReasoning explains the reasoning behind one answer block.
func (r *ResearchClient) ExpandReasoning(
	ctx context.Context,
	title string,
	text string,
) (*common.Reasoning, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: no chat model configured", common.ErrConfiguration)
	}

	prompt := fmt.Sprintf(ReasoningPrompt, title, TruncateToTokens(text, r.sourceTokens))
	res, err := util.RetryWithContext(ctx, r.maxRetries, func(ctx context.Context) (string, error) {
		res, err := r.client.GenerateCompletion(ctx, prompt)
		return res, permanentOnConfig(err)
	})
	if err != nil {
		return nil, wrapCollaborator("reasoning expansion", err)
	}

	expanded := strings.TrimSpace(res)
	if expanded == "" {
		return nil, fmt.Errorf("%w: reasoning expansion returned no content", common.ErrCollaborator)
	}
	return &common.Reasoning{
		ExpandedText: expanded,
		Meta: map[string]any{
			"words":  len(strings.Fields(expanded)),
			"tokens": CountTokens(expanded),
		},
	}, nil
}

// GenerateEmbedding forwards to the underlying client with retries.
func (r *ResearchClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: no embedding model configured", common.ErrConfiguration)
	}
	vec, err := util.RetryWithContext(ctx, r.maxRetries, func(ctx context.Context) ([]float32, error) {
		res, err := r.client.GenerateEmbedding(ctx, input)
		return res, permanentOnConfig(err)
	})
	if err != nil {
		return nil, wrapCollaborator("embedding", err)
	}
	return vec, nil
}

// Metrics returns the token usage of the underlying client.
func (r *ResearchClient) Metrics() ModelMetrics {
	if r.client == nil {
		return ModelMetrics{}
	}
	return r.client.GetMetrics()
}

func (r *ResearchClient) formatSources(sources []common.Source) string {
	var b strings.Builder
	for _, s := range sources {
		text := strings.TrimSpace(util.SanitizeText(s.Content()))
		text = TruncateToTokens(text, r.sourceTokens)
		fmt.Fprintf(&b, "[%s] %s\nURL: %s\n%s\n\n", s.ID, s.Title, s.URL, text)
	}
	return strings.TrimSpace(b.String())
}

func answerFromPayload(p answerPayload) *common.Answer {
	answer := &common.Answer{Blocks: make([]common.AnswerBlock, 0, len(p.Blocks))}
	for _, b := range p.Blocks {
		kind := common.BlockKindParagraph
		if strings.EqualFold(strings.TrimSpace(b.Type), string(common.BlockKindBullet)) {
			kind = common.BlockKindBullet
		}
		answer.Blocks = append(answer.Blocks, common.AnswerBlock{
			ID:        strings.TrimSpace(b.ID),
			Type:      kind,
			Text:      util.StripCitations(util.NormalizeCitations(b.Text)),
			SourceIDs: b.SourceIDs,
		})
	}
	answer.Text = joinBlocks(answer.Blocks)
	return answer
}

// ParseMarkdownAnswer splits cited markdown into answer blocks. Paragraphs are
// separated by blank lines; lines starting with "- ", "* " or "1. " become
// bullet blocks. Citation markers are moved into SourceIDs.
func ParseMarkdownAnswer(markdown string) *common.Answer {
	markdown = util.NormalizeCitations(markdown)
	answer := &common.Answer{}

	var para []string
	flush := func() {
		if len(para) == 0 {
			return
		}
		appendBlock(answer, common.BlockKindParagraph, strings.Join(para, " "))
		para = nil
	}

	for line := range strings.SplitSeq(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if item, ok := bulletItem(trimmed); ok {
			flush()
			appendBlock(answer, common.BlockKindBullet, item)
			continue
		}
		para = append(para, trimmed)
	}
	flush()

	answer.Text = joinBlocks(answer.Blocks)
	return answer
}

func appendBlock(answer *common.Answer, kind common.BlockKind, raw string) {
	text := util.StripCitations(raw)
	if text == "" {
		return
	}
	answer.Blocks = append(answer.Blocks, common.AnswerBlock{
		ID:        "b" + strconv.Itoa(len(answer.Blocks)+1),
		Type:      kind,
		Text:      text,
		SourceIDs: util.CitationIDs(raw),
	})
}

func bulletItem(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	dot := strings.Index(line, ". ")
	if dot <= 0 || dot > 3 {
		return "", false
	}
	if _, err := strconv.Atoi(line[:dot]); err != nil {
		return "", false
	}
	return strings.TrimSpace(line[dot+2:]), true
}

func joinBlocks(blocks []common.AnswerBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == common.BlockKindBullet {
			parts = append(parts, "- "+b.Text)
			continue
		}
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n\n")
}

func permanentOnConfig(err error) error {
	if err != nil && errors.Is(err, common.ErrConfiguration) {
		return util.Permanent(err)
	}
	return err
}

func wrapCollaborator(op string, err error) error {
	if errors.Is(err, common.ErrConfiguration) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrCollaborator, op, err)
}
