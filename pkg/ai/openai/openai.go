package openai

import (
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/evidence-graph/pkg/ai"
	"github.com/OFFIS-RIT/evidence-graph/pkg/common"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

const (
	defaultTimeout        = 2 * time.Minute
	defaultMaxConcurrency = 6
)

// GraphOpenAIClient is a client for the OpenAI compatible chat and embedding
// endpoints used while assembling evidence graphs. Chat and embedding may
// point at different providers.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	embeddingModel string
	chatModel      string
	embeddingDim   int

	chatURL string
	timeout time.Duration

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for creating
// a new GraphOpenAIClient.
//
// ChatURL and EmbeddingURL may be left empty to use the public OpenAI API.
// An empty key leaves the corresponding client unconfigured; calls against
// it fail with common.ErrConfiguration.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel string
	ChatModel      string
	EmbeddingDim   int

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	Timeout               time.Duration
	MaxConcurrentRequests int64
}

// NewGraphOpenAIClient creates a client from params.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		ChatModel:      "gpt-4.1-mini",
//		EmbeddingKey:   os.Getenv("AI_EMBED_KEY"),
//		ChatKey:        os.Getenv("AI_CHAT_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = defaultMaxConcurrency
	}

	return &GraphOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		chatModel:      params.ChatModel,
		embeddingDim:   params.EmbeddingDim,

		chatURL: params.ChatURL,
		timeout: timeout,

		reqLock: semaphore.NewWeighted(maxReq),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func (c *GraphOpenAIClient) chatClient() (*openai.Client, error) {
	if c.ChatClient == nil {
		return nil, fmt.Errorf("%w: chat model is not configured", common.ErrConfiguration)
	}
	return c.ChatClient, nil
}

func (c *GraphOpenAIClient) embeddingClient() (*openai.Client, error) {
	if c.EmbeddingClient == nil {
		return nil, fmt.Errorf("%w: embedding model is not configured", common.ErrConfiguration)
	}
	return c.EmbeddingClient, nil
}
