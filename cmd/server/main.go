package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/evidence-graph/internal/observability"
	"github.com/OFFIS-RIT/evidence-graph/internal/server"
	mid "github.com/OFFIS-RIT/evidence-graph/internal/server/middleware"
	"github.com/OFFIS-RIT/evidence-graph/internal/util"
	"github.com/OFFIS-RIT/evidence-graph/pkg/ai"
	oai "github.com/OFFIS-RIT/evidence-graph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/evidence-graph/pkg/ai/openai"
	"github.com/OFFIS-RIT/evidence-graph/pkg/graph"
	"github.com/OFFIS-RIT/evidence-graph/pkg/loader"
	"github.com/OFFIS-RIT/evidence-graph/pkg/loader/web"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger/console"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger/jsonlog"
	"github.com/OFFIS-RIT/evidence-graph/pkg/progress"
	"github.com/OFFIS-RIT/evidence-graph/pkg/search"
)

var version = "dev"

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	if util.GetEnv("LOG_FORMAT") == "json" {
		jsonLogger, err := jsonlog.NewJSONLogger(jsonlog.JSONLoggerParams{
			Debug:   debug,
			Service: "evidence-graph",
		})
		if err != nil {
			panic(err)
		}
		logger.Init(jsonLogger)
	} else {
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug: debug,
		}))
	}
	defer logger.Sync()

	// tracing
	shutdownOTel := observability.InitOTel(ctx, observability.Config{
		Enabled:     util.GetEnvBool("OTEL_ENABLED", false),
		ServiceName: util.GetEnvString("OTEL_SERVICE_NAME", "evidence-graph"),
		Environment: util.GetEnv("OTEL_ENVIRONMENT"),
		Version:     version,
		Endpoint:    util.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Headers:     util.GetEnv("OTEL_EXPORTER_OTLP_HEADERS"),
		Insecure:    util.GetEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		SampleRatio: util.GetEnvNumeric("OTEL_SAMPLE_RATIO", 1),
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctx); err != nil {
			logger.Warn("Failed to flush traces", "err", err)
		}
	}()

	// GraphAiClient
	aiClient := newAIClient()
	research := ai.NewResearchClient(ai.NewResearchClientParams{
		Client:       aiClient,
		MaxRetries:   util.GetEnvInt("AI_MAX_RETRIES", 2),
		SourceTokens: util.GetEnvInt("AI_SOURCE_TOKENS", 1500),
	})

	// retrieval
	var pages loader.PageLoader
	if util.GetEnvBool("WEB_FETCH_FALLBACK", true) {
		pages = web.NewWebPageLoader(web.NewWebPageLoaderParams{})
	}
	exa := search.NewExaClient(search.NewExaClientParams{
		BaseURL:       util.GetEnv("EXA_URL"),
		APIKey:        util.GetEnv("EXA_API_KEY"),
		MaxCharacters: util.GetEnvInt("EXA_MAX_CHARACTERS", 4000),
		Pages:         pages,
	})
	if util.GetEnv("EXA_API_KEY") == "" {
		logger.Warn("EXA_API_KEY is not set, graph builds will fail")
	}

	tracker := progress.NewTracker(progress.TrackerParams{
		SweepInterval: util.GetEnvDuration("PROGRESS_SWEEP_INTERVAL", progress.DefaultSweepInterval),
		Retention:     util.GetEnvDuration("PROGRESS_RETENTION", progress.DefaultRetention),
	})

	graphClient, err := graph.NewGraphClient(graph.NewGraphClientParams{
		Retriever:          exa,
		Answers:            research,
		Extractor:          research,
		Embedder:           research,
		Reasoner:           research,
		Progress:           tracker,
		ParallelAiRequests: util.GetEnvInt("AI_PARALLEL_REQ", 6),
	})
	if err != nil {
		logger.Fatal("Could not create graph client", "err", err)
	}

	err = server.Run(ctx, &mid.App{Graph: graphClient, Tracker: tracker}, server.Config{
		Port:   util.GetEnvString("PORT", "8080"),
		APIKey: util.GetEnv("API_KEY"),
	})
	if err != nil {
		logger.Error("Server stopped with error", "err", err)
	}
}

func newAIClient() ai.GraphAIClient {
	timeout := time.Duration(util.GetEnvInt("AI_TIMEOUT_MIN", 0)) * time.Minute
	maxReq := int64(util.GetEnvInt("AI_PARALLEL_REQ", 6))

	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingDim:   util.GetEnvInt("AI_EMBED_DIM", 0),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			Timeout:               timeout,
			MaxConcurrentRequests: maxReq,
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingDim:   util.GetEnvInt("AI_EMBED_DIM", 0),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			Timeout:               timeout,
			MaxConcurrentRequests: maxReq,
		})
	}
}
