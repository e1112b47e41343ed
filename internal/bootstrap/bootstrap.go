package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finsightlab/equity-copilot/internal/config"
	"github.com/finsightlab/equity-copilot/internal/core/ports"
	"github.com/finsightlab/equity-copilot/internal/core/usecase"
	"github.com/finsightlab/equity-copilot/internal/infrastructure/llm/openai"
	"github.com/finsightlab/equity-copilot/internal/infrastructure/repository/sqlite"
	"github.com/finsightlab/equity-copilot/internal/infrastructure/resilience"
	"github.com/finsightlab/equity-copilot/internal/infrastructure/vector/qdrant"
	"github.com/finsightlab/equity-copilot/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	AskService ports.AskService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := sqlite.OpenDB(cfg.EquitiesDBPath)
	if err != nil {
		return nil, fmt.Errorf("open equities db: %w", err)
	}

	catalog := sqlite.NewCatalogRepository(db)
	companies, err := catalog.Companies(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load companies: %w", err)
	}
	aliases, err := catalog.Aliases(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load aliases: %w", err)
	}
	schemaLines, err := catalog.SchemaLines(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load equities schema: %w", err)
	}

	resolver := usecase.NewEntityResolver(companies, aliases, usecase.ResolverConfig{
		ConfidenceThreshold: cfg.EntityConfidenceThreshold,
		FuzzyMinScore:       cfg.EntityFuzzyMinScore,
		AmbiguityMargin:     cfg.EntityAmbiguityMargin,
		MaxEntities:         cfg.EntityMaxEntities,
	})

	// One attempt per upstream call: the pipeline degrades stage failures into
	// findings instead of retrying, so only the circuit breaker is active.
	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   true,
	})
	llmClient := openai.New(openai.Config{
		BaseURL:           cfg.LLMBaseURL,
		APIKey:            cfg.LLMAPIKey,
		ChatModel:         cfg.LLMChatModel,
		EmbedModel:        cfg.LLMEmbedModel,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
		Burst:             cfg.LLMBurst,
	}, executor, logger)
	classifier := openai.NewIntentClassifier(llmClient)
	sqlGen := openai.NewSQLGenerator(llmClient, schemaLines)
	composer := openai.NewComposer(llmClient)
	embedder := openai.NewEmbedder(llmClient)

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	retriever := usecase.NewRetriever(embedder, vectorIndex, usecase.RetrieverConfig{
		TopK:            cfg.RAGTopK,
		MaxSources:      cfg.RAGMaxSources,
		DedupSimilarity: cfg.RAGDedupSimilarity,
		MinSourceScore:  cfg.RAGMinScore,
		MaxSnippets:     cfg.RAGContextMaxSnippets,
		MaxSnippetChars: cfg.RAGContextMaxChars,
	})

	sqlExec, err := sqlite.NewGuardedExecutor(ctx, db, cfg.SQLPreviewLimit, cfg.SQLMaxLimit, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init guarded sql executor: %w", err)
	}

	askService := usecase.NewAskPipeline(
		classifier,
		resolver,
		sqlGen,
		sqlExec,
		retriever,
		composer,
		usecase.AskConfig{
			IntentOverrideThreshold: cfg.IntentOverrideThreshold,
			EntityNotFoundTemplate:  cfg.EntityNotFoundTemplate,
			MaxAnswerChars:          cfg.ComposerMaxAnswerChars,
			ComposerDebugFlags:      cfg.ComposerDebugFlagsEnabled,
			IncludeDebug:            cfg.APIDebugResponse,
		},
		logger,
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics.NewHTTPServerMetrics("api"),
		AskService: askService,

		closeFn: func() {
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
