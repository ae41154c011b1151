package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/config"
	"github.com/matthewtan01/pdf-rag/database"
	"github.com/matthewtan01/pdf-rag/service"
)

// llmProvider is a chat model that also embeds text.
type llmProvider interface {
	service.AIService
	database.Embedder
}

// application owns the long-lived state shared by the server and CLI.
type application struct {
	cfg         *config.Config
	logger      *zap.Logger
	history     *database.HistoryStore
	handle      *service.ConversationHandle
	fileService *service.FileService
	closers     []func() error
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{
		cfg:     cfg,
		logger:  logger,
		history: database.NewHistoryStore(),
		handle:  &service.ConversationHandle{},
	}

	provider, err := app.newProvider(ctx)
	if err != nil {
		return nil, err
	}

	indexer, err := app.newIndexer(provider)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	pipelineOpts := service.PipelineOptions{
		RetrievalTimeout:  cfg.Timeouts.Retrieval,
		GenerationTimeout: cfg.Timeouts.Generation,
		RetryAttempts:     cfg.Retry.MaxAttempts,
		RetryBaseDelay:    cfg.Retry.BaseDelay,
		Logger:            logger,
	}
	app.fileService = service.NewFileService(
		service.NewPDFService(nil, cfg.OCRFallback, logger),
		service.NewTextSplitter(cfg.Chunking),
		indexer,
		provider,
		app.history,
		app.handle,
		pipelineOpts,
		cfg.Timeouts.Indexing,
	)
	return app, nil
}

func (a *application) newProvider(ctx context.Context) (llmProvider, error) {
	switch a.cfg.Provider {
	case config.ProviderOpenAI:
		return service.NewOpenAIService(a.cfg.AIEndpoint, a.cfg.OpenAIAPIKey, a.cfg.Model, a.cfg.EmbeddingModel, a.logger), nil
	case config.ProviderGemini:
		gemini, err := service.NewGeminiService(ctx, a.cfg.GeminiKeys(), a.cfg.Model, a.cfg.EmbeddingModel, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gemini.Close)
		return gemini, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", a.cfg.Provider)
	}
}

func (a *application) newIndexer(embedder database.Embedder) (database.Indexer, error) {
	switch a.cfg.IndexBackend {
	case config.IndexBackendMemory:
		return database.NewMemoryIndexer(embedder, a.cfg.RetrievalTopK, a.logger), nil
	case config.IndexBackendWeaviate:
		return database.NewWeaviateIndexer(a.cfg.WeaviateStoreConfig, embedder, a.cfg.RetrievalTopK, a.logger)
	default:
		return nil, fmt.Errorf("unknown index backend %q", a.cfg.IndexBackend)
	}
}

// Close releases the active index and the provider clients.
func (a *application) Close(ctx context.Context) error {
	errs := []error{a.handle.Close(ctx)}
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}
