package cli

import (
	"fmt"
	"time"

	"docchat/config"
	"docchat/internal/adapter/cache"
	"docchat/internal/adapter/chunker"
	"docchat/internal/adapter/embedding"
	"docchat/internal/adapter/extractor"
	"docchat/internal/adapter/llm"
	"docchat/internal/adapter/store"
	"docchat/internal/port"
	"docchat/internal/retry"
	"docchat/internal/usecase"
)

// app wires the stores, adapters and use cases for a command invocation.
type app struct {
	cfg           *config.Config
	store         *store.BoltStore
	vectors       *store.BoltVectorStore
	ingestor      *usecase.Ingestor
	retriever     port.Retriever
	conversations *usecase.Conversations
	asker         *usecase.AskService
}

// newApp opens the database and constructs the pipeline. The generator is
// only dialed when withGenerator is set, so ingest-only commands work
// without a generation API key.
func newApp(cfg *config.Config, dir string, withGenerator bool) (*app, error) {
	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.NewBoltStore(config.StoreDBPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	// The index dimension follows the embedder, declared once at startup.
	vectors, err := store.NewBoltVectorStore(st.DB(), embedder.Dimension())
	if err != nil {
		st.Close()
		return nil, err
	}

	textChunker, err := chunker.New(cfg.Chunking.MaxChars, cfg.Chunking.OverlapChars)
	if err != nil {
		st.Close()
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
	}

	ingestor := usecase.NewIngestor(
		st, vectors, textChunker, embedder, extractor.NewPlainText(), policy, cfg.Embedding.BatchSize)

	queryCache := cache.NewQueryCache(
		cfg.Retrieval.CacheSize, time.Duration(cfg.Retrieval.CacheTTLSeconds)*time.Second)
	ingestor.OnWrite(queryCache.Invalidate)

	retriever := cache.NewCachedRetriever(
		usecase.NewRetriever(st, vectors, embedder, policy, cfg.Retrieval.MinScore),
		queryCache)

	conversations := usecase.NewConversations(st)

	a := &app{
		cfg:           cfg,
		store:         st,
		vectors:       vectors,
		ingestor:      ingestor,
		retriever:     retriever,
		conversations: conversations,
	}

	if withGenerator {
		generator, err := llm.NewClient(llm.Options{
			Provider:    cfg.Generation.Provider,
			Model:       cfg.Generation.Model,
			BaseURL:     cfg.Generation.BaseURL,
			APIKeyEnv:   cfg.Generation.APIKeyEnv,
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
			Stream:      cfg.Generation.Stream,
		})
		if err != nil {
			st.Close()
			return nil, err
		}

		assembler := usecase.NewAssembler(
			st, cfg.Assembly.Preamble, cfg.Assembly.CharBudget, cfg.Assembly.MaxHistoryTurns)

		a.asker = usecase.NewAskService(
			retriever, generator, assembler, conversations, st, policy,
			cfg.Retrieval.TopK, cfg.Assembly.MaxHistoryTurns, cfg.Generation.Fallback)
	}

	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimension), nil
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL)
	case "openai", "":
		if cfg.Embedding.BaseURL != "" {
			return embedding.NewOpenAICompatibleEmbedder(
				cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL)
		}
		return embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}
