package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/docstack/internal/config"
	"github.com/kirillkom/docstack/internal/core/ports"
	"github.com/kirillkom/docstack/internal/core/usecase"
	"github.com/kirillkom/docstack/internal/infrastructure/chunking"
	"github.com/kirillkom/docstack/internal/infrastructure/extractor"
	"github.com/kirillkom/docstack/internal/infrastructure/extractor/image"
	"github.com/kirillkom/docstack/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docstack/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docstack/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/docstack/internal/infrastructure/extractor/web"
	"github.com/kirillkom/docstack/internal/infrastructure/extractor/word"
	"github.com/kirillkom/docstack/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docstack/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docstack/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docstack/internal/infrastructure/resilience"
	"github.com/kirillkom/docstack/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docstack/internal/infrastructure/storage/minio"
)

// App is the wired object graph shared by the api, worker and mcp
// binaries. Each binary picks the ports it serves and ignores the rest.
type App struct {
	Config config.Config

	Queue      ports.MessageQueue
	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor
	QueryUC    ports.DocumentQueryService
	ClassifyUC ports.FolderClassifier
	Reader     ports.DocumentReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	chunkStore := postgres.NewChunkRepository(db)
	conversations := postgres.NewConversationRepository(db)

	store, err := newObjectStorage(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// One executor covers every external dependency; breakers are keyed
	// per operation inside it.
	executor := resilience.NewExecutor(resilienceConfig(cfg))

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	client := ollama.New(cfg.OllamaBaseURL, cfg.GenModel, cfg.EmbedModel, cfg.VisionModel, executor)
	embedder := ollama.NewEmbedder(client)
	classifier := ollama.NewClassifier(client)
	generator := ollama.NewGenerator(client)
	vision := ollama.NewVision(client)

	extract := extractor.NewComposite(
		plaintext.NewExtractor(),
		pdf.NewExtractor(vision),
		word.NewExtractor(),
		spreadsheet.NewExtractor(),
		image.NewExtractor(vision),
		web.NewExtractor(),
	)
	chunker := chunking.NewSplitter(cfg.ChunkWords, cfg.ChunkOverlapWords)

	ingestUC := usecase.NewIngestUseCase(repo, store, queue)
	processUC := usecase.NewProcessDocumentUseCase(
		usecase.ProcessConfig{
			MaxDocumentChars:    cfg.MaxDocumentChars,
			ClassifySampleChars: cfg.ClassifySampleChars,
			EmbedBatchSize:      cfg.EmbedBatchSize,
		},
		repo, chunkStore, store, extract, classifier, chunker, embedder,
	)
	queryUC := usecase.NewQueryUseCase(
		usecase.RetrievalConfig{
			MinSimilarity:   cfg.MinSimilarity,
			MaxCandidates:   cfg.MaxCandidates,
			RerankThreshold: cfg.RerankThreshold,
			TopK:            cfg.RerankTopK,
		},
		chunkStore, conversations, embedder, generator,
	)
	classifyUC := usecase.NewClassifyUseCase(repo, classifier, cfg.ClassifySampleChars)

	return &App{
		Config: cfg,

		Queue:      queue,
		IngestUC:   ingestUC,
		ProcessUC:  processUC,
		QueryUC:    queryUC,
		ClassifyUC: classifyUC,
		Reader:     repo,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMinio:
		store, err := minio.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init minio storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure minio bucket: %w", err)
		}
		return store, nil
	default:
		store, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = cfg.RetryInitialBackoff.Std()
	out.RetryMaxBackoff = cfg.RetryMaxBackoff.Std()
	out.BreakerEnabled = cfg.BreakerEnabled
	return out
}
