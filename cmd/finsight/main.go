package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"finsight/internal/config"
	"finsight/internal/ingest"
	"finsight/internal/rag/embeddings"
	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/llms"
	"finsight/internal/rag/loaders"
	"finsight/internal/rag/pipeline"
	"finsight/internal/rag/schema"
	"finsight/internal/rag/splitters"
	"finsight/internal/rag/storages/docstore"
	"finsight/internal/rag/storages/vectorstore"
	"finsight/internal/server"
	"finsight/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	ingestDir := flag.String("ingest-dir", "", "optional directory of files to ingest at startup")
	ingestSource := flag.String("ingest-source", string(schema.SourceFiling), "source type tag for files ingested at startup")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.Log.Level))
	appLogger := logger.New("finsight")
	appLogger.Info("starting finsight")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder, err := buildEmbedder(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to build embedder")
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to build generator")
	}

	index, saveSnapshot, err := buildVectorIndex(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to build vector index")
	}

	store, closeStore, err := buildDocStore(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to build doc store")
	}

	splitter, err := splitters.NewSentenceSplitter(
		cfg.Chunking.TargetTokens,
		cfg.Chunking.OverlapTokens,
		cfg.Chunking.BoundaryTokens,
	)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to build splitter")
	}

	indexing := pipeline.NewIndexingPipeline(splitter, embedder, store, index, appLogger)
	retriever := pipeline.NewRetriever(embedder, index, store, pipeline.RetrievalPolicy{
		TopK:                 cfg.Retrieval.TopK,
		MinScore:             cfg.Retrieval.MinScore,
		OverFetchFactor:      cfg.Retrieval.OverFetchFactor,
		DedupOverlapFraction: cfg.Retrieval.DedupOverlapFraction,
	}, appLogger)
	assembler := pipeline.NewContextAssembler(splitter, cfg.Assembly.BudgetTokens, appLogger)
	qa := pipeline.NewQAPipeline(generator, appLogger)

	backoff, _ := cfg.Retry.Backoff()
	embedTimeout, _ := cfg.Embedding.CallTimeout()
	generateTimeout, _ := cfg.Generation.CallTimeout()
	coordinator := pipeline.NewCoordinator(retriever, assembler, qa, index, pipeline.CoordinatorPolicy{
		RetryAttempts:   cfg.Retry.Attempts,
		InitialBackoff:  backoff,
		RetrieveTimeout: embedTimeout,
		GenerateTimeout: generateTimeout,
		MinEvidence:     cfg.Retrieval.MinEvidence,
	}, appLogger)

	if *ingestDir != "" {
		if err := ingestDirectory(ctx, *ingestDir, schema.SourceType(*ingestSource), indexing, appLogger); err != nil {
			appLogger.WithError(err).Fatal("startup ingestion failed")
		}
	}

	var consumer *ingest.DocumentConsumer
	if cfg.Kafka.Enabled {
		consumer = ingest.NewDocumentConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, indexing, appLogger)
		consumer.Start(ctx)
		appLogger.Info("kafka document consumer started")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	server.RegisterRoutes(router, server.NewAPI(coordinator, indexing, appLogger))

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}
	go func() {
		appLogger.Info("http server listening on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("http server shutdown failed")
	}

	cancel()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			appLogger.WithError(err).Error("failed to close kafka consumer")
		}
	}
	if saveSnapshot != nil {
		if err := saveSnapshot(); err != nil {
			appLogger.WithError(err).Error("failed to save index snapshot")
		}
	}
	if closeStore != nil {
		if err := closeStore(shutdownCtx); err != nil {
			appLogger.WithError(err).Error("failed to close doc store")
		}
	}
	appLogger.Info("stopped")
}

// buildEmbedder selects the embedding backend and, when enabled, wraps it
// in the Redis cache.
func buildEmbedder(ctx context.Context, cfg *config.Config, log *logger.Logger) (interfaces.Embedder, error) {
	m := cfg.Embedding
	var embedder interfaces.Embedder
	var err error
	switch m.Provider {
	case "ollama":
		embedder, err = embeddings.NewOllamaEmbedder(m.Model, m.BaseURL, m.Dimension)
	case "openai":
		embedder, err = embeddings.NewOpenAIEmbedder(m.APIKey, m.Model, m.BaseURL, m.Dimension)
	case "genai":
		embedder, err = embeddings.NewGenaiEmbedder(ctx, m.APIKey, m.Model, m.Dimension)
	case "static":
		embedder = embeddings.NewStaticEmbedder(m.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", m.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		ttl, err := cfg.Redis.CacheTTL()
		if err != nil {
			return nil, err
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		embedder = embeddings.NewCachedEmbedder(embedder, rdb, m.Model, ttl, log)
		log.Info("embedding cache enabled")
	}
	return embedder, nil
}

func buildGenerator(cfg *config.Config) (interfaces.Generator, error) {
	m := cfg.Generation
	switch m.Provider {
	case "ollama":
		return llms.NewOllamaGenerator(m.Model, m.BaseURL)
	case "openai":
		return llms.NewOpenAIGenerator(m.APIKey, m.Model, m.BaseURL), nil
	case "static":
		return llms.NewStaticGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", m.Provider)
	}
}

// buildVectorIndex returns the index plus an optional snapshot-save hook
// run at shutdown (memory provider only).
func buildVectorIndex(ctx context.Context, cfg *config.Config, log *logger.Logger) (interfaces.VectorIndex, func() error, error) {
	dim := cfg.Embedding.Dimension
	switch cfg.VectorStore.Provider {
	case "memory":
		path := cfg.VectorStore.SnapshotPath
		if path != "" {
			if _, err := os.Stat(path); err == nil {
				index, err := vectorstore.LoadFile(path, dim)
				if err != nil {
					return nil, nil, err
				}
				log.WithField("path", path).Info("restored index snapshot")
				return index, func() error { return index.SaveFile(path) }, nil
			}
		}
		index, err := vectorstore.NewMemoryIndex(dim)
		if err != nil {
			return nil, nil, err
		}
		if path == "" {
			return index, nil, nil
		}
		return index, func() error { return index.SaveFile(path) }, nil
	case "milvus":
		index, err := vectorstore.NewMilvusIndex(ctx, cfg.VectorStore.Milvus.Address, cfg.VectorStore.Milvus.Collection, dim, log)
		return index, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown vector store provider %q", cfg.VectorStore.Provider)
	}
}

// buildDocStore returns the chunk store plus an optional close hook.
func buildDocStore(ctx context.Context, cfg *config.Config) (interfaces.DocStore, func(context.Context) error, error) {
	switch cfg.DocStore.Provider {
	case "memory":
		return docstore.NewInMemoryDocStore(), nil, nil
	case "mongo":
		client, err := mongo.Connect(ctx, mongoopts.Client().ApplyURI(cfg.DocStore.Mongo.Address))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
		}
		db := client.Database(cfg.DocStore.Mongo.Database)
		store, err := docstore.NewMongoDocStore(ctx, db, cfg.DocStore.Mongo.Collection)
		if err != nil {
			return nil, nil, err
		}
		return store, client.Disconnect, nil
	default:
		return nil, nil, fmt.Errorf("unknown doc store provider %q", cfg.DocStore.Provider)
	}
}

// ingestDirectory loads every regular file under dir through the loader
// registry and indexes the resulting documents.
func ingestDirectory(ctx context.Context, dir string, sourceType schema.SourceType, indexing *pipeline.IndexingPipeline, log *logger.Logger) error {
	if !sourceType.Valid() {
		return fmt.Errorf("unknown source type %q", sourceType)
	}
	registry := loaders.NewRegistry(sourceType)

	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		docs, err := registry.Load(ctx, path)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("skipping file")
			return nil
		}
		n, err := indexing.IngestBatch(ctx, docs)
		if err != nil {
			return err
		}
		log.WithPayload(map[string]interface{}{
			"path":   path,
			"chunks": n,
		}).Info("file ingested")
		return nil
	})
}
