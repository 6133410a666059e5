// Package app wires the application's components together: configuration,
// logging, database pool and migrations, source and model clients, the
// ingest pipeline, retrieval, chat, and the change feed listener.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"docmirror/db"
	"docmirror/internal/chat"
	"docmirror/internal/checkpoint"
	"docmirror/internal/config"
	"docmirror/internal/couchdb"
	"docmirror/internal/database"
	"docmirror/internal/ingest"
	"docmirror/internal/listener"
	"docmirror/internal/llm"
	"docmirror/internal/log"
	"docmirror/internal/retrieval"
	"docmirror/internal/store"
	"docmirror/internal/views"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool        *pgxpool.Pool
	Source      *couchdb.Client
	LLM         *llm.Client
	Store       *store.Store
	Checkpoints *checkpoint.Store
	Pipeline    *ingest.Pipeline
	Retrieval   *retrieval.Engine
	Chat        *chat.Orchestrator
	Views       *views.Service
	Listener    *listener.Listener
}

// Setup loads configuration, runs migrations, and constructs every
// component. The returned App owns the database pool; call Close when done.
func Setup(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	source, err := couchdb.New(couchdb.Config{
		BaseURL:  cfg.CouchDBURL(),
		Database: cfg.CouchDBDatabase,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create source client: %w", err)
	}

	model, err := llm.New(llm.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: cfg.EmbeddingModel,
		ChatModel:      cfg.ChatModel,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	chunkStore := store.New(pool, logger)
	checkpoints := checkpoint.New(pool, logger)

	var chunker ingest.Chunker
	switch cfg.ChunkStrategy {
	case config.ChunkStrategyHeadings:
		chunker = ingest.NewHeadingChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	default:
		chunker = ingest.NewWordChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	}

	pipeline, err := ingest.New(ingest.Params{
		Store:    chunkStore,
		Resolver: couchdb.NewReconstructor(source, logger),
		Lister:   source,
		Chunker:  chunker,
		Embed:    model.EmbedText,
		Config: ingest.Config{
			BlogPrefix:      cfg.BlogPrefix,
			KBPrefix:        cfg.KBPrefix,
			PortfolioPrefix: cfg.PortfolioPrefix,
		},
		Logger: logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create ingest pipeline: %w", err)
	}

	engine := retrieval.NewEngine(chunkStore, model.EmbedText,
		retrieval.NewExpander(retrieval.DefaultRules()), cfg.EmbeddingDimension, logger)

	orchestrator := chat.New(engine, model.Model(), chat.Config{
		BaseSiteURL: cfg.BaseSiteURL,
	}, logger)

	connect := func(ctx context.Context, since string) (listener.ChangeIterator, error) {
		return source.Changes(ctx, since)
	}
	feed, err := listener.New(connect, pipeline, checkpoints, listener.Config{
		AllowedPrefixes: cfg.AllowedPrefixes(),
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		Source:      source,
		LLM:         model,
		Store:       chunkStore,
		Checkpoints: checkpoints,
		Pipeline:    pipeline,
		Retrieval:   engine,
		Chat:        orchestrator,
		Views:       views.New(pool, logger),
		Listener:    feed,
	}, nil
}

// Close releases the App's resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
