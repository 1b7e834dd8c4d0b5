package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	trolyindex "github.com/mhrlife/troly-index"
	"github.com/mhrlife/troly-index/config"
	"github.com/mhrlife/troly-index/embedding"
	"github.com/mhrlife/troly-index/indexer"
	"github.com/mhrlife/troly-index/tracing"
	"github.com/mhrlife/troly-index/vectordb"
)

// app is the state shared by every command, built once in setup.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	client *trolyindex.Client
	tracer *tracing.OTELLangfuseTracer
}

var state *app

func setup(cmd *cobra.Command) error {
	if err := config.LoadEnv(); err != nil {
		return errors.Wrap(err, "failed to load .env")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if backend != "" {
		cfg.Embedding.Backend = backend
	}
	if collection != "" {
		cfg.Store.Collection = collection
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	tracer, err := tracing.NewOTELLangfuseTracer(tracing.LangfuseConfig{
		SecretKey:   cfg.Tracing.LangfuseSecretKey,
		PublicKey:   cfg.Tracing.LangfusePublicKey,
		Host:        cfg.Tracing.LangfuseHost,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		return errors.Wrap(err, "failed to set up tracing")
	}
	if tracer.IsEnabled() {
		logger.Debug("Exporting traces to Langfuse", "host", cfg.Tracing.LangfuseHost)
	}

	state = &app{
		cfg:    cfg,
		logger: logger,
		client: trolyindex.NewClient(
			trolyindex.WithAPIKey(cfg.Embedding.OpenAIAPIKey),
			trolyindex.WithBaseURL(cfg.Embedding.OpenAIBaseURL),
			trolyindex.WithDefaultModel(cfg.Embedding.OpenAIModel),
			trolyindex.WithLogger(logger),
			trolyindex.WithLogLevel(cfg.SlogLevel()),
		),
		tracer: tracer,
	}

	return nil
}

func teardown(ctx context.Context) error {
	if state == nil || state.tracer == nil {
		return nil
	}

	return state.tracer.Shutdown(context.WithoutCancel(ctx))
}

// embedder builds the embedding client for the configured backend.
func (a *app) embedder() (embedding.Client, error) {
	return embedding.New(a.cfg.Embedding, a.client, a.logger)
}

// embedderFor picks the backend that built name when the user did not choose
// one, so queries use the same model as the index.
func (a *app) embedderFor(name string) (embedding.Client, error) {
	cfg := a.cfg.Embedding
	if backend == "" {
		if guessed, ok := config.BackendForCollection(name); ok {
			cfg.Backend = guessed
		}
	}

	return embedding.New(cfg, a.client, a.logger)
}

func closeEmbedder(client embedding.Client) {
	if closer, ok := client.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// openStore opens the collection on the configured store backend. The
// returned func releases the connection.
func (a *app) openStore(name string, emb embedding.Client) (vectordb.Client, func(), error) {
	opts := []vectordb.Option{
		vectordb.WithBatchSize(a.cfg.Embedding.BatchSize),
		vectordb.WithLogger(a.logger),
	}

	switch a.cfg.Store.Backend {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Store.RedisAddr,
			Protocol: 2,
		})

		return vectordb.NewRedisVectorDB(name, emb, rdb, opts...), func() { _ = rdb.Close() }, nil

	default:
		db, err := vectordb.OpenSQLite(a.cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}

		return vectordb.NewSQLiteVectorDB(db, name, emb, opts...), func() { _ = db.Close() }, nil
	}
}

func (a *app) openSQLite() (*sql.DB, error) {
	if a.cfg.Store.Backend != config.StoreSQLite {
		return nil, fmt.Errorf("listing collections needs the %s store, not %s", config.StoreSQLite, a.cfg.Store.Backend)
	}

	return vectordb.OpenSQLite(a.cfg.Store.Path)
}

// indexConfig is the config CreateIndex gets. Redis cannot infer dimensions,
// so when none are configured one sample text is embedded to learn them.
func (a *app) indexConfig(ctx context.Context, emb embedding.Client) (vectordb.IndexConfig, error) {
	cfg := vectordb.IndexConfig{
		Dimensions:     a.cfg.Store.Dimensions,
		DistanceMetric: a.cfg.Store.DistanceMetric,
		FilterFields:   indexer.FilterFields,
	}

	if cfg.Dimensions == 0 && a.cfg.Store.Backend == config.StoreRedis {
		vec, err := embedding.EmbedText(ctx, emb, "Điều 1")
		if err != nil {
			return cfg, errors.Wrap(err, "failed to detect embedding dimensions")
		}
		cfg.Dimensions = len(vec)
	}

	return cfg, nil
}

// openIndex opens the collection and makes it ready for reads.
func (a *app) openIndex(ctx context.Context, name string, emb embedding.Client) (vectordb.Client, func(), error) {
	store, closeStore, err := a.openStore(name, emb)
	if err != nil {
		return nil, nil, err
	}

	indexCfg, err := a.indexConfig(ctx, emb)
	if err == nil {
		err = store.CreateIndex(ctx, indexCfg)
	}
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	return store, closeStore, nil
}
