// Package bootstrap assembles the batch pipeline and its backing services
// from configuration. The API, the worker and the CLI share it.
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"recreator/internal/adapter/repo"
	"recreator/internal/batch"
	"recreator/internal/domain"
	"recreator/internal/infra"
	"recreator/internal/infra/credentials"
	"recreator/internal/providers/seedance"
	"recreator/internal/storage"
)

// Runtime holds everything a binary needs to run batches.
type Runtime struct {
	Store    domain.BatchStore
	Pipeline *batch.Pipeline
	Storage  storage.Store
	// StaticDir is the local publish root, empty when publishing to S3.
	StaticDir string

	pool    *pgxpool.Pool
	rdb     *redis.Client
	closers []func()
}

// New connects the configured state store, resolves the video API key and
// wires the pipeline.
func New(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Runtime, error) {
	rt := &Runtime{}
	if err := rt.connect(ctx, cfg, logger); err != nil {
		rt.Close()
		return nil, err
	}

	apiKey, err := credentials.NewStore(rt.SQL(logger)).ResolveVideoAPIKey(ctx, cfg.VideoAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: failed to load video api key from store")
	}
	client, err := seedance.NewClient(seedance.Options{
		APIKey:         apiKey,
		BaseURL:        cfg.VideoAPIBase,
		Model:          cfg.VideoModel,
		Logger:         &logger,
		RequestTimeout: cfg.SubmitTimeout,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap: video client: %w", err)
	}
	if !client.HasCredentials() {
		logger.Warn().Msg("bootstrap: video api key missing, batches will fail with a configuration error")
	}

	if err := rt.openStorage(ctx, cfg); err != nil {
		rt.Close()
		return nil, err
	}
	if fs, ok := rt.Storage.(*storage.FileStore); ok {
		if err := fs.Public(); err != nil {
			logger.Warn().Err(err).Msg("bootstrap: inline reference images will be skipped, set STORAGE_BASE_URL to a public address or configure S3")
		}
	}

	rt.Pipeline, err = batch.NewPipeline(batch.Deps{
		Store:     rt.Store,
		Service:   client,
		Uploader:  rt.Storage,
		Publisher: rt.Storage,
		Logger:    &logger,
	}, batch.OptionsFromConfig(cfg))
	if err != nil {
		rt.Close()
		return nil, err
	}
	logger.Info().
		Str("state_store", cfg.StateStore).
		Bool("s3", cfg.S3Enabled()).
		Msg("bootstrap: pipeline ready")
	return rt, nil
}

func (rt *Runtime) connect(ctx context.Context, cfg *infra.Config, logger infra.Logger) error {
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		rt.pool = pool
		rt.closers = append(rt.closers, pool.Close)
	}

	switch cfg.StateStore {
	case infra.StateStorePostgres:
		pg := repo.NewBatchRepository(infra.NewSQLRunner(rt.pool, logger))
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		rt.Store = pg
	case infra.StateStoreRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("bootstrap: parse redis url: %w", err)
		}
		rt.rdb = redis.NewClient(opt)
		rt.closers = append(rt.closers, func() { _ = rt.rdb.Close() })
		if err := rt.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("bootstrap: ping redis: %w", err)
		}
		rt.Store = repo.NewBatchRepositoryRedis(rt.rdb, cfg.StateTTL)
	default:
		rt.Store = repo.NewMemoryBatchRepository()
	}
	return nil
}

func (rt *Runtime) openStorage(ctx context.Context, cfg *infra.Config) error {
	if cfg.S3Enabled() {
		st, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PresignTTL:      cfg.S3PresignTTL,
		})
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		rt.Storage = st
		return nil
	}

	storagePath := strings.TrimSpace(cfg.StoragePath)
	if storagePath == "" {
		storagePath = "./storage"
	}
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	fs, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	rt.Storage = fs
	rt.StaticDir = fs.BasePath()
	return nil
}

// SQL returns a marker-checking executor over the database pool, or nil when
// no database is configured.
func (rt *Runtime) SQL(logger infra.Logger) infra.SQLExecutor {
	if rt.pool == nil {
		return nil
	}
	return infra.NewSQLRunner(rt.pool, logger)
}

// Ready pings whichever backing services are connected.
func (rt *Runtime) Ready(ctx context.Context) error {
	if rt.pool != nil {
		if err := rt.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if rt.rdb != nil {
		if err := rt.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases connections in reverse order of acquisition.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
