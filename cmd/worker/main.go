package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"recreator/internal/bootstrap"
	"recreator/internal/infra"
	"recreator/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if cfg.QueueRedisURL == "" {
		logger.Fatal().Msg("worker: QUEUE_REDIS_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: bootstrap failed")
	}
	defer rt.Close()

	worker, err := queue.NewWorker(queue.WorkerOptions{
		RedisURL:    cfg.QueueRedisURL,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      &logger,
	}, rt.Pipeline)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure queue")
	}
	if err := worker.Start(); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker: started")

	<-ctx.Done()
	worker.Shutdown()
	logger.Info().Msg("worker: stopped")
}
