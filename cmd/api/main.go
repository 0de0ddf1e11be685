package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"recreator/internal/batch"
	"recreator/internal/bootstrap"
	"recreator/internal/http/handlers"
	httpapi "recreator/internal/http/httpapi"
	"recreator/internal/infra"
	"recreator/internal/infra/geoip"
	"recreator/internal/middleware"
	"recreator/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: bootstrap failed")
	}
	defer rt.Close()

	// With a queue the worker binary runs batches; otherwise this process does.
	var dispatcher queue.Dispatcher
	var inline *queue.InlineDispatcher
	if cfg.QueueRedisURL != "" {
		client, err := queue.NewClient(cfg.QueueRedisURL, cfg.PollMaxWait+30*time.Minute)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: queue client failed")
		}
		defer client.Close()
		dispatcher = client
	} else {
		inline = queue.NewInlineDispatcher(ctx, rt.Pipeline, &logger)
		dispatcher = inline
		logger.Warn().Msg("api: QUEUE_REDIS_URL not set, running batches in-process")
	}

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip database unavailable, locale falls back to headers")
	} else if resolver != nil {
		defer resolver.Close()
		countryLookup = resolver.CountryCode
	}

	app := handlers.NewApp(rt.Store, dispatcher, cfg.CostPerSecond, &logger)
	app.Ready = rt.Ready

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		DefaultLocale:   cfg.DefaultLocale,
		Locales:         batch.SupportedLocales,
		RateLimitPerMin: cfg.RateLimitPerMin,
		APITokens:       cfg.APITokens,
		CORSOrigins:     cfg.CORSOrigins,
		CountryLookup:   countryLookup,
		StaticDir:       rt.StaticDir,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	if inline != nil {
		// Running batches observe ctx cancellation and record their outcome.
		inline.Wait()
	}
	logger.Info().Msg("api: stopped")
}
