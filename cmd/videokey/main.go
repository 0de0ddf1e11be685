package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"recreator/internal/adapter/repo"
	"recreator/internal/infra"
	"recreator/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var (
		keyFlag  string
		baseFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "video generation API key (falls back to VIDEO_API_KEY)")
	flag.StringVar(&baseFlag, "base", "", "API base URL the key belongs to, stored alongside it")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("VIDEO_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "video API key is required via -key or VIDEO_API_KEY")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").Output(os.Stderr).With().Str("cmd", "videokey").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if err := repo.NewBatchRepository(runner).EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare schema: %v\n", err)
		os.Exit(1)
	}

	props := map[string]any{"stored_at": time.Now().UTC().Format(time.RFC3339)}
	if base := strings.TrimSpace(baseFlag); base != "" {
		props["base_url"] = base
	}
	if err := credentials.NewStore(runner).SetVideoAPIKey(ctx, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist video api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("video API key stored successfully")
}
