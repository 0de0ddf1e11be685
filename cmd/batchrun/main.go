// Command batchrun runs one batch synchronously from a JSON file and prints
// the report. With -merge the file holds already generated segment URLs and
// only the fetch and merge stages run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"recreator/internal/batch"
	"recreator/internal/bootstrap"
	"recreator/internal/domain"
	"recreator/internal/domain/jsoncfg"
	"recreator/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var (
		fileFlag   string
		mergeFlag  bool
		localeFlag string
		idFlag     string
	)
	flag.StringVar(&fileFlag, "file", "", "path to the batch JSON (or segment list with -merge)")
	flag.BoolVar(&mergeFlag, "merge", false, "merge already generated segments instead of generating")
	flag.StringVar(&localeFlag, "locale", "", "summary locale (en, zh)")
	flag.StringVar(&idFlag, "id", "", "batch id (random when empty)")
	flag.Parse()

	path := strings.TrimSpace(fileFlag)
	if path == "" {
		exitWithError(errors.New("-file is required"))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		exitWithError(fmt.Errorf("read %s: %w", path, err))
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	// Nothing outlives the process, so the batch lives in memory.
	cfg.StateStore = infra.StateStoreMemory
	logger := infra.NewLogger(cfg.AppEnv).Output(os.Stderr).With().Str("cmd", "batchrun").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		exitWithError(err)
	}
	defer rt.Close()

	batchID := strings.TrimSpace(idFlag)
	if batchID == "" {
		batchID = uuid.NewString()
	}

	if mergeFlag {
		var input any
		if err := json.Unmarshal(raw, &input); err != nil {
			exitWithError(fmt.Errorf("decode segments: %w", err))
		}
		artifacts, err := batch.NormalizeArtifacts(input)
		if err != nil {
			exitWithError(err)
		}
		out := rt.Pipeline.MergeArtifacts(ctx, batchID, localeFlag, artifacts)
		printJSON(out)
		if out.Status == domain.StatusError {
			os.Exit(1)
		}
		return
	}

	payload, err := jsoncfg.Decode(raw)
	if err != nil {
		exitWithError(err)
	}
	if localeFlag != "" {
		payload.Locale = localeFlag
	}
	payload.Normalize(cfg.DefaultLocale)
	if err := payload.Validate(); err != nil {
		exitWithError(err)
	}
	if err := rt.Store.Create(ctx, &domain.Batch{
		ID:            batchID,
		Locale:        payload.Locale,
		Requests:      payload.Requests,
		EstimatedCost: domain.EstimateCost(payload.Requests, cfg.CostPerSecond).TotalCost,
	}); err != nil {
		exitWithError(err)
	}

	report, err := rt.Pipeline.Run(ctx, batchID)
	printJSON(report)
	if err != nil {
		exitWithError(err)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "batchrun: %v\n", err)
	os.Exit(1)
}
