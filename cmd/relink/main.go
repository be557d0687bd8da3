// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// CargoLink — Relink Command
//
// Standalone CLI tool that drains the parked unmatched-email list in a
// single pass, re-evaluating every email against the current rules and
// open operations. Intended for use after bulk rule edits on a
// deployment, when waiting for the periodic sweeper is too slow.
//
// Usage:
//
//	go run ./cmd/relink/ [--org <organization id>] [--limit 500]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/cargolink/linking/internal/automation"
	"github.com/cargolink/linking/internal/config"
	"github.com/cargolink/linking/internal/erp"
	"github.com/cargolink/linking/internal/extract"
	"github.com/cargolink/linking/internal/intake"
	"github.com/cargolink/linking/internal/linker"
	"github.com/cargolink/linking/internal/queue"
	"github.com/cargolink/linking/internal/sweep"
)

const popBatch = 50

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	orgFlag := flag.String("org", "", "Only re-evaluate emails of this organization ID (others are parked again)")
	limitFlag := flag.Int("limit", 0, "Maximum number of parked emails to process (0 = all)")
	flag.Parse()

	slog.Info("starting relink pass", "org", *orgFlag, "limit", *limitFlag)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	store, err := automation.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise automation store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.LinksQueue, cfg.UnmatchedList)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// --- Build OAuth2 ERP clients per organization ---
	snapshots := make(map[string]intake.SnapshotSource)
	for _, org := range cfg.Organizations {
		creds := &clientcredentials.Config{
			ClientID:     org.ClientID,
			ClientSecret: org.ClientSecret,
			TokenURL:     org.TokenURL,
		}
		snapshots[org.OrganizationID] = erp.NewClient(creds.Client(ctx), org.ERPBaseURL)
	}

	processor := &intake.Processor{
		Rules:       store,
		Snapshots:   snapshots,
		Evaluator:   linker.New(linker.Options{FieldDetectorsScanAttachments: cfg.ScanAttachmentsForRefs}),
		Sink:        publisher,
		Extractor:   extract.PlainText{},
		MaxAttempts: cfg.MaxLinkAttempts,
	}

	// --- Drain ---
	// One bounded pass: each parked email is visited at most once, so
	// the run terminates even when every entry ends up re-parked.
	start := time.Now()
	sweeper := sweep.New(sweep.Config{
		Source:   publisher,
		Relinker: processor,
		Batch:    popBatch,
	})

	result, err := sweeper.Drain(ctx, *orgFlag, *limitFlag)
	if err != nil {
		slog.Error("relink pass failed", "error", err)
		os.Exit(1)
	}

	// --- Summary ---
	remaining, err := publisher.UnmatchedLen(ctx)
	if err != nil {
		remaining = -1
	}
	slog.Info("relink pass complete",
		"processed", result.Processed,
		"linked", result.Linked,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"remaining", remaining,
		"elapsed", time.Since(start),
	)
}
