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

// CargoLink — Email Linking Service
//
// Entry point for the linking service. It:
//  1. Loads multi-organization configuration from config.yaml
//  2. Connects to PostgreSQL (rule store) and Redis (queues + dedup)
//  3. Builds an OAuth2 ERP client per organization
//  4. Serves the email intake webhook and the automations REST API
//  5. Runs the periodic relink sweeper over parked emails
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/cargolink/linking/internal/api"
	"github.com/cargolink/linking/internal/automation"
	"github.com/cargolink/linking/internal/config"
	"github.com/cargolink/linking/internal/dedup"
	"github.com/cargolink/linking/internal/erp"
	"github.com/cargolink/linking/internal/extract"
	"github.com/cargolink/linking/internal/intake"
	"github.com/cargolink/linking/internal/linker"
	"github.com/cargolink/linking/internal/queue"
	"github.com/cargolink/linking/internal/sweep"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting CargoLink linking service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"organizations", len(cfg.Organizations),
		"sweep_interval", cfg.SweepInterval,
		"max_link_attempts", cfg.MaxLinkAttempts,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.LinksQueue, cfg.UnmatchedList)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Dedup Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Automation Rule Store (Postgres) ---
	store, err := automation.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise automation store", "error", err)
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
		slog.Info("configured ERP client", "organization", org.Alias)
	}

	// --- Evaluator + Processor ---
	evaluator := linker.New(linker.Options{
		FieldDetectorsScanAttachments: cfg.ScanAttachmentsForRefs,
	})

	processor := &intake.Processor{
		Rules:       store,
		Snapshots:   snapshots,
		Evaluator:   evaluator,
		Sink:        publisher,
		Extractor:   extract.PlainText{},
		MaxAttempts: cfg.MaxLinkAttempts,
	}

	// --- Phase 1: Intake webhook server ---
	// The email gateway starts delivering as soon as the endpoint answers,
	// so it comes up before the sweeper re-queues anything.
	handler := intake.NewHandler(processor, filter, cfg.IntakeToken)
	ready, err := intake.Serve(ctx, cfg.IntakePort, handler)
	if err != nil {
		slog.Error("failed to start intake server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("intake server ready", "port", cfg.IntakePort)

	// --- Phase 2: Relink sweeper over parked emails ---
	sweeper := sweep.New(sweep.Config{
		Source:   publisher,
		Relinker: processor,
		Interval: cfg.SweepInterval,
		Batch:    cfg.SweepBatch,
	})
	sweeper.Start(ctx)

	// --- Phase 3: Automations REST API ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.New(store, pgPool, publisher))

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop all background goroutines

		sweeper.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("automations API listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("linking service stopped")
}
