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

// ClientPulse scanner service
//
// Entry point for the scanner HTTP service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Wires the collector, analyzer and sinks into a scan runner
//  4. Serves the scan, insights and clients API
//  5. Optionally runs periodic scans for every connected account
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clientpulse/scanner/internal/analyzer"
	"github.com/clientpulse/scanner/internal/api"
	"github.com/clientpulse/scanner/internal/auth"
	"github.com/clientpulse/scanner/internal/collector"
	"github.com/clientpulse/scanner/internal/config"
	"github.com/clientpulse/scanner/internal/dedup"
	"github.com/clientpulse/scanner/internal/gmail"
	"github.com/clientpulse/scanner/internal/insight"
	"github.com/clientpulse/scanner/internal/queue"
	"github.com/clientpulse/scanner/internal/scan"
	"github.com/clientpulse/scanner/internal/scheduler"
	"github.com/clientpulse/scanner/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	slog.Info("starting ClientPulse scanner service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"model", cfg.AnthropicModel,
		"scan_interval", cfg.Scan.Interval,
		"dedup", cfg.Scan.Dedup,
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

	st, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
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

	publisher := queue.NewPublisher(rdb, cfg.ScansQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Scan Pipeline ---
	coll := collector.New(collector.Providers{
		SlackAPIURL: cfg.SlackAPIURL,
		Google: gmail.OAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		},
	}, collector.Limits{
		Channels:       cfg.Scan.ChannelLimit,
		ChannelHistory: cfg.Scan.ChannelHistoryLimit,
		MailResults:    cfg.Scan.MailMaxResults,
		SourceTimeout:  cfg.Scan.SourceTimeout,
	})

	engine := analyzer.New(analyzer.Config{
		APIKey:    cfg.AnthropicAPIKey,
		BaseURL:   cfg.AnthropicBaseURL,
		Model:     cfg.AnthropicModel,
		MaxTokens: cfg.AnthropicMaxTokens,
	})

	runnerCfg := scan.Config{
		Registry:        st,
		Collector:       coll,
		Analyzer:        engine,
		Mapper:          insight.NewMapper(),
		Sinks:           []scan.Sink{st, publisher},
		AnalysisTimeout: cfg.Scan.AnalysisTimeout,
	}
	if cfg.Scan.Dedup {
		runnerCfg.Dedup = dedup.NewFilter(rdb)
	}
	runner := scan.NewRunner(runnerCfg)

	// --- API Server ---
	handler := api.NewHandler(runner, st, auth.NewVerifier(cfg.JWTSecret),
		api.HealthCheck{Name: "redis", Check: publisher.Ping},
		api.HealthCheck{Name: "postgres", Check: st.Ping},
	)
	ready, err := api.Serve(ctx, cfg.Port, handler.Routes())
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Periodic Scans ---
	sched := scheduler.New(st, runner, cfg.Scan.Interval)
	sched.Start(ctx)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()
	sched.Stop()

	slog.Info("scanner service stopped")
}
