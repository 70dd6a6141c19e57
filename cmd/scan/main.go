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

// ClientPulse one-shot scan command
//
// Runs the scan pipeline once from the command line, either for one
// account or for every account with active integrations. Intended for
// cron jobs and for checking a new integration end to end.
//
// Usage:
//
//	go run ./cmd/scan/ --account <id> [--no-persist] [--no-dedup]
//	go run ./cmd/scan/ --all
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clientpulse/scanner/internal/analyzer"
	"github.com/clientpulse/scanner/internal/collector"
	"github.com/clientpulse/scanner/internal/config"
	"github.com/clientpulse/scanner/internal/dedup"
	"github.com/clientpulse/scanner/internal/gmail"
	"github.com/clientpulse/scanner/internal/queue"
	"github.com/clientpulse/scanner/internal/scan"
	"github.com/clientpulse/scanner/internal/scheduler"
	"github.com/clientpulse/scanner/internal/store"
)

func main() {
	// Logs go to stderr so the run result on stdout stays parseable.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	accountFlag := flag.String("account", "", "Account ID to scan")
	allFlag := flag.Bool("all", false, "Scan every account with active integrations")
	noPersistFlag := flag.Bool("no-persist", false, "Skip the Postgres and Redis sinks")
	noDedupFlag := flag.Bool("no-dedup", false, "Analyse communications even if already seen")
	flag.Parse()

	if *accountFlag == "" && !*allFlag {
		fmt.Fprintf(os.Stderr, "Error: --account or --all is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	st, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	runnerCfg := scan.Config{
		Registry: st,
		Collector: collector.New(collector.Providers{
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
		}),
		Analyzer: analyzer.New(analyzer.Config{
			APIKey:    cfg.AnthropicAPIKey,
			BaseURL:   cfg.AnthropicBaseURL,
			Model:     cfg.AnthropicModel,
			MaxTokens: cfg.AnthropicMaxTokens,
		}),
		AnalysisTimeout: cfg.Scan.AnalysisTimeout,
	}

	useDedup := cfg.Scan.Dedup && !*noDedupFlag

	// --- Connect to Redis (dedup and event queue) ---
	if useDedup || !*noPersistFlag {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		if useDedup {
			runnerCfg.Dedup = dedup.NewFilter(rdb)
		}
		if !*noPersistFlag {
			runnerCfg.Sinks = []scan.Sink{st, queue.NewPublisher(rdb, cfg.ScansQueue)}
		}
	}

	runner := scan.NewRunner(runnerCfg)

	if *allFlag {
		scheduler.New(st, runner, 0).Tick(ctx)
		return
	}

	result, err := runner.Run(ctx, *accountFlag)
	if err != nil {
		var ae *scan.AnalysisError
		if errors.As(err, &ae) {
			slog.Error("analysis failed",
				"communications", ae.CommunicationsCount,
				"error", ae.Err,
			)
		} else {
			slog.Error("scan failed", "error", err)
		}
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		slog.Error("failed to write result", "error", err)
		os.Exit(1)
	}
}
