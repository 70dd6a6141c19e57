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

// Package scan runs the client-relationship pipeline for one account:
// collect the lookback window from every active integration, drop
// communications already analysed, make one analysis call, map the result
// to insights and hand the output to the configured sinks.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clientpulse/scanner/internal/collector"
	"github.com/clientpulse/scanner/internal/insight"
	"github.com/clientpulse/scanner/internal/models"
)

// Lookback is the fixed window every run scans, ending at invocation time.
const Lookback = 24 * time.Hour

// AnalysisLabel is the batch label sent to the analysis engine.
const AnalysisLabel = "Client Communications"

const (
	msgNoIntegrations   = "No active integrations found. Please connect Slack or Gmail first."
	msgNoCommunications = "No communications found in the last 24 hours"
	msgCompleted        = "Scan completed successfully"
)

// ErrUnauthorized is returned when a run is requested without an account.
var ErrUnauthorized = errors.New("unauthorized")

// AnalysisError reports a failed analysis call. The communications were
// gathered; no insights were produced.
type AnalysisError struct {
	CommunicationsCount int
	Err                 error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis of %d communications failed: %v", e.CommunicationsCount, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Registry looks up an account's active integrations.
type Registry interface {
	ActiveIntegrations(ctx context.Context, accountID string) ([]models.Integration, error)
}

// Collector gathers one batch across integrations.
type Collector interface {
	Collect(ctx context.Context, integrations []models.Integration, since time.Time) *collector.Batch
}

// Deduper tracks which communications were already analysed.
type Deduper interface {
	Unseen(ctx context.Context, accountID string, comms []models.Communication) ([]models.Communication, int, error)
	MarkSeen(ctx context.Context, accountID string, comms []models.Communication) error
}

// Analyzer makes the single analysis call for a batch.
type Analyzer interface {
	Analyze(ctx context.Context, comms []models.Communication, label string) (*models.AnalysisResult, error)
}

// Sink receives the output of a successful run.
type Sink interface {
	Persist(ctx context.Context, out *models.ScanOutput) error
}

// Result is the outcome reported to the caller.
type Result struct {
	Message             string                   `json:"message"`
	RunID               string                   `json:"run_id,omitempty"`
	CommunicationsCount int                      `json:"communications_count"`
	InsightsCount       int                      `json:"insights_count"`
	SentimentScore      *float64                 `json:"sentiment_score,omitempty"`
	DuplicatesSkipped   int                      `json:"duplicates_skipped,omitempty"`
	Sources             []collector.SourceReport `json:"sources,omitempty"`
}

// Config wires the runner's collaborators. Dedup and Sinks are optional.
type Config struct {
	Registry        Registry
	Collector       Collector
	Dedup           Deduper
	Analyzer        Analyzer
	Mapper          *insight.Mapper
	Sinks           []Sink
	AnalysisTimeout time.Duration
}

// Runner executes pipeline runs. It keeps no state between runs.
type Runner struct {
	registry        Registry
	collector       Collector
	dedup           Deduper
	analyzer        Analyzer
	mapper          *insight.Mapper
	sinks           []Sink
	analysisTimeout time.Duration

	now   func() time.Time
	newID func() string
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	mapper := cfg.Mapper
	if mapper == nil {
		mapper = insight.NewMapper()
	}
	timeout := cfg.AnalysisTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Runner{
		registry:        cfg.Registry,
		collector:       cfg.Collector,
		dedup:           cfg.Dedup,
		analyzer:        cfg.Analyzer,
		mapper:          mapper,
		sinks:           cfg.Sinks,
		analysisTimeout: timeout,
		now:             time.Now,
		newID:           func() string { return uuid.New().String() },
	}
}

// Run executes one pipeline run for accountID.
func (r *Runner) Run(ctx context.Context, accountID string) (*Result, error) {
	if accountID == "" {
		return nil, ErrUnauthorized
	}

	runID := r.newID()
	now := r.now().UTC()
	since := now.Add(-Lookback)
	log := slog.With("account_id", accountID, "run_id", runID)

	integrations, err := r.registry.ActiveIntegrations(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load integrations: %w", err)
	}
	if len(integrations) == 0 {
		log.Info("no active integrations")
		return &Result{Message: msgNoIntegrations}, nil
	}

	batch := r.collector.Collect(ctx, integrations, since)
	comms := batch.Communications

	skipped := 0
	if r.dedup != nil && len(comms) > 0 {
		unseen, n, err := r.dedup.Unseen(ctx, accountID, comms)
		if err != nil {
			log.Warn("dedup check failed, analysing full batch", "error", err)
		} else {
			comms, skipped = unseen, n
		}
	}

	if len(comms) == 0 {
		log.Info("no communications to analyse",
			"integrations", len(integrations),
			"duplicates_skipped", skipped,
		)
		return &Result{
			Message:           msgNoCommunications,
			DuplicatesSkipped: skipped,
			Sources:           batch.Reports,
		}, nil
	}

	log.Info("analysing communications",
		"communications", len(comms),
		"duplicates_skipped", skipped,
	)

	actx, cancel := context.WithTimeout(ctx, r.analysisTimeout)
	result, err := r.analyzer.Analyze(actx, comms, AnalysisLabel)
	cancel()
	if err != nil {
		log.Error("analysis failed", "communications", len(comms), "error", err)
		return nil, &AnalysisError{CommunicationsCount: len(comms), Err: err}
	}

	insights, summary := r.mapper.Map(insight.Run{ID: runID, AccountID: accountID, At: now}, result, comms)
	out := &models.ScanOutput{
		Summary:        summary,
		Communications: comms,
		Insights:       insights,
	}

	sinkFailed := false
	for _, s := range r.sinks {
		if err := s.Persist(ctx, out); err != nil {
			log.Error("sink failed", "sink", fmt.Sprintf("%T", s), "error", err)
			sinkFailed = true
		}
	}

	// Unpersisted communications stay unseen so the next run reprocesses them.
	if sinkFailed && r.dedup != nil {
		log.Warn("not marking communications seen after sink failure",
			"communications", len(comms),
		)
	} else if r.dedup != nil {
		if err := r.dedup.MarkSeen(ctx, accountID, comms); err != nil {
			log.Warn("failed to mark communications seen", "error", err)
		}
	}

	log.Info("scan completed",
		"communications", summary.CommunicationsCount,
		"insights", summary.InsightsCount,
		"sentiment_score", summary.SentimentScore,
	)

	score := summary.SentimentScore
	return &Result{
		Message:             msgCompleted,
		RunID:               runID,
		CommunicationsCount: summary.CommunicationsCount,
		InsightsCount:       summary.InsightsCount,
		SentimentScore:      &score,
		DuplicatesSkipped:   skipped,
		Sources:             batch.Reports,
	}, nil
}
