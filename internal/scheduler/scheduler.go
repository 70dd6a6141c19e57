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

// Package scheduler runs periodic scans for every account with active
// integrations.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clientpulse/scanner/internal/scan"
)

// Accounts lists the accounts that should be scanned.
type Accounts interface {
	AccountsWithActiveIntegrations(ctx context.Context) ([]string, error)
}

// Runner runs one pipeline for one account.
type Runner interface {
	Run(ctx context.Context, accountID string) (*scan.Result, error)
}

// Scheduler ticks at a fixed interval and scans each account in turn.
type Scheduler struct {
	accounts Accounts
	runner   Runner
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler.
func New(accounts Accounts, runner Runner, interval time.Duration) *Scheduler {
	return &Scheduler{accounts: accounts, runner: runner, interval: interval}
}

// Start launches the periodic loop. It is a no-op when the interval is
// not positive.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		slog.Info("periodic scans disabled")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.Tick(loopCtx)
			}
		}
	}()

	slog.Info("periodic scans started", "interval", s.interval)
}

// Tick scans every account once. Each account gets its own run; a failed
// run is logged and the next account proceeds.
func (s *Scheduler) Tick(ctx context.Context) {
	ids, err := s.accounts.AccountsWithActiveIntegrations(ctx)
	if err != nil {
		slog.Error("failed to list accounts for periodic scan", "error", err)
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		res, err := s.runner.Run(ctx, id)
		if err != nil {
			slog.Error("periodic scan failed", "account_id", id, "error", err)
			continue
		}
		slog.Info("periodic scan finished",
			"account_id", id,
			"communications", res.CommunicationsCount,
			"insights", res.InsightsCount,
		)
	}
}

// Stop shuts down the periodic loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
