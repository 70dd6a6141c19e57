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

// Package queue publishes completed scan results to a Redis list so that
// downstream consumers (notifications, dashboards) can pick them up.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clientpulse/scanner/internal/models"
)

// EventScanCompleted is the event type published after a successful run.
const EventScanCompleted = "scan.completed"

// Publisher sends scan events to a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// Event is the JSON envelope pushed to the queue. Communications are not
// included; consumers that need them read the store by run ID.
type Event struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	PublishedAt time.Time          `json:"published_at"`
	Summary     models.ScanSummary `json:"summary"`
	Insights    []models.Insight   `json:"insights"`
}

// NewEvent wraps a scan output in an event envelope.
func NewEvent(out *models.ScanOutput) Event {
	return Event{
		ID:          uuid.New().String(),
		Type:        EventScanCompleted,
		PublishedAt: time.Now().UTC(),
		Summary:     out.Summary,
		Insights:    out.Insights,
	}
}

// Persist publishes the run's summary and insights. It satisfies the
// pipeline's sink interface.
func (p *Publisher) Persist(ctx context.Context, out *models.ScanOutput) error {
	event := NewEvent(out)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal scan event: %w", err)
	}

	// Consumers BRPOP, so LPUSH gives FIFO order.
	if err := p.rdb.LPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published scan event to queue",
		"event_id", event.ID,
		"run_id", out.Summary.RunID,
		"account_id", out.Summary.AccountID,
		"insights", len(out.Insights),
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
