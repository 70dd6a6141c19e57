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

// Package collector fans out across an account's integrations, fetches
// recent messages from each, normalises them and merges the results into
// one batch. Failures are isolated per integration, per channel and per
// identity lookup: none of them aborts the batch.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clientpulse/scanner/internal/models"
	"github.com/clientpulse/scanner/internal/normalize"
)

// ChatSource is the chat provider adapter.
type ChatSource interface {
	DirectMessages(ctx context.Context, since time.Time) ([]models.ChatMessage, error)
	Channels(ctx context.Context) ([]models.Channel, error)
	ChannelHistory(ctx context.Context, channelID string, since time.Time, limit int) ([]models.ChatMessage, error)
	ResolveSender(ctx context.Context, userID string) (*models.Identity, error)
}

// MailSource is the mail provider adapter.
type MailSource interface {
	FetchRecent(ctx context.Context, since time.Time, max int) ([]models.MailMessage, error)
}

// Sources builds adapters from an integration's stored credentials.
type Sources interface {
	Chat(ctx context.Context, integ models.Integration) (ChatSource, error)
	Mail(ctx context.Context, integ models.Integration) (MailSource, error)
}

// Limits bounds the external call volume of one collection.
type Limits struct {
	Channels       int           // channels read per chat integration
	ChannelHistory int           // most recent messages kept per channel
	MailResults    int           // messages listed per mail integration
	SourceTimeout  time.Duration // per-integration deadline; 0 means none
}

// DefaultLimits are the caps applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		Channels:       5,
		ChannelHistory: 10,
		MailResults:    100,
		SourceTimeout:  60 * time.Second,
	}
}

// SourceReport summarises one integration's contribution.
type SourceReport struct {
	IntegrationID string                 `json:"integration_id"`
	Type          models.IntegrationType `json:"type"`
	Fetched       int                    `json:"fetched"`
	Kept          int                    `json:"kept"`
	Error         string                 `json:"error,omitempty"`
}

// Batch is the merged result of one collection.
type Batch struct {
	Communications []models.Communication
	Reports        []SourceReport
}

// Collector gathers communications across integrations.
type Collector struct {
	sources Sources
	limits  Limits
}

// New creates a collector. Zero-valued limits fall back to DefaultLimits.
func New(sources Sources, limits Limits) *Collector {
	def := DefaultLimits()
	if limits.Channels <= 0 {
		limits.Channels = def.Channels
	}
	if limits.ChannelHistory <= 0 {
		limits.ChannelHistory = def.ChannelHistory
	}
	if limits.MailResults <= 0 {
		limits.MailResults = def.MailResults
	}
	return &Collector{sources: sources, limits: limits}
}

// Collect fetches every integration concurrently and merges the results
// once all branches have settled. Each integration's items keep the order
// the provider delivered them; integrations are concatenated in the order
// given. Communications older than since are dropped, as are repeated
// external IDs after their first occurrence.
func (c *Collector) Collect(ctx context.Context, integrations []models.Integration, since time.Time) *Batch {
	results := make([][]models.Communication, len(integrations))
	reports := make([]*SourceReport, len(integrations))

	var g errgroup.Group
	for i, integ := range integrations {
		if !integ.Type.Valid() {
			slog.Debug("skipping unsupported integration type",
				"integration", integ.ID,
				"type", integ.Type,
			)
			continue
		}

		g.Go(func() error {
			report := &SourceReport{IntegrationID: integ.ID, Type: integ.Type}
			reports[i] = report

			comms, fetched, err := c.collectOne(ctx, integ, since)
			report.Fetched = fetched
			if err != nil {
				slog.Warn("integration fetch failed, continuing without it",
					"integration", integ.ID,
					"type", integ.Type,
					"error", err,
				)
				report.Error = err.Error()
				return nil
			}

			results[i] = comms
			report.Kept = len(comms)
			return nil
		})
	}
	_ = g.Wait()

	batch := &Batch{}
	seen := make(map[string]bool)
	for i := range integrations {
		for _, comm := range results[i] {
			if seen[comm.ExternalID] {
				continue
			}
			seen[comm.ExternalID] = true
			batch.Communications = append(batch.Communications, comm)
		}
		if reports[i] != nil {
			batch.Reports = append(batch.Reports, *reports[i])
		}
	}

	return batch
}

// collectOne runs a single integration under its own deadline. A panic in
// the branch is converted into that integration's error.
func (c *Collector) collectOne(ctx context.Context, integ models.Integration, since time.Time) (comms []models.Communication, fetched int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic collecting %s: %v", integ.Type, r)
		}
	}()

	if c.limits.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.limits.SourceTimeout)
		defer cancel()
	}

	var records []models.RawRecord
	switch integ.Type {
	case models.IntegrationSlack:
		records, err = c.collectChat(ctx, integ, since)
	case models.IntegrationGmail:
		records, err = c.collectMail(ctx, integ, since)
	}
	if err != nil {
		return nil, 0, err
	}

	return keep(records, since), len(records), nil
}

// collectChat reads direct messages, then a bounded prefix of channels.
// Listing direct messages is the primary fetch and its failure fails the
// integration; channel listing and per-channel history are best-effort.
func (c *Collector) collectChat(ctx context.Context, integ models.Integration, since time.Time) ([]models.RawRecord, error) {
	src, err := c.sources.Chat(ctx, integ)
	if err != nil {
		return nil, fmt.Errorf("build chat source: %w", err)
	}

	dms, err := src.DirectMessages(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fetch direct messages: %w", err)
	}

	chans, err := src.Channels(ctx)
	if err != nil {
		slog.Warn("failed to list channels, using direct messages only",
			"integration", integ.ID,
			"error", err,
		)
		chans = nil
	}
	if len(chans) > c.limits.Channels {
		chans = chans[:c.limits.Channels]
	}

	histories := make([][]models.ChatMessage, len(chans))
	var g errgroup.Group
	for i, ch := range chans {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic fetching channel history", "channel_id", ch.ID, "panic", r)
				}
			}()

			msgs, err := src.ChannelHistory(ctx, ch.ID, since, c.limits.ChannelHistory)
			if err != nil {
				slog.Warn("failed to fetch channel history",
					"integration", integ.ID,
					"channel_id", ch.ID,
					"error", err,
				)
				return nil
			}
			histories[i] = msgs
			return nil
		})
	}
	_ = g.Wait()

	resolver := newIdentityCache(src)
	var records []models.RawRecord
	add := func(msgs []models.ChatMessage) {
		for _, m := range msgs {
			if strings.TrimSpace(m.Text) == "" {
				continue
			}
			if m.SenderName == "" && m.User != "" {
				m.SenderName = resolver.name(ctx, m.User)
			}
			records = append(records, models.ChatRecord(m))
		}
	}

	add(dms)
	for _, h := range histories {
		add(h)
	}

	return records, nil
}

func (c *Collector) collectMail(ctx context.Context, integ models.Integration, since time.Time) ([]models.RawRecord, error) {
	src, err := c.sources.Mail(ctx, integ)
	if err != nil {
		return nil, fmt.Errorf("build mail source: %w", err)
	}

	msgs, err := src.FetchRecent(ctx, since, c.limits.MailResults)
	if err != nil {
		return nil, fmt.Errorf("fetch mail: %w", err)
	}

	records := make([]models.RawRecord, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, models.MailRecord(m))
	}
	return records, nil
}

// keep normalises records, dropping those with no text or outside the window.
func keep(records []models.RawRecord, since time.Time) []models.Communication {
	out := make([]models.Communication, 0, len(records))
	for _, rec := range records {
		comm, ok := normalize.Normalize(rec)
		if !ok {
			continue
		}
		if comm.Timestamp.Before(since) {
			continue
		}
		out = append(out, comm)
	}
	return out
}

// identityCache resolves each sender at most once per integration.
type identityCache struct {
	src   ChatSource
	mu    sync.Mutex
	names map[string]string
}

func newIdentityCache(src ChatSource) *identityCache {
	return &identityCache{src: src, names: make(map[string]string)}
}

func (c *identityCache) name(ctx context.Context, userID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name, ok := c.names[userID]; ok {
		return name
	}

	name := normalize.FallbackSenderName(userID)
	ident, err := c.src.ResolveSender(ctx, userID)
	if err != nil {
		slog.Warn("failed to resolve sender, using fallback name",
			"user_id", userID,
			"error", err,
		)
	} else if n := ident.Name(); n != "" {
		name = n
	}

	c.names[userID] = name
	return name
}
