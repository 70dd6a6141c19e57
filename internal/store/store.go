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

// Package store provides the Postgres-backed integration registry and the
// persistence of scan runs, communications and insights.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clientpulse/scanner/internal/models"
)

// Client is a client record owned by the account.
type Client struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Company           string     `json:"company,omitempty"`
	Email             string     `json:"email,omitempty"`
	Status            string     `json:"status"`
	HealthScore       *float64   `json:"health_score,omitempty"`
	LastCommunication *time.Time `json:"last_communication,omitempty"`
}

// InsightRow is a stored insight joined with its client's name.
type InsightRow struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Priority        string    `json:"priority"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	ContextQuote    string    `json:"context_quote"`
	SourceID        string    `json:"source_external_id,omitempty"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
	Date            time.Time `json:"date"`
	ClientID        *int64    `json:"client_id,omitempty"`
	ClientName      *string   `json:"client_name,omitempty"`
}

// Store provides registry reads and scan persistence in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store backed by the given Postgres pool. It ensures
// the tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS integrations (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL,
			type          TEXT NOT NULL,
			access_token  TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			updated_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_integrations_account ON integrations(account_id, is_active);

		CREATE TABLE IF NOT EXISTS clients (
			id                 BIGSERIAL PRIMARY KEY,
			account_id         TEXT NOT NULL,
			name               TEXT NOT NULL,
			company            TEXT DEFAULT '',
			email              TEXT DEFAULT '',
			status             TEXT DEFAULT 'active',
			health_score       DOUBLE PRECISION,
			last_communication TIMESTAMPTZ,
			created_at         TIMESTAMPTZ DEFAULT NOW(),
			updated_at         TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_clients_account ON clients(account_id);

		CREATE TABLE IF NOT EXISTS scan_runs (
			run_id               TEXT PRIMARY KEY,
			account_id           TEXT NOT NULL,
			communications_count INTEGER NOT NULL,
			insights_count       INTEGER NOT NULL,
			sentiment_score      DOUBLE PRECISION NOT NULL,
			ran_at               TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS communications (
			id               BIGSERIAL PRIMARY KEY,
			account_id       TEXT NOT NULL,
			integration_type TEXT NOT NULL,
			external_id      TEXT NOT NULL,
			thread_id        TEXT DEFAULT '',
			content          TEXT NOT NULL,
			sent_at          TIMESTAMPTZ NOT NULL,
			sender_name      TEXT DEFAULT '',
			sender_email     TEXT DEFAULT '',
			run_id           TEXT NOT NULL,
			created_at       TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(account_id, integration_type, external_id)
		);

		CREATE TABLE IF NOT EXISTS insights (
			id               TEXT PRIMARY KEY,
			account_id       TEXT NOT NULL,
			run_id           TEXT NOT NULL,
			client_id        BIGINT REFERENCES clients(id) ON DELETE SET NULL,
			type             TEXT NOT NULL,
			priority         TEXT NOT NULL,
			title            TEXT NOT NULL,
			description      TEXT DEFAULT '',
			context_quote    TEXT DEFAULT '',
			source_external_id TEXT NOT NULL DEFAULT '',
			confidence_score DOUBLE PRECISION NOT NULL,
			date             TIMESTAMPTZ NOT NULL,
			is_dismissed     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at       TIMESTAMPTZ DEFAULT NOW()
		);
		ALTER TABLE insights ADD COLUMN IF NOT EXISTS source_external_id TEXT NOT NULL DEFAULT '';
		CREATE INDEX IF NOT EXISTS idx_insights_account ON insights(account_id, is_dismissed, created_at DESC);
	`)
	return err
}

// ActiveIntegrations returns the account's active integrations.
func (s *Store) ActiveIntegrations(ctx context.Context, accountID string) ([]models.Integration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, type, access_token, refresh_token, is_active
		FROM integrations
		WHERE account_id = $1 AND is_active = TRUE
		ORDER BY created_at, id
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Integration
	for rows.Next() {
		var in models.Integration
		var typ string
		if err := rows.Scan(&in.ID, &in.AccountID, &typ, &in.AccessToken, &in.RefreshToken, &in.IsActive); err != nil {
			return nil, err
		}
		in.Type = models.IntegrationType(typ)
		out = append(out, in)
	}
	return out, rows.Err()
}

// AccountsWithActiveIntegrations lists accounts that have at least one
// active integration.
func (s *Store) AccountsWithActiveIntegrations(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT account_id FROM integrations WHERE is_active = TRUE ORDER BY account_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Persist writes a run, its communications and its insights in one
// transaction. Communications already stored for the account are left
// untouched (keyed on provider and external ID). Each insight's client
// reference is resolved against the account's clients by email, then by
// name; unresolved references are stored as NULL.
func (s *Store) Persist(ctx context.Context, out *models.ScanOutput) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	sum := out.Summary
	if _, err := tx.Exec(ctx, `
		INSERT INTO scan_runs (run_id, account_id, communications_count, insights_count, sentiment_score, ran_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sum.RunID, sum.AccountID, sum.CommunicationsCount, sum.InsightsCount, sum.SentimentScore, sum.Date); err != nil {
		return fmt.Errorf("insert scan run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range out.Communications {
		batch.Queue(`
			INSERT INTO communications
				(account_id, integration_type, external_id, thread_id, content, sent_at, sender_name, sender_email, run_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (account_id, integration_type, external_id) DO NOTHING
		`, sum.AccountID, string(c.IntegrationType), c.ExternalID, c.ThreadID, c.Content, c.Timestamp,
			c.SenderName, c.SenderEmail, sum.RunID)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert communications: %w", err)
	}

	for _, in := range out.Insights {
		clientID, err := resolveClient(ctx, tx, sum.AccountID, in.Client)
		if err != nil {
			return fmt.Errorf("resolve client for insight %s: %w", in.ID, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO insights
				(id, account_id, run_id, client_id, type, priority, title, description, context_quote,
				 source_external_id, confidence_score, date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, in.ID, in.AccountID, in.RunID, clientID, string(in.Type), string(in.Priority), in.Title,
			in.Description, in.ContextQuote, in.SourceID, in.ConfidenceScore, in.Date); err != nil {
			return fmt.Errorf("insert insight: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.Info("scan output persisted",
		"run_id", sum.RunID,
		"account_id", sum.AccountID,
		"communications", len(out.Communications),
		"insights", len(out.Insights),
	)
	return nil
}

// resolveClient looks up a client by email, then by name. It returns nil
// when the reference is empty or matches nothing.
func resolveClient(ctx context.Context, tx pgx.Tx, accountID string, ref models.ClientRef) (*int64, error) {
	if ref.IsZero() {
		return nil, nil
	}

	var id int64
	err := tx.QueryRow(ctx, `
		SELECT id FROM clients
		WHERE account_id = $1
		  AND (($2 <> '' AND LOWER(email) = LOWER($2)) OR ($3 <> '' AND LOWER(name) = LOWER($3)))
		ORDER BY (LOWER(COALESCE(email, '')) = LOWER($2)) DESC, id
		LIMIT 1
	`, accountID, ref.Email, ref.Name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ListInsights returns the account's non-dismissed insights, newest first,
// optionally restricted to one client.
func (s *Store) ListInsights(ctx context.Context, accountID string, limit int, clientID *int64) ([]InsightRow, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.type, i.priority, i.title, i.description, i.context_quote,
		       i.source_external_id, i.confidence_score, i.created_at, i.date, i.client_id, c.name
		FROM insights i
		LEFT JOIN clients c ON c.id = i.client_id
		WHERE i.account_id = $1
		  AND i.is_dismissed = FALSE
		  AND ($2::BIGINT IS NULL OR i.client_id = $2)
		ORDER BY i.created_at DESC
		LIMIT $3
	`, accountID, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InsightRow
	for rows.Next() {
		var r InsightRow
		if err := rows.Scan(
			&r.ID, &r.Type, &r.Priority, &r.Title, &r.Description, &r.ContextQuote,
			&r.SourceID, &r.ConfidenceScore, &r.CreatedAt, &r.Date, &r.ClientID, &r.ClientName,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListClients returns the account's clients, most recently updated first.
func (s *Store) ListClients(ctx context.Context, accountID string) ([]Client, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(company, ''), COALESCE(email, ''), COALESCE(status, 'active'),
		       health_score, last_communication
		FROM clients
		WHERE account_id = $1
		ORDER BY updated_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Company, &c.Email, &c.Status, &c.HealthScore, &c.LastCommunication); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
