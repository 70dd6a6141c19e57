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

// Package insight projects a validated analysis result onto persisted
// insight records and run-level summary metrics.
package insight

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clientpulse/scanner/internal/models"
)

// Run identifies the pipeline run the insights belong to.
type Run struct {
	ID        string
	AccountID string
	At        time.Time
}

// Mapper converts analysis drafts into insights.
type Mapper struct {
	newID func() string
}

// NewMapper creates a mapper that assigns random UUIDs to insights.
func NewMapper() *Mapper {
	return &Mapper{newID: func() string { return uuid.New().String() }}
}

// Map attaches run metadata to every draft, preserving order and content,
// and computes the run summary. comms is the batch that was analysed; it is
// used to complete a client reference's email when the engine named a
// sender without giving an address, and to check that a quoted message ID
// belongs to the batch. IDs outside the batch are dropped.
func (m *Mapper) Map(run Run, result *models.AnalysisResult, comms []models.Communication) ([]models.Insight, models.ScanSummary) {
	emails := senderEmails(comms)
	ids := make(map[string]bool, len(comms))
	for _, c := range comms {
		ids[c.ExternalID] = true
	}

	insights := make([]models.Insight, 0, len(result.Insights))
	for _, d := range result.Insights {
		client := d.Client
		if client.Email == "" && client.Name != "" {
			client.Email = emails[strings.ToLower(client.Name)]
		}

		source := ""
		if ids[d.MessageID] {
			source = d.MessageID
		}

		insights = append(insights, models.Insight{
			ID:              m.newID(),
			AccountID:       run.AccountID,
			RunID:           run.ID,
			Type:            d.Type,
			Priority:        d.Priority,
			Title:           d.Title,
			Description:     d.Description,
			ContextQuote:    d.ContextQuote,
			SourceID:        source,
			ConfidenceScore: d.ConfidenceScore,
			Date:            run.At,
			Client:          client,
		})
	}

	summary := models.ScanSummary{
		RunID:               run.ID,
		AccountID:           run.AccountID,
		CommunicationsCount: len(comms),
		InsightsCount:       len(insights),
		SentimentScore:      result.SentimentScore,
		Date:                run.At,
	}

	return insights, summary
}

// senderEmails indexes sender addresses by lowercase display name. Names
// that map to more than one address are left out.
func senderEmails(comms []models.Communication) map[string]string {
	out := make(map[string]string)
	ambiguous := make(map[string]bool)
	for _, c := range comms {
		if c.SenderEmail == "" || c.SenderName == "" || c.SenderName == c.SenderEmail {
			continue
		}
		key := strings.ToLower(c.SenderName)
		if prev, ok := out[key]; ok && !strings.EqualFold(prev, c.SenderEmail) {
			ambiguous[key] = true
			continue
		}
		out[key] = c.SenderEmail
	}
	for k := range ambiguous {
		delete(out, k)
	}
	return out
}
