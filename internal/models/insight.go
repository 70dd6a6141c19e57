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

package models

import (
	"strings"
	"time"
)

// InsightType classifies a relationship insight.
type InsightType string

const (
	InsightRisk              InsightType = "risk"
	InsightOpportunity       InsightType = "opportunity"
	InsightSentimentShift    InsightType = "sentiment_shift"
	InsightGoingCold         InsightType = "going_cold"
	InsightRenewalRisk       InsightType = "renewal_risk"
	InsightPositiveSentiment InsightType = "positive_sentiment"
	InsightFollowUp          InsightType = "follow_up"
)

var insightTypes = map[InsightType]bool{
	InsightRisk:              true,
	InsightOpportunity:       true,
	InsightSentimentShift:    true,
	InsightGoingCold:         true,
	InsightRenewalRisk:       true,
	InsightPositiveSentiment: true,
	InsightFollowUp:          true,
}

// ParseInsightType normalises case, spaces and hyphens and reports whether
// the result is a known tag.
func ParseInsightType(s string) (InsightType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	t := InsightType(s)
	return t, insightTypes[t]
}

// InsightTypes returns every known tag, in declaration order.
func InsightTypes() []InsightType {
	return []InsightType{
		InsightRisk, InsightOpportunity, InsightSentimentShift, InsightGoingCold,
		InsightRenewalRisk, InsightPositiveSentiment, InsightFollowUp,
	}
}

// Priority is the ordinal urgency of an insight.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalises case and reports whether s is a known priority.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, true
	}
	return p, false
}

// Rank orders priorities low < medium < high. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// ClientRef is a weak reference to a client record, identified by whatever
// the analyzer could extract. Resolution to a stored client happens in the
// persistence layer.
type ClientRef struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// IsZero reports whether the reference carries no identity.
func (c ClientRef) IsZero() bool {
	return c.Name == "" && c.Email == ""
}

// InsightDraft is one insight as returned by the reasoning engine.
type InsightDraft struct {
	Type            InsightType `json:"type"`
	Priority        Priority    `json:"priority"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	ContextQuote    string      `json:"context_quote"`
	MessageID       string      `json:"message_id,omitempty"` // external ID of the quoted message
	ConfidenceScore float64     `json:"confidence_score"`
	Client          ClientRef   `json:"client"`
}

// AnalysisResult is the validated output of one batch analysis call.
// SentimentScore ranges from -1 (hostile) to 1 (very positive).
type AnalysisResult struct {
	SentimentScore float64        `json:"sentiment_score"`
	Insights       []InsightDraft `json:"insights"`
}

// Insight is a persisted relationship insight.
type Insight struct {
	ID              string      `json:"id"`
	AccountID       string      `json:"account_id"`
	RunID           string      `json:"run_id"`
	Type            InsightType `json:"type"`
	Priority        Priority    `json:"priority"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	ContextQuote    string      `json:"context_quote"`
	SourceID        string      `json:"source_external_id,omitempty"`
	ConfidenceScore float64     `json:"confidence_score"`
	Date            time.Time   `json:"date"`
	Client          ClientRef   `json:"client"`
}

// ScanSummary holds run-level aggregate metrics.
type ScanSummary struct {
	RunID               string    `json:"run_id"`
	AccountID           string    `json:"account_id"`
	CommunicationsCount int       `json:"communications_count"`
	InsightsCount       int       `json:"insights_count"`
	SentimentScore      float64   `json:"sentiment_score"`
	Date                time.Time `json:"date"`
}

// ScanOutput is everything one successful run hands to persistence.
type ScanOutput struct {
	Summary        ScanSummary     `json:"summary"`
	Communications []Communication `json:"communications"`
	Insights       []Insight       `json:"insights"`
}
