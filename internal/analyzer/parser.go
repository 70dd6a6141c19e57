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

package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clientpulse/scanner/internal/models"
)

// rawResult mirrors the engine's JSON output. Pointers distinguish absent
// fields from zero values.
type rawResult struct {
	SentimentScore *float64      `json:"sentiment_score"`
	Insights       *[]rawInsight `json:"insights"`
}

type rawInsight struct {
	Type            string   `json:"type"`
	Priority        string   `json:"priority"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	ContextQuote    string   `json:"context_quote"`
	MessageID       string   `json:"message_id"`
	ConfidenceScore *float64 `json:"confidence_score"`
	ClientName      string   `json:"client_name"`
	ClientEmail     string   `json:"client_email"`
}

// ParseResult extracts and validates the JSON object in the engine's text
// output. Surrounding prose or code fences are tolerated.
func ParseResult(text string) (*models.AnalysisResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrMalformedResponse)
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if raw.SentimentScore == nil {
		return nil, fmt.Errorf("%w: missing sentiment_score", ErrMalformedResponse)
	}
	if *raw.SentimentScore < -1 || *raw.SentimentScore > 1 {
		return nil, fmt.Errorf("%w: sentiment_score %v out of range", ErrMalformedResponse, *raw.SentimentScore)
	}
	if raw.Insights == nil {
		return nil, fmt.Errorf("%w: missing insights", ErrMalformedResponse)
	}

	result := &models.AnalysisResult{
		SentimentScore: *raw.SentimentScore,
		Insights:       make([]models.InsightDraft, 0, len(*raw.Insights)),
	}

	for i, ri := range *raw.Insights {
		draft, err := ri.validate()
		if err != nil {
			return nil, fmt.Errorf("%w: insight %d: %v", ErrMalformedResponse, i, err)
		}
		result.Insights = append(result.Insights, draft)
	}

	return result, nil
}

func (ri rawInsight) validate() (models.InsightDraft, error) {
	typ, ok := models.ParseInsightType(ri.Type)
	if !ok {
		return models.InsightDraft{}, fmt.Errorf("unknown type %q", ri.Type)
	}
	prio, ok := models.ParsePriority(ri.Priority)
	if !ok {
		return models.InsightDraft{}, fmt.Errorf("unknown priority %q", ri.Priority)
	}
	if strings.TrimSpace(ri.Title) == "" {
		return models.InsightDraft{}, fmt.Errorf("missing title")
	}
	if ri.ConfidenceScore == nil {
		return models.InsightDraft{}, fmt.Errorf("missing confidence_score")
	}
	if *ri.ConfidenceScore < 0 || *ri.ConfidenceScore > 1 {
		return models.InsightDraft{}, fmt.Errorf("confidence_score %v out of range", *ri.ConfidenceScore)
	}

	return models.InsightDraft{
		Type:            typ,
		Priority:        prio,
		Title:           ri.Title,
		Description:     ri.Description,
		ContextQuote:    ri.ContextQuote,
		MessageID:       strings.TrimSpace(ri.MessageID),
		ConfidenceScore: *ri.ConfidenceScore,
		Client: models.ClientRef{
			Name:  strings.TrimSpace(ri.ClientName),
			Email: strings.TrimSpace(ri.ClientEmail),
		},
	}, nil
}
