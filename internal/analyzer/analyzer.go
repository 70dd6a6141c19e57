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

// Package analyzer submits a communication batch to the reasoning engine in
// a single call and validates the structured relationship analysis it
// returns.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/clientpulse/scanner/internal/models"
)

// ErrMalformedResponse is returned when the engine's output does not match
// the expected result shape.
var ErrMalformedResponse = errors.New("malformed analysis response")

// ErrEmptyBatch is returned when Analyze is called with no communications.
var ErrEmptyBatch = errors.New("empty communication batch")

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
)

// Analyzer calls the Anthropic Messages API.
type Analyzer struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// Config holds the reasoning engine settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// New creates an analyzer from an API key. Extra request options are
// appended after the defaults.
func New(cfg Config, opts ...option.RequestOption) *Analyzer {
	all := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		all = append(all, option.WithBaseURL(cfg.BaseURL))
	}
	all = append(all, opts...)

	client := anthropic.NewClient(all...)
	return NewWithClient(&client, cfg.Model, cfg.MaxTokens)
}

// NewWithClient wraps an existing SDK client.
func NewWithClient(client *anthropic.Client, model string, maxTokens int) *Analyzer {
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Analyzer{client: client, model: model, maxTokens: int64(maxTokens)}
}

// Analyze submits the whole batch once and returns the validated result.
// Any failure (transport, quota, timeout or shape) is returned as an error;
// there is no partial result.
func (a *Analyzer) Analyze(ctx context.Context, comms []models.Communication, label string) (*models.AnalysisResult, error) {
	if len(comms) == 0 {
		return nil, ErrEmptyBatch
	}

	prompt, err := buildPrompt(comms, label)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(0.2),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analysis API call: %w", err)
	}

	slog.Info("analysis call complete",
		"model", a.model,
		"communications", len(comms),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"elapsed", time.Since(start),
	)

	if resp.StopReason == anthropic.StopReasonMaxTokens {
		return nil, fmt.Errorf("%w: output truncated at %d tokens", ErrMalformedResponse, a.maxTokens)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	return ParseResult(sb.String())
}

// promptMessage is the per-communication shape shown to the engine. The id
// lets the engine tie a context quote back to its source message.
type promptMessage struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Sender    string `json:"sender,omitempty"`
	Email     string `json:"sender_email,omitempty"`
	Timestamp string `json:"timestamp"`
	ThreadID  string `json:"thread_id,omitempty"`
	Content   string `json:"content"`
}

func buildPrompt(comms []models.Communication, label string) (string, error) {
	msgs := make([]promptMessage, 0, len(comms))
	for _, c := range comms {
		msgs = append(msgs, promptMessage{
			ID:        c.ExternalID,
			Source:    string(c.IntegrationType),
			Sender:    c.SenderName,
			Email:     c.SenderEmail,
			Timestamp: c.Timestamp.UTC().Format(time.RFC3339Nano),
			ThreadID:  c.ThreadID,
			Content:   c.Content,
		})
	}

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal communications: %w", err)
	}

	return fmt.Sprintf("Batch: %s\nMessages: %d\n\n%s", label, len(msgs), data), nil
}

var systemPrompt = `You analyse client communications for an account manager and report on the health of each client relationship.

Return ONLY a JSON object with this shape:
{
  "sentiment_score": number between -1 and 1 (overall sentiment across the batch),
  "insights": [
    {
      "type": one of ` + insightTypeList() + `,
      "priority": "low" | "medium" | "high",
      "title": short headline,
      "description": one or two sentences,
      "context_quote": verbatim excerpt from one message supporting the claim,
      "message_id": id of the quoted message,
      "confidence_score": number between 0 and 1,
      "client_name": client person or company the insight concerns,
      "client_email": client email address if known
    }
  ]
}
Return "insights": [] when nothing is noteworthy.`

func insightTypeList() string {
	types := models.InsightTypes()
	quoted := make([]string, 0, len(types))
	for _, t := range types {
		quoted = append(quoted, `"`+string(t)+`"`)
	}
	return strings.Join(quoted, " | ")
}
