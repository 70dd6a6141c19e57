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

package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/clientpulse/scanner/internal/models"
)

// TestNewEvent verifies the envelope carries the summary and insights but
// not the communications.
func TestNewEvent(t *testing.T) {
	out := &models.ScanOutput{
		Summary: models.ScanSummary{RunID: "run-1", AccountID: "acct", CommunicationsCount: 2, InsightsCount: 1},
		Communications: []models.Communication{
			{ExternalID: "m1", Content: "private text"},
			{ExternalID: "m2", Content: "more private text"},
		},
		Insights: []models.Insight{{ID: "ins-1", Type: models.InsightRisk, Priority: models.PriorityHigh}},
	}

	ev := NewEvent(out)
	if ev.Type != EventScanCompleted {
		t.Errorf("type = %q", ev.Type)
	}
	if ev.ID == "" {
		t.Error("missing event id")
	}
	if time.Since(ev.PublishedAt) > time.Minute {
		t.Errorf("published at = %v", ev.PublishedAt)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	json.Unmarshal(data, &decoded)

	if _, ok := decoded["communications"]; ok {
		t.Error("event should not carry communications")
	}
	summary, _ := decoded["summary"].(map[string]any)
	if summary["run_id"] != "run-1" {
		t.Errorf("summary = %v", summary)
	}
	if list, _ := decoded["insights"].([]any); len(list) != 1 {
		t.Errorf("insights = %v", decoded["insights"])
	}

	if NewEvent(out).ID == ev.ID {
		t.Error("event ids should be unique")
	}
}
