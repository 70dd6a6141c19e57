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

package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeGmail serves the two Gmail endpoints the fetcher uses.
type fakeGmail struct {
	mu       sync.Mutex
	query    string
	max      string
	messages map[string]map[string]any
	order    []string
	failGet  map[string]bool
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	const prefix = "/gmail/v1/users/me/messages"

	switch {
	case r.URL.Path == prefix:
		f.query = r.URL.Query().Get("q")
		f.max = r.URL.Query().Get("maxResults")
		var refs []map[string]string
		for _, id := range f.order {
			refs = append(refs, map[string]string{"id": id, "threadId": "t-" + id})
		}
		json.NewEncoder(w).Encode(map[string]any{"messages": refs})

	case strings.HasPrefix(r.URL.Path, prefix+"/"):
		id := strings.TrimPrefix(r.URL.Path, prefix+"/")
		if f.failGet[id] {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":500,"message":"boom"}}`))
			return
		}
		msg, ok := f.messages[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
			return
		}
		json.NewEncoder(w).Encode(msg)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func message(id, from, body string) map[string]any {
	return map[string]any{
		"id":           id,
		"threadId":     "t-" + id,
		"internalDate": "1718000000123",
		"payload": map[string]any{
			"mimeType": "multipart/alternative",
			"headers":  []map[string]string{{"name": "From", "value": from}},
			"parts": []map[string]any{
				{"mimeType": "text/plain", "body": map[string]string{"data": encode(body)}},
			},
		},
	}
}

func newTestFetcher(t *testing.T, fake *fakeGmail) *Fetcher {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	f, err := NewFetcherWithClient(context.Background(), server.Client(), server.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return f
}

// TestFetchRecent verifies search, per-message retrieval and conversion.
func TestFetchRecent(t *testing.T) {
	fake := &fakeGmail{
		order: []string{"m1", "m2"},
		messages: map[string]map[string]any{
			"m1": message("m1", "Ada <ada@example.com>", "first"),
			"m2": message("m2", "Grace <grace@example.com>", "second"),
		},
	}
	f := newTestFetcher(t, fake)

	since := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	msgs, err := f.FetchRecent(context.Background(), since, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.query != "after:1772636400" {
		t.Errorf("query = %q", fake.query)
	}
	if fake.max != "100" {
		t.Errorf("maxResults = %q", fake.max)
	}

	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("order = %s, %s", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].InternalDate != "1718000000123" {
		t.Errorf("internal date = %q", msgs[0].InternalDate)
	}
	if got := ExtractBody(msgs[1].Payload); got != "second" {
		t.Errorf("body = %q", got)
	}
	if got := ExtractHeaders(msgs[0].Payload)["from"]; got != "Ada <ada@example.com>" {
		t.Errorf("from = %q", got)
	}
}

// TestFetchRecent_SkipsFailedMessage verifies one failed get does not
// abort the fetch.
func TestFetchRecent_SkipsFailedMessage(t *testing.T) {
	fake := &fakeGmail{
		order: []string{"m1", "m2", "m3"},
		messages: map[string]map[string]any{
			"m1": message("m1", "a@example.com", "one"),
			"m3": message("m3", "c@example.com", "three"),
		},
		failGet: map[string]bool{"m2": true},
	}
	f := newTestFetcher(t, fake)

	msgs, err := f.FetchRecent(context.Background(), time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m3" {
		t.Errorf("ids = %s, %s", msgs[0].ID, msgs[1].ID)
	}
}

// TestFetchRecent_ListFailure verifies a failed search is returned.
func TestFetchRecent_ListFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"invalid credentials"}}`))
	}))
	defer server.Close()

	f, err := NewFetcherWithClient(context.Background(), server.Client(), server.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.FetchRecent(context.Background(), time.Now(), 10); err == nil {
		t.Fatal("expected error from failed search")
	}
}

// TestSearchQuery verifies the query bounds the window to the second,
// independent of the caller's time zone.
func TestSearchQuery(t *testing.T) {
	tests := []struct {
		name  string
		since time.Time
		want  string
	}{
		{"early UTC morning", time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC), "after:1792292400"},
		{"offset zone", time.Date(2026, 10, 18, 13, 0, 0, 0, time.FixedZone("UTC+10", 10*60*60)), "after:1792292400"},
		{"sub-second truncated", time.Date(2026, 10, 18, 3, 0, 0, 999_000_000, time.UTC), "after:1792292400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchQuery(tt.since); got != tt.want {
				t.Errorf("SearchQuery = %q, want %q", got, tt.want)
			}
		})
	}
}
