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

package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSlack serves the Web API methods the client calls.
type fakeSlack struct {
	mu        sync.Mutex
	dms       []string
	channels  []map[string]any
	history   map[string][]map[string]string
	failHist  map[string]bool
	users     map[string]map[string]any
	oldest    map[string]string
	listTypes []string

	// dmPageSize pages the im listing when set; the cursor is the offset.
	dmPageSize int
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r.ParseForm()
	w.Header().Set("Content-Type", "application/json")

	switch strings.TrimPrefix(r.URL.Path, "/") {
	case "conversations.list":
		types := r.Form.Get("types")
		f.listTypes = append(f.listTypes, types)
		var chans []map[string]any
		next := ""
		if types == "im" {
			ids := f.dms
			if f.dmPageSize > 0 {
				start, _ := strconv.Atoi(r.Form.Get("cursor"))
				end := min(start+f.dmPageSize, len(ids))
				ids = ids[start:end]
				if end < len(f.dms) {
					next = strconv.Itoa(end)
				}
			}
			for _, id := range ids {
				chans = append(chans, map[string]any{"id": id, "is_im": true})
			}
		} else {
			chans = f.channels
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok":                true,
			"channels":          chans,
			"response_metadata": map[string]string{"next_cursor": next},
		})

	case "conversations.history":
		ch := r.Form.Get("channel")
		if f.oldest == nil {
			f.oldest = make(map[string]string)
		}
		f.oldest[ch] = r.Form.Get("oldest")
		if f.failHist[ch] {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"messages": f.history[ch],
			"has_more": false,
		})

	case "users.info":
		u, ok := f.users[r.Form.Get("user")]
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "user_not_found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "user": u})

	default:
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "unknown_method"})
	}
}

func newTestClient(t *testing.T, fake *fakeSlack) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return NewClient("xoxb-test", server.URL+"/")
}

func msg(user, text, ts string) map[string]string {
	return map[string]string{"type": "message", "user": user, "text": text, "ts": ts}
}

// TestDirectMessages verifies DM histories are concatenated in conversation
// order and a failed conversation is skipped.
func TestDirectMessages(t *testing.T) {
	fake := &fakeSlack{
		dms: []string{"D1", "D2", "D3"},
		history: map[string][]map[string]string{
			"D1": {msg("U1", "hello", "1718000000.000100")},
			"D3": {msg("U3", "ping", "1718000000.000300"), msg("U3", "pong", "1718000000.000200")},
		},
		failHist: map[string]bool{"D2": true},
	}
	c := newTestClient(t, fake)

	since := time.Unix(1717900000, 0)
	got, err := c.DirectMessages(context.Background(), since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	want := []string{"D1-hello", "D3-ping", "D3-pong"}
	for i, m := range got {
		if key := m.Channel + "-" + m.Text; key != want[i] {
			t.Errorf("message %d = %q, want %q", i, key, want[i])
		}
	}
	if fake.oldest["D1"] != "1717900000" {
		t.Errorf("oldest = %q, want 1717900000", fake.oldest["D1"])
	}
	if len(fake.listTypes) != 1 || fake.listTypes[0] != "im" {
		t.Errorf("list types = %v", fake.listTypes)
	}
}

// TestDirectMessages_Paged verifies every page of the DM listing is read.
func TestDirectMessages_Paged(t *testing.T) {
	fake := &fakeSlack{
		dms:        []string{"D1", "D2", "D3", "D4", "D5"},
		dmPageSize: 2,
		history: map[string][]map[string]string{
			"D1": {msg("U1", "first", "1718000000.000100")},
			"D5": {msg("U5", "last", "1718000000.000500")},
		},
	}
	c := newTestClient(t, fake)

	got, err := c.DirectMessages(context.Background(), time.Unix(1717900000, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.listTypes) != 3 {
		t.Errorf("list calls = %d, want 3", len(fake.listTypes))
	}
	if len(fake.oldest) != 5 {
		t.Errorf("histories read = %d, want 5", len(fake.oldest))
	}
	if len(got) != 2 || got[0].Text != "first" || got[1].Text != "last" {
		t.Errorf("messages = %+v", got)
	}
}

// TestChannels verifies the channel listing.
func TestChannels(t *testing.T) {
	fake := &fakeSlack{
		channels: []map[string]any{
			{"id": "C1", "name": "general", "is_channel": true},
			{"id": "C2", "name": "acme-shared", "is_channel": true},
		},
	}
	c := newTestClient(t, fake)

	chans, err := c.Channels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chans) != 2 || chans[0].ID != "C1" || chans[1].Name != "acme-shared" {
		t.Errorf("channels = %+v", chans)
	}
	if fake.listTypes[0] != "public_channel,private_channel" {
		t.Errorf("types = %q", fake.listTypes[0])
	}
}

// TestChannelHistory_Truncates verifies the history is capped at the limit
// while keeping provider order.
func TestChannelHistory_Truncates(t *testing.T) {
	var page []map[string]string
	for i := 20; i > 0; i-- {
		page = append(page, msg("U1", fmt.Sprintf("m%d", i), fmt.Sprintf("1718000000.%06d", i)))
	}
	fake := &fakeSlack{history: map[string][]map[string]string{"C1": page}}
	c := newTestClient(t, fake)

	got, err := c.ChannelHistory(context.Background(), "C1", time.Unix(1717000000, 0), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d messages, want 10", len(got))
	}
	if got[0].Text != "m20" || got[9].Text != "m11" {
		t.Errorf("first/last = %q/%q", got[0].Text, got[9].Text)
	}
}

// TestChannelHistory_Error verifies a failed history call is returned.
func TestChannelHistory_Error(t *testing.T) {
	c := newTestClient(t, &fakeSlack{failHist: map[string]bool{"C9": true}})

	if _, err := c.ChannelHistory(context.Background(), "C9", time.Now(), 10); err == nil {
		t.Fatal("expected error")
	}
}

// TestResolveSender verifies identity lookup and its failure.
func TestResolveSender(t *testing.T) {
	fake := &fakeSlack{
		users: map[string]map[string]any{
			"U1": {"id": "U1", "real_name": "Ada Lovelace", "profile": map[string]string{"display_name": "ada"}},
		},
	}
	c := newTestClient(t, fake)

	id, err := c.ResolveSender(context.Background(), "U1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Name() != "Ada Lovelace" {
		t.Errorf("name = %q", id.Name())
	}
	if id.DisplayName != "ada" {
		t.Errorf("display name = %q", id.DisplayName)
	}

	if _, err := c.ResolveSender(context.Background(), "U404"); err == nil {
		t.Error("expected error for unknown user")
	}
}
