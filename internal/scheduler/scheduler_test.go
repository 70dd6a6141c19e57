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

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clientpulse/scanner/internal/scan"
)

type mockAccounts struct {
	ids []string
	err error
}

func (m *mockAccounts) AccountsWithActiveIntegrations(_ context.Context) ([]string, error) {
	return m.ids, m.err
}

// mockRunner records each account it was asked to scan.
type mockRunner struct {
	mu    sync.Mutex
	runs  []string
	fail  map[string]bool
	ticks chan struct{}
}

func (m *mockRunner) Run(_ context.Context, accountID string) (*scan.Result, error) {
	m.mu.Lock()
	m.runs = append(m.runs, accountID)
	m.mu.Unlock()
	if m.ticks != nil {
		select {
		case m.ticks <- struct{}{}:
		default:
		}
	}
	if m.fail[accountID] {
		return nil, errors.New("scan failed")
	}
	return &scan.Result{}, nil
}

func (m *mockRunner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// TestTick_RunsEachAccount verifies one run per account and that a failed
// run does not stop the rest.
func TestTick_RunsEachAccount(t *testing.T) {
	r := &mockRunner{fail: map[string]bool{"b": true}}
	s := New(&mockAccounts{ids: []string{"a", "b", "c"}}, r, time.Hour)

	s.Tick(context.Background())

	if got := r.runs; len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("runs = %v, want [a b c]", got)
	}
}

// TestTick_ListFailure verifies no run happens when accounts cannot be listed.
func TestTick_ListFailure(t *testing.T) {
	r := &mockRunner{}
	New(&mockAccounts{err: errors.New("db down")}, r, time.Hour).Tick(context.Background())

	if r.count() != 0 {
		t.Errorf("runs = %d, want 0", r.count())
	}
}

// TestStart_Periodic verifies the loop ticks and stops cleanly.
func TestStart_Periodic(t *testing.T) {
	r := &mockRunner{ticks: make(chan struct{}, 1)}
	s := New(&mockAccounts{ids: []string{"a"}}, r, 10*time.Millisecond)

	s.Start(context.Background())
	select {
	case <-r.ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never ran")
	}
	s.Stop()

	n := r.count()
	time.Sleep(50 * time.Millisecond)
	if r.count() != n {
		t.Errorf("runs continued after Stop: %d -> %d", n, r.count())
	}
}

// TestStart_Disabled verifies a zero interval starts nothing.
func TestStart_Disabled(t *testing.T) {
	r := &mockRunner{}
	s := New(&mockAccounts{ids: []string{"a"}}, r, 0)

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	if r.count() != 0 {
		t.Errorf("runs = %d, want 0", r.count())
	}
}
