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

// Package dedup remembers which communications have already been analysed,
// using Redis keys with a TTL. Scan windows overlap from one run to the
// next, so without it the same messages would be re-analysed.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clientpulse/scanner/internal/models"
)

const (
	// DefaultTTL is how long we remember a seen external ID. It must
	// exceed the scan lookback window.
	DefaultTTL = 48 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "scanner:seen:"
)

// Filter tracks which communications have already been analysed.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// Unseen returns the communications not yet marked for this account,
// preserving order, and the number skipped.
func (f *Filter) Unseen(ctx context.Context, accountID string, comms []models.Communication) ([]models.Communication, int, error) {
	if len(comms) == 0 {
		return comms, 0, nil
	}

	pipe := f.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(comms))
	for i, c := range comms {
		cmds[i] = pipe.Exists(ctx, key(accountID, c.ExternalID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, 0, fmt.Errorf("dedup EXISTS: %w", err)
	}

	out := make([]models.Communication, 0, len(comms))
	for i, c := range comms {
		if cmds[i].Val() > 0 {
			continue
		}
		out = append(out, c)
	}
	return out, len(comms) - len(out), nil
}

// MarkSeen records the communications as analysed.
func (f *Filter) MarkSeen(ctx context.Context, accountID string, comms []models.Communication) error {
	if len(comms) == 0 {
		return nil
	}

	pipe := f.rdb.Pipeline()
	for _, c := range comms {
		pipe.SetNX(ctx, key(accountID, c.ExternalID), 1, f.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dedup SETNX: %w", err)
	}
	return nil
}

func key(accountID, externalID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, accountID, externalID)
}
