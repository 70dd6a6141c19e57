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

// Package slack is the chat source adapter. It reads direct-message and
// channel history through the Slack Web API and returns provider-native
// chat messages for normalisation.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/slack-go/slack"

	"github.com/clientpulse/scanner/internal/models"
)

const (
	// dmHistoryLimit caps messages read per direct-message conversation.
	dmHistoryLimit = 50
	// historyPageSize is the page requested from conversations.history
	// before truncating to the caller's limit.
	historyPageSize = 100
	// listPageSize is the page requested from conversations.list.
	listPageSize = 200
)

// Client reads chat history for one workspace token.
type Client struct {
	api *slack.Client
}

// NewClient creates a chat adapter authenticated with a bearer token.
// apiURL overrides the Web API root (it must end in "/"); empty uses the
// public endpoint.
func NewClient(token, apiURL string) *Client {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &Client{api: slack.New(token, opts...)}
}

// DirectMessages returns messages posted since the given time across every
// direct-message conversation. Listing failure is returned; a single
// conversation's history failure is logged and that conversation skipped.
func (c *Client) DirectMessages(ctx context.Context, since time.Time) ([]models.ChatMessage, error) {
	dms, err := c.directConversations(ctx)
	if err != nil {
		return nil, err
	}

	var messages []models.ChatMessage
	for _, dm := range dms {
		history, err := c.history(ctx, dm.ID, since, dmHistoryLimit)
		if err != nil {
			slog.Warn("failed to fetch DM history",
				"channel_id", dm.ID,
				"error", err,
			)
			continue
		}
		messages = append(messages, history...)
	}

	return messages, nil
}

// directConversations pages through every direct-message conversation.
func (c *Client) directConversations(ctx context.Context) ([]slack.Channel, error) {
	params := &slack.GetConversationsParameters{
		Types:           []string{"im"},
		ExcludeArchived: true,
		Limit:           listPageSize,
	}

	var all []slack.Channel
	for {
		page, cursor, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list direct messages: %w", err)
		}
		all = append(all, page...)
		if cursor == "" {
			return all, nil
		}
		params.Cursor = cursor
	}
}

// Channels lists public and private channels, archived ones excluded.
func (c *Client) Channels(ctx context.Context) ([]models.Channel, error) {
	chans, _, err := c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		ExcludeArchived: true,
		Limit:           listPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	out := make([]models.Channel, 0, len(chans))
	for _, ch := range chans {
		out = append(out, models.Channel{ID: ch.ID, Name: ch.Name})
	}
	return out, nil
}

// ChannelHistory returns up to limit of the most recent messages posted to
// a channel since the given time, in provider order (newest first).
func (c *Client) ChannelHistory(ctx context.Context, channelID string, since time.Time, limit int) ([]models.ChatMessage, error) {
	msgs, err := c.history(ctx, channelID, since, historyPageSize)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// ResolveSender looks up a user's identity.
func (c *Client) ResolveSender(ctx context.Context, userID string) (*models.Identity, error) {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("users.info %s: %w", userID, err)
	}
	return &models.Identity{
		ID:          u.ID,
		RealName:    u.RealName,
		DisplayName: u.Profile.DisplayName,
	}, nil
}

func (c *Client) history(ctx context.Context, channelID string, since time.Time, limit int) ([]models.ChatMessage, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    oldest(since),
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("conversations.history %s: %w", channelID, err)
	}

	out := make([]models.ChatMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, models.ChatMessage{
			Channel:  channelID,
			TS:       m.Timestamp,
			User:     m.User,
			Text:     m.Text,
			ThreadTS: m.ThreadTimestamp,
		})
	}
	return out, nil
}

// oldest formats the window start as whole epoch seconds.
func oldest(since time.Time) string {
	if since.IsZero() {
		return ""
	}
	return strconv.FormatInt(since.Unix(), 10)
}
