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

// Package gmail is the mail source adapter. It searches a mailbox for
// messages received inside the scan window using the Gmail API and converts
// them into provider-native mail records.
package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/clientpulse/scanner/internal/models"
)

const user = "me"

// Fetcher retrieves recent messages from one mailbox.
type Fetcher struct {
	srv *gmailapi.Service
}

// OAuthConfig holds the OAuth client used to refresh mailbox tokens.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
}

// NewFetcher creates a mail adapter from a stored access/refresh token pair.
// When both a refresh token and client credentials are available the token
// is treated as expired so the first call obtains a fresh access token.
func NewFetcher(ctx context.Context, oc OAuthConfig, accessToken, refreshToken string) (*Fetcher, error) {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	conf := &oauth2.Config{
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		Endpoint:     google.Endpoint,
	}
	if refreshToken != "" && conf.ClientID != "" && conf.ClientSecret != "" {
		token.Expiry = time.Now()
	}

	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, token))
	return NewFetcherWithClient(ctx, client, "")
}

// NewFetcherWithClient creates a mail adapter using an already
// authenticated HTTP client. endpoint overrides the API root when non-empty.
func NewFetcherWithClient(ctx context.Context, httpClient *http.Client, endpoint string) (*Fetcher, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	srv, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Fetcher{srv: srv}, nil
}

// FetchRecent returns up to max messages received on or after the day the
// window starts, in the order the search returns them. Search failure is
// returned; a single message's retrieval failure is logged and skipped.
func (f *Fetcher) FetchRecent(ctx context.Context, since time.Time, max int) ([]models.MailMessage, error) {
	list, err := f.srv.Users.Messages.List(user).
		Q(SearchQuery(since)).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]models.MailMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := f.srv.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			slog.Warn("failed to fetch mail message",
				"message_id", ref.Id,
				"error", err,
			)
			continue
		}
		messages = append(messages, convertMessage(msg))
	}

	slog.Debug("mail messages fetched",
		"listed", len(list.Messages),
		"fetched", len(messages),
	)

	return messages, nil
}

// SearchQuery builds the search for messages received after the window
// start, expressed in epoch seconds.
func SearchQuery(since time.Time) string {
	return "after:" + strconv.FormatInt(since.Unix(), 10)
}

func convertMessage(msg *gmailapi.Message) models.MailMessage {
	return models.MailMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		InternalDate: strconv.FormatInt(msg.InternalDate, 10),
		Payload:      convertPart(msg.Payload),
	}
}

func convertPart(p *gmailapi.MessagePart) *models.MailPart {
	if p == nil {
		return nil
	}

	part := &models.MailPart{MimeType: p.MimeType}
	for _, h := range p.Headers {
		if h == nil {
			continue
		}
		part.Headers = append(part.Headers, models.MailHeader{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		if c := convertPart(child); c != nil {
			part.Parts = append(part.Parts, c)
		}
	}
	return part
}
