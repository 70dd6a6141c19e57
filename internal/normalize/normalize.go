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

// Package normalize converts provider-native records into the canonical
// Communication shape. Each provider is one case of a switch over the
// integration type.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clientpulse/scanner/internal/gmail"
	"github.com/clientpulse/scanner/internal/models"
)

// UnknownSender is used when a mail message carries no From header.
const UnknownSender = "Unknown"

// Normalize converts a raw record. It returns false when the record has no
// usable text or no parseable timestamp; it never panics on malformed input.
func Normalize(rec models.RawRecord) (models.Communication, bool) {
	switch rec.Type {
	case models.IntegrationSlack:
		if rec.Chat == nil {
			return models.Communication{}, false
		}
		return chat(*rec.Chat)
	case models.IntegrationGmail:
		if rec.Mail == nil {
			return models.Communication{}, false
		}
		return mail(*rec.Mail)
	default:
		return models.Communication{}, false
	}
}

func chat(m models.ChatMessage) (models.Communication, bool) {
	if strings.TrimSpace(m.Text) == "" {
		return models.Communication{}, false
	}
	ts, err := ParseChatTimestamp(m.TS)
	if err != nil {
		return models.Communication{}, false
	}

	name := m.SenderName
	if name == "" {
		name = FallbackSenderName(m.User)
	}

	return models.Communication{
		Content:         m.Text,
		Timestamp:       ts,
		SenderName:      name,
		IntegrationType: models.IntegrationSlack,
		ExternalID:      ChatExternalID(m.Channel, m.TS),
		ThreadID:        m.ThreadTS,
	}, true
}

func mail(m models.MailMessage) (models.Communication, bool) {
	text := gmail.ExtractBody(m.Payload)
	if strings.TrimSpace(text) == "" {
		return models.Communication{}, false
	}
	ts, err := ParseMailTimestamp(m.InternalDate)
	if err != nil {
		return models.Communication{}, false
	}

	headers := gmail.ExtractHeaders(m.Payload)
	name, email := gmail.SenderFromHeader(headers["from"])
	if name == "" {
		name = UnknownSender
	}

	return models.Communication{
		Content:         text,
		Timestamp:       ts,
		SenderName:      name,
		SenderEmail:     email,
		IntegrationType: models.IntegrationGmail,
		ExternalID:      m.ID,
		ThreadID:        m.ThreadID,
	}, true
}

// ChatExternalID composes the provider-scoped ID of a chat message. A
// channel and timestamp pair is unique within a workspace.
func ChatExternalID(channel, ts string) string {
	return channel + "-" + ts
}

// FallbackSenderName is the synthetic display name used when a chat
// identity cannot be resolved.
func FallbackSenderName(userID string) string {
	return "User " + userID
}

// ParseChatTimestamp converts a fractional-seconds epoch string such as
// "1718000000.000200" to UTC, truncated to the millisecond.
func ParseChatTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty chat timestamp")
	}

	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse chat timestamp %q: %w", ts, err)
	}

	var ms int64
	if fracPart != "" {
		// Only the first three fractional digits matter at millisecond precision.
		frac := (fracPart + "000")[:3]
		ms, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse chat timestamp %q: %w", ts, err)
		}
	}

	return time.UnixMilli(sec*1000 + ms).UTC(), nil
}

// ParseMailTimestamp converts a millisecond epoch string to UTC.
func ParseMailTimestamp(ms string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(ms), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse mail timestamp %q: %w", ms, err)
	}
	if n <= 0 {
		return time.Time{}, fmt.Errorf("mail timestamp %q out of range", ms)
	}
	return time.UnixMilli(n).UTC(), nil
}
