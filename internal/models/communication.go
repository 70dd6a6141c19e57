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

// Package models defines the data structures shared across the scanner.
package models

import "time"

// IntegrationType tags the provider a record originated from.
type IntegrationType string

const (
	IntegrationSlack IntegrationType = "slack"
	IntegrationGmail IntegrationType = "gmail"
)

// Valid reports whether t is one of the supported providers.
func (t IntegrationType) Valid() bool {
	switch t {
	case IntegrationSlack, IntegrationGmail:
		return true
	}
	return false
}

// Integration is a configured source for one account. It is owned by the
// integration registry and only read here.
type Integration struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Type         IntegrationType `json:"type"`
	AccessToken  string          `json:"-"`
	RefreshToken string          `json:"-"`
	IsActive     bool            `json:"is_active"`
}

// Communication is the canonical, provider-agnostic message record.
//
// This struct's JSON serialisation is the contract handed to the reasoning
// engine and to downstream storage. ExternalID is deterministic so that
// overlapping scan windows produce identical IDs for the same message.
type Communication struct {
	Content         string          `json:"content"`
	Timestamp       time.Time       `json:"timestamp"`
	SenderName      string          `json:"sender_name,omitempty"`
	SenderEmail     string          `json:"sender_email,omitempty"`
	IntegrationType IntegrationType `json:"integration_type"`
	ExternalID      string          `json:"external_id"`
	ThreadID        string          `json:"thread_id,omitempty"`
}

// Identity is a resolved chat user.
type Identity struct {
	ID          string
	RealName    string
	DisplayName string
}

// Name returns the best available display name, or "" if none is set.
func (i *Identity) Name() string {
	if i == nil {
		return ""
	}
	if i.RealName != "" {
		return i.RealName
	}
	return i.DisplayName
}

// Channel is a chat conversation the account can read.
type Channel struct {
	ID   string
	Name string
}

// ChatMessage is a provider-native chat message. TS is the provider's
// fractional-seconds epoch string (e.g. "1718000000.000200").
type ChatMessage struct {
	Channel    string
	TS         string
	User       string
	SenderName string
	Text       string
	ThreadTS   string
}

// MailHeader is a single message header.
type MailHeader struct {
	Name  string
	Value string
}

// MailPart is one node of a (possibly multipart) mail payload. Data holds
// the base64url-encoded body, as delivered by the provider.
type MailPart struct {
	MimeType string
	Headers  []MailHeader
	Data     string
	Parts    []*MailPart
}

// MailMessage is a provider-native mail message. InternalDate is a
// millisecond epoch string.
type MailMessage struct {
	ID           string
	ThreadID     string
	Snippet      string
	InternalDate string
	Payload      *MailPart
}

// RawRecord is a tagged union over provider-native records. Exactly one of
// Chat or Mail is set, matching Type.
type RawRecord struct {
	Type IntegrationType
	Chat *ChatMessage
	Mail *MailMessage
}

// ChatRecord wraps a chat message as a RawRecord.
func ChatRecord(m ChatMessage) RawRecord {
	return RawRecord{Type: IntegrationSlack, Chat: &m}
}

// MailRecord wraps a mail message as a RawRecord.
func MailRecord(m MailMessage) RawRecord {
	return RawRecord{Type: IntegrationGmail, Mail: &m}
}
