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
	"encoding/base64"
	"testing"

	"github.com/clientpulse/scanner/internal/models"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

// TestExtractBody_IgnoresBinaryParts verifies that only text parts of a
// multipart payload contribute to the body.
func TestExtractBody_IgnoresBinaryParts(t *testing.T) {
	payload := &models.MailPart{
		MimeType: "multipart/mixed",
		Parts: []*models.MailPart{
			{MimeType: "text/plain", Data: encode("hello")},
			{MimeType: "image/png", Data: encode("\x89PNG\r\n\x1a\n")},
		},
	}

	if got := ExtractBody(payload); got != "hello" {
		t.Errorf("ExtractBody = %q, want %q", got, "hello")
	}
}

// TestExtractBody_Nested verifies recursion into nested multipart containers.
func TestExtractBody_Nested(t *testing.T) {
	payload := &models.MailPart{
		MimeType: "multipart/mixed",
		Parts: []*models.MailPart{
			{
				MimeType: "multipart/alternative",
				Parts: []*models.MailPart{
					{MimeType: "text/plain", Data: encode("plain ")},
					{MimeType: "text/html", Data: encode("<p>html</p>")},
				},
			},
			{MimeType: "application/pdf", Data: encode("%PDF")},
		},
	}

	if got := ExtractBody(payload); got != "plain <p>html</p>" {
		t.Errorf("ExtractBody = %q", got)
	}
}

// TestExtractBody_SinglePart verifies a non-multipart payload reads its own body.
func TestExtractBody_SinglePart(t *testing.T) {
	if got := ExtractBody(&models.MailPart{MimeType: "text/plain", Data: encode("just text")}); got != "just text" {
		t.Errorf("ExtractBody = %q", got)
	}
	if got := ExtractBody(&models.MailPart{MimeType: "image/jpeg", Data: encode("binary")}); got != "" {
		t.Errorf("ExtractBody on image = %q, want empty", got)
	}
}

// TestExtractBody_Malformed verifies bad input yields an empty string.
func TestExtractBody_Malformed(t *testing.T) {
	if got := ExtractBody(nil); got != "" {
		t.Errorf("nil payload = %q", got)
	}
	if got := ExtractBody(&models.MailPart{MimeType: "text/plain", Data: "***"}); got != "" {
		t.Errorf("undecodable payload = %q", got)
	}
	if got := ExtractBody(&models.MailPart{MimeType: "multipart/mixed", Parts: []*models.MailPart{nil}}); got != "" {
		t.Errorf("nil child = %q", got)
	}
}

// TestExtractHeaders verifies header names are lowercased.
func TestExtractHeaders(t *testing.T) {
	headers := ExtractHeaders(&models.MailPart{
		Headers: []models.MailHeader{
			{Name: "From", Value: "a@example.com"},
			{Name: "SUBJECT", Value: "Hi"},
			{Name: "X-Empty", Value: ""},
		},
	})

	if headers["from"] != "a@example.com" {
		t.Errorf("from = %q", headers["from"])
	}
	if headers["subject"] != "Hi" {
		t.Errorf("subject = %q", headers["subject"])
	}
	if _, ok := headers["x-empty"]; ok {
		t.Error("empty header should be skipped")
	}
	if len(ExtractHeaders(nil)) != 0 {
		t.Error("nil payload should yield no headers")
	}
}

// TestSenderFromHeader verifies From header parsing.
func TestSenderFromHeader(t *testing.T) {
	tests := []struct {
		from      string
		wantName  string
		wantEmail string
	}{
		{"Grace Hopper <grace@example.com>", "Grace Hopper", "grace@example.com"},
		{`"Hopper, Grace" <grace@example.com>`, "Hopper, Grace", "grace@example.com"},
		{"grace@example.com", "grace@example.com", "grace@example.com"},
		{"not an address", "not an address", "not an address"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			name, email := SenderFromHeader(tt.from)
			if name != tt.wantName || email != tt.wantEmail {
				t.Errorf("SenderFromHeader(%q) = %q, %q; want %q, %q", tt.from, name, email, tt.wantName, tt.wantEmail)
			}
		})
	}
}
