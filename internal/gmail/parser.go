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
	"net/mail"
	"strings"

	"github.com/clientpulse/scanner/internal/models"
)

// ExtractBody returns the concatenated text of a payload. It descends into
// multipart containers and reads only text/plain and text/html parts;
// attachments and other MIME types are ignored. Undecodable bodies
// contribute nothing, so a malformed payload yields "" rather than an error.
func ExtractBody(part *models.MailPart) string {
	if part == nil {
		return ""
	}

	var sb strings.Builder
	if part.MimeType == "" || isText(part.MimeType) {
		sb.WriteString(decodeBody(part.Data))
	}

	for _, child := range part.Parts {
		if child == nil {
			continue
		}
		if isText(child.MimeType) || isMultipart(child.MimeType) {
			sb.WriteString(ExtractBody(child))
		}
	}

	return sb.String()
}

// ExtractHeaders returns the payload's top-level headers keyed by lowercase
// name. Later duplicates overwrite earlier ones.
func ExtractHeaders(part *models.MailPart) map[string]string {
	headers := make(map[string]string)
	if part == nil {
		return headers
	}
	for _, h := range part.Headers {
		if h.Name == "" || h.Value == "" {
			continue
		}
		headers[strings.ToLower(h.Name)] = h.Value
	}
	return headers
}

// SenderFromHeader splits a From header into display name and address.
// When the header does not parse as an address the raw value is used for
// both.
func SenderFromHeader(from string) (name, email string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	addr, err := mail.ParseAddress(from)
	if err != nil {
		return from, from
	}
	if addr.Name != "" {
		return addr.Name, addr.Address
	}
	return addr.Address, addr.Address
}

func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	// The API uses base64url; padding is present on some payloads and not others.
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

func isText(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	return mt == "text/plain" || mt == "text/html"
}

func isMultipart(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "multipart/")
}
