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

package collector

import (
	"context"
	"fmt"

	"github.com/clientpulse/scanner/internal/gmail"
	"github.com/clientpulse/scanner/internal/models"
	"github.com/clientpulse/scanner/internal/slack"
)

// Providers builds the production Slack and Gmail adapters.
type Providers struct {
	SlackAPIURL string
	Google      gmail.OAuthConfig
}

// Chat returns a Slack adapter authenticated with the integration's token.
func (p Providers) Chat(_ context.Context, integ models.Integration) (ChatSource, error) {
	if integ.AccessToken == "" {
		return nil, fmt.Errorf("integration %s has no access token", integ.ID)
	}
	return slack.NewClient(integ.AccessToken, p.SlackAPIURL), nil
}

// Mail returns a Gmail adapter for the integration's token pair.
func (p Providers) Mail(ctx context.Context, integ models.Integration) (MailSource, error) {
	if integ.AccessToken == "" && integ.RefreshToken == "" {
		return nil, fmt.Errorf("integration %s has no tokens", integ.ID)
	}
	return gmail.NewFetcher(ctx, p.Google, integ.AccessToken, integ.RefreshToken)
}
