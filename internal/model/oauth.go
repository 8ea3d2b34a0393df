package model

import "time"

// OAuthState is the persisted authentication state for the helpdesk's OAuth2
// client credentials + refresh-token flow.
type OAuthState struct {
	ClientID     string    `json:"client_id"`
	OrgID        string    `json:"org_id"`
	AccessToken  string    `json:"access_token"`
	AccessExpiry time.Time `json:"access_expiry"`
	RefreshToken string    `json:"refresh_token"`
}

const RefreshSafetyMargin = 5 * time.Minute

// NeedsRefresh reports whether the access token should be refreshed now,
// applying the 5-minute safety margin from spec §3/§4.3.
func (s OAuthState) NeedsRefresh(now time.Time) bool {
	if s.AccessToken == "" {
		return true
	}
	return !now.Before(s.AccessExpiry.Add(-RefreshSafetyMargin))
}
