package models

import "time"

// TokenState is the session's OAuth2 token material.
// If AccessToken is set, RefreshToken is set too; the identity provider
// never issues one without the other.
type TokenState struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SubjectID    string    `json:"subject_id,omitempty"`
}

// IsEmpty reports whether no login has succeeded yet (or the state was
// cleared after an irrecoverable auth failure).
func (t TokenState) IsEmpty() bool {
	return t.AccessToken == "" || t.RefreshToken == ""
}

// NeedsRefresh reports whether the access token is within skew of expiry.
func (t TokenState) NeedsRefresh(now time.Time, skew time.Duration) bool {
	return !now.Before(t.ExpiresAt.Add(-skew))
}
