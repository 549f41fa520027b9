package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Session maps an opaque, browser-held session token to the provider
// credentials. Only the digest of the token is stored.
type Session struct {
	TokenHash    string         `json:"-" gorm:"primaryKey;size:64"`
	AccessToken  string         `json:"-" gorm:"not null"`
	RefreshToken string         `json:"-"`
	TokenExpiry  *time.Time     `json:"tokenExpiry"`
	Scopes       datatypes.JSON `json:"scopes"`
	AccountEmail string         `json:"accountEmail"`
	CreatedAt    time.Time      `json:"createdAt" gorm:"index"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// CanRefresh reports whether the session holds a refresh token.
func (s *Session) CanRefresh() bool {
	return s.RefreshToken != ""
}

// NeedsRefresh reports whether the cached access token expires within buffer
// of now. An unknown expiry counts as expired.
func (s *Session) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	if s.TokenExpiry == nil || s.AccessToken == "" {
		return true
	}
	return !s.TokenExpiry.After(now.Add(buffer))
}
