package domain_test

import (
	"testing"
	"time"

	"github.com/dom/dataroom/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSession_NeedsRefresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name    string
		session domain.Session
		want    bool
	}{
		{
			name:    "fresh token",
			session: domain.Session{AccessToken: "a", TokenExpiry: at(time.Hour)},
			want:    false,
		},
		{
			name:    "expires inside buffer",
			session: domain.Session{AccessToken: "a", TokenExpiry: at(2 * time.Minute)},
			want:    true,
		},
		{
			name:    "expires exactly at buffer edge",
			session: domain.Session{AccessToken: "a", TokenExpiry: at(5 * time.Minute)},
			want:    true,
		},
		{
			name:    "already expired",
			session: domain.Session{AccessToken: "a", TokenExpiry: at(-time.Minute)},
			want:    true,
		},
		{
			name:    "unknown expiry",
			session: domain.Session{AccessToken: "a"},
			want:    true,
		},
		{
			name:    "no cached token",
			session: domain.Session{TokenExpiry: at(time.Hour)},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.NeedsRefresh(now, 5*time.Minute))
		})
	}
}

func TestSession_CanRefresh(t *testing.T) {
	assert.False(t, (&domain.Session{}).CanRefresh())
	assert.True(t, (&domain.Session{RefreshToken: "r"}).CanRefresh())
}
