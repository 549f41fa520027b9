package testutil

import (
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/events"
	"github.com/dom/dataroom/internal/service"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionBuilder creates test sessions with a builder pattern
type SessionBuilder struct {
	accessToken  string
	refreshToken string
	expiry       *time.Time
	createdAt    time.Time
	email        string
}

// NewSessionBuilder creates a session holding a refresh token whose access
// token is valid for another hour.
func NewSessionBuilder() *SessionBuilder {
	expiry := time.Now().Add(time.Hour)
	return &SessionBuilder{
		accessToken:  "access-seeded",
		refreshToken: "refresh-seeded",
		expiry:       &expiry,
		createdAt:    time.Now(),
		email:        "user@example.com",
	}
}

func (b *SessionBuilder) WithAccessToken(token string) *SessionBuilder {
	b.accessToken = token
	return b
}

func (b *SessionBuilder) WithRefreshToken(token string) *SessionBuilder {
	b.refreshToken = token
	return b
}

// ExpiringIn sets the access token expiry relative to now
func (b *SessionBuilder) ExpiringIn(d time.Duration) *SessionBuilder {
	expiry := time.Now().Add(d)
	b.expiry = &expiry
	return b
}

// WithoutExpiry leaves the expiry unknown
func (b *SessionBuilder) WithoutExpiry() *SessionBuilder {
	b.expiry = nil
	return b
}

func (b *SessionBuilder) CreatedAt(at time.Time) *SessionBuilder {
	b.createdAt = at
	return b
}

// Build stores the session and returns the raw session token with it
func (b *SessionBuilder) Build(t *testing.T, db *gorm.DB) (string, *domain.Session) {
	t.Helper()

	token, err := service.NewSessionToken()
	if err != nil {
		t.Fatalf("failed to generate session token: %v", err)
	}

	session := &domain.Session{
		TokenHash:    service.HashSessionToken(token),
		AccessToken:  b.accessToken,
		RefreshToken: b.refreshToken,
		TokenExpiry:  b.expiry,
		Scopes:       datatypes.JSON(`[]`),
		AccountEmail: b.email,
		CreatedAt:    b.createdAt,
		UpdatedAt:    b.createdAt,
	}

	if err := db.Create(session).Error; err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	return token, session
}

// DoRequest sends a request with an optional session header. The caller
// closes the response body.
func DoRequest(t *testing.T, method, url, sessionToken string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionToken != "" {
		req.Header.Set("X-Session-Token", sessionToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, url, err)
	}
	return resp
}

// NoRedirectClient returns a client that hands back redirects instead of
// following them.
func NoRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// RecordingPublisher keeps every published event
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *RecordingPublisher) Publish(evt *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

// Types returns the types of the events published so far, in order
func (p *RecordingPublisher) Types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.EventType, 0, len(p.events))
	for _, evt := range p.events {
		types = append(types, evt.Type)
	}
	return types
}
