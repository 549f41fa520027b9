package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const sessionTokenBytes = 32

// NewSessionToken returns a fresh opaque session token suitable for a URL.
func NewSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSessionToken is the form a session token is stored and looked up by.
func HashSessionToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenService hands out usable provider access tokens for a session,
// refreshing them shortly before they expire.
type TokenService struct {
	sessionRepo repository.SessionRepository
	oauth       *oauth2.Config
	httpClient  *http.Client
	buffer      time.Duration
	sessionTTL  time.Duration
	logger      logrus.FieldLogger
	now         func() time.Time

	refreshes singleflight.Group
}

func NewTokenService(
	sessionRepo repository.SessionRepository,
	oauthCfg *oauth2.Config,
	httpClient *http.Client,
	buffer, sessionTTL time.Duration,
	logger logrus.FieldLogger,
) *TokenService {
	return &TokenService{
		sessionRepo: sessionRepo,
		oauth:       oauthCfg,
		httpClient:  httpClient,
		buffer:      buffer,
		sessionTTL:  sessionTTL,
		logger:      logger.WithField("component", "tokens"),
		now:         time.Now,
	}
}

// ValidateSession reports whether sessionToken names a live session without
// touching the provider.
func (s *TokenService) ValidateSession(ctx context.Context, sessionToken string) error {
	_, err := s.lookup(ctx, sessionToken)
	return err
}

// GetValidAccessToken returns an access token for the session that remains
// valid for at least the refresh buffer. Concurrent callers for the same
// session share a single refresh.
func (s *TokenService) GetValidAccessToken(ctx context.Context, sessionToken string) (string, error) {
	session, err := s.lookup(ctx, sessionToken)
	if err != nil {
		return "", err
	}

	if !session.NeedsRefresh(s.now(), s.buffer) {
		return session.AccessToken, nil
	}

	v, err, shared := s.refreshes.Do(session.TokenHash, func() (interface{}, error) {
		return s.refresh(ctx, session)
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.logger.WithField("session", shortHash(session.TokenHash)).Debug("Joined in-flight token refresh")
	}
	return v.(string), nil
}

// Invalidate marks the cached access token as unusable so the next
// GetValidAccessToken refreshes it. Used after the provider rejected it.
func (s *TokenService) Invalidate(ctx context.Context, sessionToken string) error {
	session, err := s.lookup(ctx, sessionToken)
	if err != nil {
		return err
	}
	session.TokenExpiry = nil
	if err := s.sessionRepo.UpdateTokens(ctx, session); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrSessionNotFound
		}
		return err
	}
	return nil
}

// PurgeExpired deletes sessions older than the session lifetime.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	if s.sessionTTL <= 0 {
		return 0, nil
	}
	n, err := s.sessionRepo.DeleteCreatedBefore(ctx, s.now().Add(-s.sessionTTL))
	if err != nil {
		return 0, fmt.Errorf("purging expired sessions: %w", err)
	}
	if n > 0 {
		s.logger.WithField("count", n).Info("Purged expired sessions")
	}
	return n, nil
}

func (s *TokenService) lookup(ctx context.Context, sessionToken string) (*domain.Session, error) {
	if sessionToken == "" {
		return nil, domain.ErrSessionNotFound
	}

	session, err := s.sessionRepo.GetByTokenHash(ctx, HashSessionToken(sessionToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	if s.sessionTTL > 0 && s.now().Sub(session.CreatedAt) > s.sessionTTL {
		if err := s.sessionRepo.Delete(ctx, session.TokenHash); err != nil {
			s.logger.WithError(err).Warn("Failed to delete aged-out session")
		}
		return nil, domain.ErrSessionNotFound
	}

	return session, nil
}

func (s *TokenService) refresh(ctx context.Context, session *domain.Session) (string, error) {
	log := s.logger.WithField("session", shortHash(session.TokenHash))

	if !session.CanRefresh() {
		log.Warn("Access token expired and no refresh token held, dropping session")
		s.dropSession(ctx, session)
		return "", domain.ErrReauthRequired
	}

	clientCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.oauth.TokenSource(clientCtx, &oauth2.Token{RefreshToken: session.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			log.WithError(err).Warn("Provider refused token refresh, dropping session")
			s.dropSession(ctx, session)
			return "", fmt.Errorf("%w: %v", domain.ErrReauthRequired, err)
		}
		log.WithError(err).Error("Token refresh failed")
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	session.AccessToken = tok.AccessToken
	session.TokenExpiry = nil
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		session.TokenExpiry = &expiry
	}
	if tok.RefreshToken != "" {
		session.RefreshToken = tok.RefreshToken
	}

	if err := s.sessionRepo.UpdateTokens(ctx, session); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Logged out while the refresh was in flight.
			return "", domain.ErrSessionNotFound
		}
		return "", fmt.Errorf("storing refreshed token: %w", err)
	}

	log.WithField("expiry", session.TokenExpiry).Info("Refreshed access token")
	return tok.AccessToken, nil
}

func (s *TokenService) dropSession(ctx context.Context, session *domain.Session) {
	if err := s.sessionRepo.Delete(ctx, session.TokenHash); err != nil {
		s.logger.WithError(err).Warn("Failed to delete session")
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
