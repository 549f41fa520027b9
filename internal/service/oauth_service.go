package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/oauthstate"
	"github.com/dom/dataroom/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"gorm.io/datatypes"
)

// Scopes requested from Google. openid and email let the callback record
// which account a session belongs to.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/drive.readonly",
	oidc.ScopeOpenID,
	"email",
}

// IDTokenVerifier is satisfied by *oidc.IDTokenVerifier.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// OAuthService drives the authorization-code flow and owns session
// creation and teardown.
type OAuthService struct {
	sessionRepo repository.SessionRepository
	oauth       *oauth2.Config
	states      *oauthstate.Issuer
	verifier    IDTokenVerifier
	tokens      *TokenService
	httpClient  *http.Client
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewOAuthService(
	sessionRepo repository.SessionRepository,
	oauthCfg *oauth2.Config,
	states *oauthstate.Issuer,
	verifier IDTokenVerifier,
	tokens *TokenService,
	httpClient *http.Client,
	logger logrus.FieldLogger,
) *OAuthService {
	return &OAuthService{
		sessionRepo: sessionRepo,
		oauth:       oauthCfg,
		states:      states,
		verifier:    verifier,
		tokens:      tokens,
		httpClient:  httpClient,
		logger:      logger.WithField("component", "oauth"),
		now:         time.Now,
	}
}

type StatusResult struct {
	Authenticated bool   `json:"authenticated"`
	AccessToken   string `json:"access_token,omitempty"`
}

// Begin returns the provider consent URL carrying a fresh signed state.
// Offline access and a forced consent prompt make Google return a refresh
// token every time.
func (s *OAuthService) Begin(ctx context.Context) (string, error) {
	state, err := s.states.Issue(ctx)
	if err != nil {
		return "", fmt.Errorf("issuing oauth state: %w", err)
	}
	return s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// Complete validates the callback, exchanges the code and persists a new
// session. It returns the opaque session token for the browser.
func (s *OAuthService) Complete(ctx context.Context, code, state string) (string, error) {
	if err := s.states.Verify(ctx, state); err != nil {
		if errors.Is(err, oauthstate.ErrInvalidState) {
			s.logger.WithError(err).Warn("Rejected oauth callback with bad state")
			return "", domain.ErrCsrfMismatch
		}
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("%w: missing authorization code", domain.ErrProviderRejected)
	}

	clientCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.oauth.Exchange(clientCtx, code)
	if err != nil {
		s.logger.WithError(err).Warn("Authorization code exchange failed")
		return "", fmt.Errorf("%w: %v", domain.ErrProviderRejected, err)
	}

	email, err := s.accountEmail(clientCtx, tok)
	if err != nil {
		s.logger.WithError(err).Warn("ID token verification failed")
		return "", fmt.Errorf("%w: %v", domain.ErrProviderRejected, err)
	}

	sessionToken, err := NewSessionToken()
	if err != nil {
		return "", err
	}

	scopes, err := grantedScopes(tok)
	if err != nil {
		return "", err
	}

	now := s.now()
	session := &domain.Session{
		TokenHash:    HashSessionToken(sessionToken),
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scopes:       scopes,
		AccountEmail: email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		session.TokenExpiry = &expiry
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session":     shortHash(session.TokenHash),
		"has_refresh": session.CanRefresh(),
	}).Info("Session created")

	return sessionToken, nil
}

// Logout deletes the session if it exists. Unknown tokens are not an error.
func (s *OAuthService) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	if err := s.sessionRepo.Delete(ctx, HashSessionToken(sessionToken)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Status reports whether the session is usable, refreshing its access token
// if needed. A dead or missing session is reported, not returned as an error.
func (s *OAuthService) Status(ctx context.Context, sessionToken string) (*StatusResult, error) {
	if sessionToken == "" {
		return &StatusResult{}, nil
	}

	accessToken, err := s.tokens.GetValidAccessToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrReauthRequired) {
			return &StatusResult{}, nil
		}
		return nil, err
	}

	return &StatusResult{Authenticated: true, AccessToken: accessToken}, nil
}

func (s *OAuthService) accountEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" || s.verifier == nil {
		return "", nil
	}

	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", err
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("decoding id token claims: %w", err)
	}
	return claims.Email, nil
}

func grantedScopes(tok *oauth2.Token) (datatypes.JSON, error) {
	scopes := []string{}
	if raw, ok := tok.Extra("scope").(string); ok {
		scopes = strings.Fields(raw)
	}
	b, err := json.Marshal(scopes)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
