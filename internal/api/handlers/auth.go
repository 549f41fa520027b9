package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/dom/dataroom/internal/api/middleware"
	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/service"
	"github.com/sirupsen/logrus"
)

// Values of the auth_error query parameter sent back to the frontend.
const (
	authErrorMissingParams  = "missing_params"
	authErrorInvalidState   = "invalid_state"
	authErrorTokenExchange  = "token_exchange_failed"
	authErrorSessionStorage = "session_store_failed"
)

type AuthHandler struct {
	oauthService *service.OAuthService
	frontendURL  string
	logger       logrus.FieldLogger
}

func NewAuthHandler(oauthService *service.OAuthService, frontendURL string, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		oauthService: oauthService,
		frontendURL:  frontendURL,
		logger:       logger,
	}
}

type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	AccessToken   string `json:"access_token,omitempty"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.oauthService.Begin(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to start oauth flow")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.WithField("error", providerErr).Warn("provider returned oauth error")
		h.redirectToFrontend(w, r, url.Values{"auth_error": {providerErr}})
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		h.redirectToFrontend(w, r, url.Values{"auth_error": {authErrorMissingParams}})
		return
	}

	sessionToken, err := h.oauthService.Complete(r.Context(), code, state)
	if err != nil {
		var reason string
		switch {
		case errors.Is(err, domain.ErrCsrfMismatch):
			reason = authErrorInvalidState
		case errors.Is(err, domain.ErrProviderRejected):
			reason = authErrorTokenExchange
		default:
			h.logger.WithError(err).Error("failed to complete oauth flow")
			reason = authErrorSessionStorage
		}
		h.redirectToFrontend(w, r, url.Values{"auth_error": {reason}})
		return
	}

	h.redirectToFrontend(w, r, url.Values{
		"auth_success":  {"true"},
		"session_token": {sessionToken},
	})
}

func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.oauthService.Status(r.Context(), r.URL.Query().Get("session_token"))
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			http.Error(w, "Authentication provider unavailable", http.StatusServiceUnavailable)
			return
		}
		h.logger.WithError(err).Error("failed to check session status")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Authenticated: status.Authenticated,
		AccessToken:   status.AccessToken,
	})
}

// Logout accepts the session token from the query string or the session
// header.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("session_token")
	if token == "" {
		token = r.Header.Get(middleware.SessionHeader)
	}

	if err := h.oauthService.Logout(r.Context(), token); err != nil {
		h.logger.WithError(err).Error("failed to log out")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *AuthHandler) redirectToFrontend(w http.ResponseWriter, r *http.Request, q url.Values) {
	http.Redirect(w, r, h.frontendURL+"?"+q.Encode(), http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
