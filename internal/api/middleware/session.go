package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/dom/dataroom/internal/domain"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	SessionTokenKey contextKey = "sessionToken"

	// SessionHeader carries the opaque session token on mutating requests.
	SessionHeader = "X-Session-Token"
)

type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionToken string) error
}

// Session rejects requests without a live session and stores the token in
// the request context.
func Session(validator SessionValidator, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(SessionHeader)
			if token == "" {
				http.Error(w, "Not authenticated", http.StatusUnauthorized)
				return
			}

			if err := validator.ValidateSession(r.Context(), token); err != nil {
				if errors.Is(err, domain.ErrSessionNotFound) {
					http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
					return
				}
				logger.WithError(err).Error("session lookup failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), SessionTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetSessionToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(SessionTokenKey).(string)
	return token, ok && token != ""
}
