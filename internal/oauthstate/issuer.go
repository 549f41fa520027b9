// Package oauthstate issues and verifies the CSRF state parameter of the
// authorization-code flow.
package oauthstate

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuerName = "dataroom"

var ErrInvalidState = errors.New("invalid oauth state")

// Issuer produces signed, expiring, single-use state values. The signature
// and expiry are checked from the token itself; single use comes from the
// nonce held in the Store.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	store  Store
	now    func() time.Time
}

// NewIssuer creates an Issuer. An empty secret is replaced with random bytes,
// which is fine because outstanding states do not survive a restart anyway.
func NewIssuer(secret []byte, ttl time.Duration, store Store) (*Issuer, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating state secret: %w", err)
		}
	}

	return &Issuer{
		secret: secret,
		ttl:    ttl,
		store:  store,
		now:    time.Now,
	}, nil
}

func (i *Issuer) Issue(ctx context.Context) (string, error) {
	now := i.now()
	nonce := uuid.NewString()
	expiresAt := now.Add(i.ttl)

	claims := jwt.RegisteredClaims{
		ID:        nonce,
		Issuer:    issuerName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}

	if err := i.store.Save(ctx, nonce, expiresAt); err != nil {
		return "", fmt.Errorf("storing state: %w", err)
	}

	return state, nil
}

// Verify checks the state returned on the callback and consumes it.
func (i *Issuer) Verify(ctx context.Context, state string) error {
	if state == "" {
		return ErrInvalidState
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	ok, err := i.store.Consume(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("consuming state: %w", err)
	}
	if !ok {
		return ErrInvalidState
	}

	return nil
}
