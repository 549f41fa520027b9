package service_test

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/service"
	"github.com/dom/dataroom/internal/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beginState(t *testing.T, env *testutil.TestEnv) string {
	t.Helper()

	authURL, err := env.Services.OAuth.Begin(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestOAuthService_Begin(t *testing.T) {
	env := testutil.NewTestEnv(t, testutil.NewSQLiteDB(t), nil)

	authURL, err := env.Services.OAuth.Begin(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, env.Google.AuthURL(), u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "test-client-id", q.Get("client_id"))
	assert.Equal(t, env.Config.RedirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/drive.readonly")
	assert.NotEmpty(t, q.Get("state"))

	other, err := env.Services.OAuth.Begin(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, authURL, other, "every flow gets its own state")
}

func TestOAuthService_Complete(t *testing.T) {
	env := testutil.NewTestEnv(t, testutil.NewSQLiteDB(t), nil)
	hook := logtest.NewLocal(env.Log)
	ctx := context.Background()

	sessionToken, err := env.Services.OAuth.Complete(ctx, "authcode", beginState(t, env))
	require.NoError(t, err)
	require.NotEmpty(t, sessionToken)

	stored, err := env.Repos.Session.GetByTokenHash(ctx, service.HashSessionToken(sessionToken))
	require.NoError(t, err)
	assert.Equal(t, "refresh-authcode", stored.RefreshToken)
	require.NotNil(t, stored.TokenExpiry)

	var scopes []string
	require.NoError(t, json.Unmarshal(stored.Scopes, &scopes))
	assert.Contains(t, scopes, "https://www.googleapis.com/auth/drive.file")

	accessToken, err := env.Services.Tokens.GetValidAccessToken(ctx, sessionToken)
	require.NoError(t, err)
	assert.Equal(t, stored.AccessToken, accessToken)
	assert.Equal(t, 0, env.Google.RefreshCalls(), "a new session needs no refresh")

	var created *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Session created" {
			created = entry
		}
	}
	require.NotNil(t, created)
	assert.NotContains(t, created.Data, "account")
	for _, v := range created.Data {
		assert.NotEqual(t, sessionToken, v)
		assert.NotEqual(t, stored.AccessToken, v)
		assert.NotEqual(t, stored.RefreshToken, v)
	}
}

func TestOAuthService_CompleteRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		code    string
		state   func(t *testing.T, env *testutil.TestEnv) string
		setup   func(env *testutil.TestEnv)
		wantErr error
	}{
		{
			name:    "unsigned state",
			code:    "authcode",
			state:   func(*testing.T, *testutil.TestEnv) string { return "forged" },
			wantErr: domain.ErrCsrfMismatch,
		},
		{
			name:    "empty state",
			code:    "authcode",
			state:   func(*testing.T, *testutil.TestEnv) string { return "" },
			wantErr: domain.ErrCsrfMismatch,
		},
		{
			name:    "missing code",
			code:    "",
			state:   beginState,
			wantErr: domain.ErrProviderRejected,
		},
		{
			name:    "provider refuses exchange",
			code:    "authcode",
			state:   beginState,
			setup:   func(env *testutil.TestEnv) { env.Google.SetRejectExchange(true) },
			wantErr: domain.ErrProviderRejected,
		},
		{
			name:    "malformed id token",
			code:    "authcode",
			state:   beginState,
			setup:   func(env *testutil.TestEnv) { env.Google.IDToken = "not-a-jwt" },
			wantErr: domain.ErrProviderRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewTestEnv(t, testutil.NewSQLiteDB(t), nil)
			if tt.setup != nil {
				tt.setup(env)
			}

			token, err := env.Services.OAuth.Complete(ctx, tt.code, tt.state(t, env))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, token)

			var count int64
			require.NoError(t, env.DB.Model(&domain.Session{}).Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}

func TestOAuthService_StateIsSingleUse(t *testing.T) {
	env := testutil.NewTestEnv(t, testutil.NewSQLiteDB(t), nil)
	ctx := context.Background()
	state := beginState(t, env)

	_, err := env.Services.OAuth.Complete(ctx, "first", state)
	require.NoError(t, err)

	_, err = env.Services.OAuth.Complete(ctx, "second", state)
	assert.ErrorIs(t, err, domain.ErrCsrfMismatch)
	assert.Equal(t, 1, env.Google.ExchangeCalls())
}

func TestOAuthService_StatusAndLogout(t *testing.T) {
	env := testutil.NewTestEnv(t, testutil.NewSQLiteDB(t), nil)
	ctx := context.Background()

	token, seeded := testutil.NewSessionBuilder().Build(t, env.DB)

	status, err := env.Services.OAuth.Status(ctx, token)
	require.NoError(t, err)
	assert.True(t, status.Authenticated)
	assert.Equal(t, seeded.AccessToken, status.AccessToken)

	require.NoError(t, env.Services.OAuth.Logout(ctx, token))
	require.NoError(t, env.Services.OAuth.Logout(ctx, token), "logout is idempotent")
	require.NoError(t, env.Services.OAuth.Logout(ctx, ""))

	for _, tok := range []string{token, "", "unknown"} {
		status, err = env.Services.OAuth.Status(ctx, tok)
		require.NoError(t, err)
		assert.False(t, status.Authenticated)
		assert.Empty(t, status.AccessToken)
	}
}

func TestOAuthService_StatusWhenRefreshRejected(t *testing.T) {
	env := testutil.NewTestEnv(t, testutil.NewSQLiteDB(t), nil)
	env.Google.SetRejectRefresh(true)

	token, _ := testutil.NewSessionBuilder().WithoutExpiry().Build(t, env.DB)

	status, err := env.Services.OAuth.Status(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, status.Authenticated)
}
