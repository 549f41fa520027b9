package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/repository"
	"github.com/dom/dataroom/internal/repository/database"
	"github.com/dom/dataroom/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// forEachBackend runs fn against PostgreSQL and SQLite.
func forEachBackend(t *testing.T, fn func(t *testing.T, repos *repository.Repositories)) {
	t.Run("postgres", func(t *testing.T) {
		fn(t, database.NewRepositories(testutil.NewTestDB(t).DB))
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, database.NewRepositories(testutil.NewSQLiteDB(t)))
	})
}

func newSession(hash string, createdAt time.Time) *domain.Session {
	expiry := createdAt.Add(time.Hour)
	return &domain.Session{
		TokenHash:    hash,
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenExpiry:  &expiry,
		Scopes:       datatypes.JSON(`["drive.file"]`),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestSessionRepository(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *repository.Repositories) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		require.NoError(t, repos.Session.Create(ctx, newSession("h1", now)))
		assert.Error(t, repos.Session.Create(ctx, newSession("h1", now)), "duplicate hash")

		got, err := repos.Session.GetByTokenHash(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, "access", got.AccessToken)
		require.NotNil(t, got.TokenExpiry)
		assert.WithinDuration(t, now.Add(time.Hour), *got.TokenExpiry, time.Millisecond)
		assert.JSONEq(t, `["drive.file"]`, string(got.Scopes))

		_, err = repos.Session.GetByTokenHash(ctx, "missing")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		// UpdateTokens
		got.AccessToken = "rotated"
		got.TokenExpiry = nil
		require.NoError(t, repos.Session.UpdateTokens(ctx, got))
		updated, err := repos.Session.GetByTokenHash(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, "rotated", updated.AccessToken)
		assert.Nil(t, updated.TokenExpiry)

		err = repos.Session.UpdateTokens(ctx, newSession("missing", now))
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		// DeleteCreatedBefore
		require.NoError(t, repos.Session.Create(ctx, newSession("old", now.Add(-10*24*time.Hour))))
		n, err := repos.Session.DeleteCreatedBefore(ctx, now.Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		// Delete is idempotent
		require.NoError(t, repos.Session.Delete(ctx, "h1"))
		require.NoError(t, repos.Session.Delete(ctx, "h1"))
		_, err = repos.Session.GetByTokenHash(ctx, "h1")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestFileRepository(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *repository.Repositories) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Millisecond)

		files := []*domain.ImportedFile{
			{ID: uuid.New(), Name: "b.txt", MimeType: "text/plain", Size: 2, GoogleDriveID: "g2", StoragePath: "/x/b", ImportedAt: base.Add(time.Second)},
			{ID: uuid.New(), Name: "a.txt", MimeType: "text/plain", Size: 1, GoogleDriveID: "g1", StoragePath: "/x/a", ImportedAt: base},
			{ID: uuid.New(), Name: "c.txt", MimeType: "text/plain", Size: 3, GoogleDriveID: "g1", StoragePath: "/x/c", ImportedAt: base.Add(2 * time.Second)},
		}
		for _, f := range files {
			require.NoError(t, repos.File.Create(ctx, f))
		}

		listed, err := repos.File.List(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"},
			[]string{listed[0].Name, listed[1].Name, listed[2].Name})
		assert.Equal(t, "/x/a", listed[0].StoragePath)

		got, err := repos.File.GetByID(ctx, files[0].ID)
		require.NoError(t, err)
		assert.Equal(t, files[0].Name, got.Name)
		assert.Equal(t, files[0].Size, got.Size)

		_, err = repos.File.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		require.NoError(t, repos.File.Delete(ctx, files[0].ID))
		assert.ErrorIs(t, repos.File.Delete(ctx, files[0].ID), gorm.ErrRecordNotFound)
	})
}

func TestDialector(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantName string
		wantErr  bool
	}{
		{name: "sqlite", url: "sqlite://data.db", wantName: "sqlite"},
		{name: "postgres", url: "postgres://u:p@localhost:5432/db", wantName: "postgres"},
		{name: "empty sqlite path", url: "sqlite://", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := database.Dialector(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, d.Name())
		})
	}
}
