package database

import (
	"context"
	"time"

	"github.com/dom/dataroom/internal/domain"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.WithContext(ctx).First(&session, "token_hash = ?", tokenHash).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateTokens writes only the credential columns so a concurrent refresh of
// the same session simply leaves the latest write in place.
func (r *sessionRepository) UpdateTokens(ctx context.Context, session *domain.Session) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("token_hash = ?", session.TokenHash).
		Updates(map[string]interface{}{
			"access_token":  session.AccessToken,
			"refresh_token": session.RefreshToken,
			"token_expiry":  session.TokenExpiry,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).Delete(&domain.Session{}, "token_hash = ?", tokenHash).Error
}

func (r *sessionRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&domain.Session{})
	return result.RowsAffected, result.Error
}
