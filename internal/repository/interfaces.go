package repository

import (
	"context"
	"time"

	"github.com/dom/dataroom/internal/domain"
	"github.com/google/uuid"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	UpdateTokens(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, tokenHash string) error
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type FileRepository interface {
	Create(ctx context.Context, file *domain.ImportedFile) error
	List(ctx context.Context) ([]*domain.ImportedFile, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportedFile, error)
	// Delete returns gorm.ErrRecordNotFound when no row was removed.
	Delete(ctx context.Context, id uuid.UUID) error
}

type Repositories struct {
	Session SessionRepository
	File    FileRepository
}
