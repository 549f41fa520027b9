package database

import (
	"context"

	"github.com/dom/dataroom/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *fileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *domain.ImportedFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *fileRepository) List(ctx context.Context) ([]*domain.ImportedFile, error) {
	var files []*domain.ImportedFile
	err := r.db.WithContext(ctx).Order("imported_at ASC, id ASC").Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportedFile, error) {
	var file domain.ImportedFile
	err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *fileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&domain.ImportedFile{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
