package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/events"
	"github.com/dom/dataroom/internal/repository"
	"github.com/dom/dataroom/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FileService is the registry of imported files and their stored bytes.
type FileService struct {
	fileRepo repository.FileRepository
	store    *storage.Store
	events   events.Publisher
	logger   logrus.FieldLogger
}

func NewFileService(fileRepo repository.FileRepository, store *storage.Store, publisher events.Publisher, logger logrus.FieldLogger) *FileService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &FileService{
		fileRepo: fileRepo,
		store:    store,
		events:   publisher,
		logger:   logger.WithField("component", "files"),
	}
}

// List returns every imported file, oldest import first.
func (s *FileService) List(ctx context.Context) ([]*domain.ImportedFile, error) {
	return s.fileRepo.List(ctx)
}

func (s *FileService) Get(ctx context.Context, id uuid.UUID) (*domain.ImportedFile, error) {
	file, err := s.fileRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// Open returns the record and an open handle on its bytes. The caller closes
// the handle.
func (s *FileService) Open(ctx context.Context, id uuid.UUID) (*domain.ImportedFile, *os.File, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := s.store.Open(file.StoragePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.WithField("file_id", id).Error("Stored bytes missing for registered file")
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, fmt.Errorf("opening stored file: %w", err)
	}
	return file, f, nil
}

// Delete removes the stored bytes and then the record. If the bytes cannot be
// removed the record is kept so the file stays listed.
func (s *FileService) Delete(ctx context.Context, id uuid.UUID) (*domain.ImportedFile, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.Remove(file.StoragePath); err != nil {
		return nil, fmt.Errorf("removing stored file: %w", err)
	}

	if err := s.fileRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"file_id": id, "name": file.Name}).Info("File deleted")
	publish(s.events, s.logger, events.EventFileDeleted, file)
	return file, nil
}
