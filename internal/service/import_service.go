package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/drive"
	"github.com/dom/dataroom/internal/events"
	"github.com/dom/dataroom/internal/repository"
	"github.com/dom/dataroom/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultMimeType = "application/octet-stream"

// DriveClient is the part of the Drive API an import needs.
type DriveClient interface {
	GetFile(ctx context.Context, accessToken, fileID string) (*drive.File, error)
	Download(ctx context.Context, accessToken, fileID string, w io.Writer) (int64, error)
	Export(ctx context.Context, accessToken, fileID, mimeType string, w io.Writer) (int64, error)
}

type ImportService struct {
	fileRepo    repository.FileRepository
	drive       DriveClient
	store       *storage.Store
	events      events.Publisher
	maxFileSize int64
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewImportService(
	fileRepo repository.FileRepository,
	driveClient DriveClient,
	store *storage.Store,
	publisher events.Publisher,
	maxFileSize int64,
	logger logrus.FieldLogger,
) *ImportService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &ImportService{
		fileRepo:    fileRepo,
		drive:       driveClient,
		store:       store,
		events:      publisher,
		maxFileSize: maxFileSize,
		logger:      logger.WithField("component", "import"),
		now:         time.Now,
	}
}

// Import copies one Drive file into local storage and records it. Native
// Google documents are exported to their office or PDF equivalent. Nothing
// is left on disk or in the registry when an import fails.
func (s *ImportService) Import(ctx context.Context, googleDriveID, accessToken string) (*domain.ImportedFile, error) {
	log := s.logger.WithField("drive_id", googleDriveID)

	meta, err := s.drive.GetFile(ctx, accessToken, googleDriveID)
	if err != nil {
		log.WithError(err).Warn("Metadata lookup failed")
		return nil, mapDriveError(err)
	}

	transfer, format := drive.Classify(meta.MimeType)
	if transfer == drive.TransferUnsupported {
		return nil, fmt.Errorf("%w: cannot import this file type (%s)", domain.ErrUnsupportedFileType, drive.ShortType(meta.MimeType))
	}

	if meta.Size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds the %s limit", domain.ErrFileTooLarge,
			humanize.IBytes(uint64(meta.Size)), humanize.IBytes(uint64(s.maxFileSize)))
	}

	name := meta.Name
	mimeType := meta.MimeType
	if transfer == drive.TransferExport {
		name += format.Extension
		mimeType = format.MimeType
	}
	name = storage.SanitizeFilename(name)
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	id := uuid.New()
	pending, err := s.store.Create(id, name, s.maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImportFailed, err)
	}

	started := s.now()
	if transfer == drive.TransferExport {
		_, err = s.drive.Export(ctx, accessToken, googleDriveID, format.MimeType, pending)
	} else {
		_, err = s.drive.Download(ctx, accessToken, googleDriveID, pending)
	}
	if err != nil {
		pending.Abort()
		log.WithError(err).WithField("transfer", transfer.String()).Warn("Transfer failed")
		return nil, mapDriveError(err)
	}

	size := pending.Written()
	path, err := pending.Commit()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImportFailed, err)
	}

	file := &domain.ImportedFile{
		ID:            id,
		Name:          name,
		MimeType:      mimeType,
		Size:          size,
		GoogleDriveID: googleDriveID,
		StoragePath:   path,
		ImportedAt:    s.now().UTC(),
	}
	if err := s.fileRepo.Create(ctx, file); err != nil {
		if rmErr := s.store.Remove(path); rmErr != nil {
			log.WithError(rmErr).Error("Failed to remove stored file after registry error")
		}
		return nil, fmt.Errorf("%w: recording file: %v", domain.ErrImportFailed, err)
	}

	log.WithFields(logrus.Fields{
		"file_id":  file.ID,
		"name":     file.Name,
		"size":     humanize.IBytes(uint64(size)),
		"transfer": transfer.String(),
		"took":     s.now().Sub(started).Round(time.Millisecond),
	}).Info("File imported")

	publish(s.events, s.logger, events.EventFileImported, file)
	return file, nil
}

func mapDriveError(err error) error {
	switch {
	case errors.Is(err, drive.ErrUnauthorized):
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	case errors.Is(err, drive.ErrNotFound):
		return fmt.Errorf("%w: %v", domain.ErrProviderFileNotFound, err)
	case errors.Is(err, storage.ErrSizeLimitExceeded):
		return fmt.Errorf("%w: %v", domain.ErrFileTooLarge, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrImportFailed, err)
	}
}

func publish(p events.Publisher, logger logrus.FieldLogger, eventType events.EventType, payload interface{}) {
	evt, err := events.NewEvent(eventType, payload)
	if err != nil {
		logger.WithError(err).Warn("Failed to build event")
		return
	}
	p.Publish(evt)
}
