package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/dom/dataroom/internal/api/middleware"
	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxImportBodyBytes = 4 << 10

type FileHandler struct {
	tokenService  *service.TokenService
	importService *service.ImportService
	fileService   *service.FileService
	validate      *validator.Validate
	logger        logrus.FieldLogger
}

func NewFileHandler(tokens *service.TokenService, imports *service.ImportService, files *service.FileService, logger logrus.FieldLogger) *FileHandler {
	return &FileHandler{
		tokenService:  tokens,
		importService: imports,
		fileService:   files,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        logger,
	}
}

type ImportRequest struct {
	GoogleDriveID string `json:"google_drive_id" validate:"required,max=256,printascii"`
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.fileService.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list files")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if files == nil {
		files = []*domain.ImportedFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *FileHandler) Import(w http.ResponseWriter, r *http.Request) {
	sessionToken, ok := middleware.GetSessionToken(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var req ImportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	accessToken, err := h.tokenService.GetValidAccessToken(r.Context(), sessionToken)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrReauthRequired):
			http.Error(w, "Session expired, please sign in again", http.StatusUnauthorized)
		case errors.Is(err, domain.ErrProviderUnavailable):
			http.Error(w, "Authentication provider unavailable", http.StatusServiceUnavailable)
		default:
			h.logger.WithError(err).Error("failed to obtain access token")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	file, err := h.importService.Import(r.Context(), req.GoogleDriveID, accessToken)
	if err != nil {
		h.writeImportError(w, r, sessionToken, err)
		return
	}

	writeJSON(w, http.StatusCreated, file)
}

func (h *FileHandler) writeImportError(w http.ResponseWriter, r *http.Request, sessionToken string, err error) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFileType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrUnauthorized):
		// Force a refresh on the next attempt.
		if invErr := h.tokenService.Invalidate(r.Context(), sessionToken); invErr != nil {
			h.logger.WithError(invErr).Warn("failed to invalidate access token")
		}
		http.Error(w, "Google rejected the access token, please retry or sign in again", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrProviderFileNotFound):
		http.Error(w, "File not found in Google Drive", http.StatusNotFound)
	case errors.Is(err, domain.ErrFileTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	default:
		h.logger.WithError(err).Error("import failed")
		http.Error(w, "Failed to import file", http.StatusInternalServerError)
	}
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(w, r)
	if !ok {
		return
	}

	file, f, err := h.fileService.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		h.logger.WithError(err).Error("failed to open file")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.Name}))
	http.ServeContent(w, r, file.Name, file.ImportedAt, f)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(w, r)
	if !ok {
		return
	}

	file, err := h.fileService.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		h.logger.WithError(err).WithField("file_id", id).Error("failed to delete file")
		http.Error(w, "Failed to delete file", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("File '%s' deleted", file.Name),
	})
}

// parseFileID answers 404 for ids that are not UUIDs, since no such file
// can exist.
func parseFileID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}

	switch verrs[0].Tag() {
	case "required":
		return "google_drive_id is required"
	case "max":
		return "google_drive_id is too long"
	case "printascii":
		return "google_drive_id contains invalid characters"
	default:
		return "invalid google_drive_id"
	}
}
