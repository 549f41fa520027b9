package domain

import "errors"

// OAuth flow errors
var (
	ErrCsrfMismatch     = errors.New("oauth state mismatch")
	ErrProviderRejected = errors.New("provider rejected authorization")
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrReauthRequired  = errors.New("session can no longer be refreshed, reauthentication required")
	// ErrProviderUnavailable means the token endpoint could not be reached;
	// unlike a rejected refresh it leaves the session intact.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Import errors
var (
	ErrUnsupportedFileType  = errors.New("unsupported file type")
	ErrUnauthorized         = errors.New("provider rejected access token")
	ErrImportFailed         = errors.New("import failed")
	ErrProviderFileNotFound = errors.New("file not found at provider")
	ErrFileTooLarge         = errors.New("file exceeds maximum size")
)

// Registry errors
var (
	ErrNotFound = errors.New("file not found")
)
