package drive

import "strings"

// nativePrefix identifies Google's own editor formats, which have no byte
// representation of their own.
const nativePrefix = "application/vnd.google-apps."

const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeDocument     = "application/vnd.google-apps.document"
	MimeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimePresentation = "application/vnd.google-apps.presentation"
	MimeDrawing      = "application/vnd.google-apps.drawing"

	MimePDF  = "application/pdf"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportFormat is the conversion requested for a native document.
type ExportFormat struct {
	MimeType  string
	Extension string
}

var exportFormats = map[string]ExportFormat{
	MimeDocument:     {MimeType: MimePDF, Extension: ".pdf"},
	MimePresentation: {MimeType: MimePDF, Extension: ".pdf"},
	MimeDrawing:      {MimeType: MimePDF, Extension: ".pdf"},
	MimeSpreadsheet:  {MimeType: MimeXLSX, Extension: ".xlsx"},
}

// Downloading these returns 403 from the API; they are links, containers or
// discontinued products rather than files.
var unsupportedTypes = map[string]struct{}{
	"application/vnd.google-apps.map":         {},
	"application/vnd.google-apps.form":        {},
	"application/vnd.google-apps.site":        {},
	MimeFolder:                                {},
	"application/vnd.google-apps.shortcut":    {},
	"application/vnd.google-apps.drive-sdk":   {},
	"application/vnd.google-apps.fusiontable": {},
	"application/vnd.google-apps.jam":         {},
	"application/vnd.google-apps.unknown":     {},
}

// Transfer says how the bytes of a file are obtained.
type Transfer int

const (
	TransferUnsupported Transfer = iota
	TransferDownload
	TransferExport
)

func (t Transfer) String() string {
	switch t {
	case TransferDownload:
		return "download"
	case TransferExport:
		return "export"
	default:
		return "unsupported"
	}
}

// Classify decides how a file of the given mime type is imported. Native
// types must appear in the export table; anything else under the native
// prefix is unsupported.
func Classify(mimeType string) (Transfer, ExportFormat) {
	if _, denied := unsupportedTypes[mimeType]; denied {
		return TransferUnsupported, ExportFormat{}
	}

	if format, ok := exportFormats[mimeType]; ok {
		return TransferExport, format
	}

	if strings.HasPrefix(mimeType, nativePrefix) {
		return TransferUnsupported, ExportFormat{}
	}

	return TransferDownload, ExportFormat{}
}

// ShortType returns the trailing component of a native mime type ("form"
// for application/vnd.google-apps.form), for user-facing messages.
func ShortType(mimeType string) string {
	if i := strings.LastIndex(mimeType, "."); i >= 0 && i < len(mimeType)-1 {
		return mimeType[i+1:]
	}
	return mimeType
}
