package service_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/drive"
	"github.com/dom/dataroom/internal/events"
	"github.com/dom/dataroom/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportService_Import(t *testing.T) {
	ctx := context.Background()
	pdfBytes := []byte("%PDF-1.7 exported")
	xlsxBytes := []byte("PK exported sheet")

	tests := []struct {
		name         string
		file         testutil.FakeFile
		wantName     string
		wantMimeType string
		wantContent  []byte
	}{
		{
			name: "regular file is downloaded",
			file: testutil.FakeFile{
				ID: "plain", Name: "notes.txt", MimeType: "text/plain",
				Content: []byte("hello data room"),
			},
			wantName:     "notes.txt",
			wantMimeType: "text/plain",
			wantContent:  []byte("hello data room"),
		},
		{
			name: "native document is exported to pdf",
			file: testutil.FakeFile{
				ID: "doc", Name: "Quarterly Report", MimeType: drive.MimeDocument,
				Export: map[string][]byte{drive.MimePDF: pdfBytes},
			},
			wantName:     "Quarterly Report.pdf",
			wantMimeType: drive.MimePDF,
			wantContent:  pdfBytes,
		},
		{
			name: "native spreadsheet is exported to xlsx",
			file: testutil.FakeFile{
				ID: "sheet", Name: "Budget", MimeType: drive.MimeSpreadsheet,
				Export: map[string][]byte{drive.MimeXLSX: xlsxBytes},
			},
			wantName:     "Budget.xlsx",
			wantMimeType: drive.MimeXLSX,
			wantContent:  xlsxBytes,
		},
		{
			name: "traversal in name stays inside the store",
			file: testutil.FakeFile{
				ID: "evil", Name: "../../etc/passwd", MimeType: "text/plain",
				Content: []byte("root:x:0:0"),
			},
			wantName:     "passwd",
			wantMimeType: "text/plain",
			wantContent:  []byte("root:x:0:0"),
		},
		{
			name: "missing mime type falls back to octet-stream",
			file: testutil.FakeFile{
				ID: "blob", Name: "blob.bin", Content: []byte{0, 1, 2},
			},
			wantName:     "blob.bin",
			wantMimeType: "application/octet-stream",
			wantContent:  []byte{0, 1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &testutil.RecordingPublisher{}
			env := testutil.NewTestEnv(t, testutil.NewSQLiteDB(t), publisher)
			env.Google.AddFile(tt.file)

			file, err := env.Services.Import.Import(ctx, tt.file.ID, env.Google.IssueToken())
			require.NoError(t, err)

			assert.Equal(t, tt.wantName, file.Name)
			assert.Equal(t, tt.wantMimeType, file.MimeType)
			assert.Equal(t, int64(len(tt.wantContent)), file.Size)
			assert.Equal(t, tt.file.ID, file.GoogleDriveID)

			root := env.Infra.Store.Root()
			assert.Equal(t, root, filepath.Dir(file.StoragePath))
			assert.False(t, strings.HasSuffix(file.StoragePath, ".partial"))

			onDisk, err := os.ReadFile(file.StoragePath)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.wantContent, onDisk))

			listed, err := env.Services.Files.List(ctx)
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.Equal(t, file.ID, listed[0].ID)

			assert.Equal(t, []events.EventType{events.EventFileImported}, publisher.Types())
		})
	}
}

func TestImportService_Failures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		file    *testutil.FakeFile
		fileID  string
		revoke  bool
		wantErr error
	}{
		{
			name:    "folder is unsupported",
			file:    &testutil.FakeFile{ID: "folder", Name: "Stuff", MimeType: drive.MimeFolder},
			wantErr: domain.ErrUnsupportedFileType,
		},
		{
			name:    "form is unsupported",
			file:    &testutil.FakeFile{ID: "form", Name: "Survey", MimeType: "application/vnd.google-apps.form"},
			wantErr: domain.ErrUnsupportedFileType,
		},
		{
			name:    "unknown file",
			fileID:  "nope",
			wantErr: domain.ErrProviderFileNotFound,
		},
		{
			name:    "provider rejects token",
			file:    &testutil.FakeFile{ID: "plain", Name: "a.txt", MimeType: "text/plain", Content: []byte("a")},
			revoke:  true,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name: "provider rejects token on media download",
			file: &testutil.FakeFile{
				ID: "plain", Name: "a.txt", MimeType: "text/plain",
				Content: []byte("a"), RejectContent: true,
			},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name: "provider rejects token on export",
			file: &testutil.FakeFile{
				ID: "doc", Name: "Doc", MimeType: drive.MimeDocument,
				Export: map[string][]byte{drive.MimePDF: []byte("%PDF")}, RejectContent: true,
			},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name: "declared size over limit",
			file: &testutil.FakeFile{
				ID: "big", Name: "big.iso", MimeType: "application/octet-stream",
				Content: []byte("small"), DeclaredSize: 2 << 20,
			},
			wantErr: domain.ErrFileTooLarge,
		},
		{
			name: "streamed bytes over limit",
			file: &testutil.FakeFile{
				ID: "liar", Name: "liar.bin", MimeType: "application/octet-stream",
				Content: bytes.Repeat([]byte("x"), (1<<20)+1), DeclaredSize: 10,
			},
			wantErr: domain.ErrFileTooLarge,
		},
		{
			name: "export failure",
			file: &testutil.FakeFile{
				ID: "doc", Name: "Doc", MimeType: drive.MimeDocument,
				Export: map[string][]byte{},
			},
			wantErr: domain.ErrImportFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &testutil.RecordingPublisher{}
			env := testutil.NewTestEnv(t, testutil.NewSQLiteDB(t), publisher)

			fileID := tt.fileID
			if tt.file != nil {
				env.Google.AddFile(*tt.file)
				fileID = tt.file.ID
			}

			accessToken := env.Google.IssueToken()
			if tt.revoke {
				env.Google.RevokeAll()
			}

			file, err := env.Services.Import.Import(ctx, fileID, accessToken)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, file)

			listed, err := env.Services.Files.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, listed)
			testutil.AssertDirEmpty(t, env.Infra.Store.Root())
			assert.Empty(t, publisher.Types())
		})
	}
}

func TestImportService_ReimportCreatesNewRecord(t *testing.T) {
	env := testutil.NewTestEnv(t, testutil.NewSQLiteDB(t), nil)
	ctx := context.Background()
	env.Google.AddFile(testutil.FakeFile{ID: "plain", Name: "a.txt", MimeType: "text/plain", Content: []byte("a")})
	token := env.Google.IssueToken()

	first, err := env.Services.Import.Import(ctx, "plain", token)
	require.NoError(t, err)
	second, err := env.Services.Import.Import(ctx, "plain", token)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.StoragePath, second.StoragePath)

	listed, err := env.Services.Files.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}
