package drive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dom/dataroom/internal/drive"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *drive.Client {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return drive.NewClient(drive.Options{
		BaseURL:         baseURL,
		MetadataTimeout: 5 * time.Second,
		TransferTimeout: 5 * time.Second,
	}, logger)
}

// errorWriter fails every write, exercising the streaming failure path.
type errorWriter struct{}

func (errorWriter) Write(_ []byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestGetFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/abc123", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "id,name,mimeType,size", r.URL.Query().Get("fields"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc123","name":"notes.txt","mimeType":"text/plain","size":"42"}`))
	}))
	defer srv.Close()

	f, err := newTestClient(t, srv.URL).GetFile(context.Background(), "token-1", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", f.ID)
	assert.Equal(t, "notes.txt", f.Name)
	assert.Equal(t, "text/plain", f.MimeType)
	assert.Equal(t, int64(42), f.Size)
}

func TestGetFile_NativeDocumentHasNoSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"doc","name":"Plan","mimeType":"application/vnd.google-apps.document"}`))
	}))
	defer srv.Close()

	f, err := newTestClient(t, srv.URL).GetFile(context.Background(), "t", "doc")
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.Size)
	assert.Equal(t, drive.MimeDocument, f.MimeType)
}

func TestGetFile_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{status: http.StatusBadRequest, want: drive.ErrBadRequest},
		{status: http.StatusUnauthorized, want: drive.ErrUnauthorized},
		{status: http.StatusForbidden, want: drive.ErrForbidden},
		{status: http.StatusNotFound, want: drive.ErrNotFound},
		{status: http.StatusTooManyRequests, want: drive.ErrThrottled},
		{status: http.StatusBadGateway, want: drive.ErrServerError},
		{status: http.StatusTeapot, want: drive.ErrUnexpected},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).GetFile(context.Background(), "t", "id")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *drive.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Contains(t, apiErr.Message, "nope")
		})
	}
}

func TestDownload(t *testing.T) {
	content := "binary content for the download test"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/file-1", r.URL.Path)
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(content))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := newTestClient(t, srv.URL).Download(context.Background(), "tok", "file-1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, buf.String())
}

func TestExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/doc-1/export", r.URL.Path)
		assert.Equal(t, drive.MimePDF, r.URL.Query().Get("mimeType"))
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := newTestClient(t, srv.URL).Export(context.Background(), "tok", "doc-1", drive.MimePDF, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "%PDF-1.7", buf.String())
}

func TestDownload_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	_, err := newTestClient(t, srv.URL).Download(context.Background(), "expired", "file-1", &buf)
	assert.ErrorIs(t, err, drive.ErrUnauthorized)
	assert.Zero(t, buf.Len())
}

func TestDownload_WriterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("some content"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Download(context.Background(), "tok", "file-1", errorWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "streaming content")
}

func TestDownload_TransferTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := drive.NewClient(drive.Options{
		BaseURL:         srv.URL,
		TransferTimeout: 50 * time.Millisecond,
	}, logger)

	var buf bytes.Buffer
	_, err := client.Download(context.Background(), "tok", "slow", &buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
