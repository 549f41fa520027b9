// Package drive is a minimal client for the Google Drive v3 REST API,
// covering the metadata, media download and export endpoints used to
// import files.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"

	metadataFields  = "id,name,mimeType,size"
	maxErrorBodyLen = 4096
)

// File is the subset of Drive file metadata needed for an import.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	// Size is absent for native documents.
	Size int64 `json:"size,string,omitempty"`
}

type Client struct {
	baseURL         string
	transport       http.RoundTripper
	metadataTimeout time.Duration
	transferTimeout time.Duration
	logger          logrus.FieldLogger
}

type Options struct {
	BaseURL string
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// MetadataTimeout bounds a metadata lookup end to end.
	MetadataTimeout time.Duration
	// TransferTimeout bounds a content download or export, including the
	// time spent streaming the body.
	TransferTimeout time.Duration
}

func NewClient(opts Options, logger logrus.FieldLogger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.MetadataTimeout <= 0 {
		opts.MetadataTimeout = 30 * time.Second
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = 10 * time.Minute
	}

	return &Client{
		baseURL:         opts.BaseURL,
		transport:       opts.Transport,
		metadataTimeout: opts.MetadataTimeout,
		transferTimeout: opts.TransferTimeout,
		logger:          logger,
	}
}

// GetFile fetches the name, mime type and declared size of a file.
func (c *Client) GetFile(ctx context.Context, accessToken, fileID string) (*File, error) {
	ctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("fields", metadataFields)
	q.Set("supportsAllDrives", "true")

	resp, err := c.get(ctx, accessToken, c.fileURL(fileID, "", q))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var f File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("drive: decoding file metadata: %w", err)
	}

	return &f, nil
}

// Download streams the stored bytes of a regular file into w and returns the
// number of bytes written.
func (c *Client) Download(ctx context.Context, accessToken, fileID string, w io.Writer) (int64, error) {
	q := url.Values{}
	q.Set("alt", "media")
	q.Set("supportsAllDrives", "true")

	return c.stream(ctx, accessToken, c.fileURL(fileID, "", q), w)
}

// Export asks Drive to convert a native document to mimeType and streams the
// result into w.
func (c *Client) Export(ctx context.Context, accessToken, fileID, mimeType string, w io.Writer) (int64, error) {
	q := url.Values{}
	q.Set("mimeType", mimeType)

	return c.stream(ctx, accessToken, c.fileURL(fileID, "/export", q), w)
}

func (c *Client) stream(ctx context.Context, accessToken, rawURL string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	resp, err := c.get(ctx, accessToken, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		c.logger.WithError(err).WithField("bytes_before_error", n).Error("streaming drive content failed")
		return n, fmt.Errorf("drive: streaming content: %w", err)
	}

	return n, nil
}

func (c *Client) fileURL(fileID, suffix string, q url.Values) string {
	return c.baseURL + "/files/" + url.PathEscape(fileID) + suffix + "?" + q.Encode()
}

// get issues an authenticated GET. On a non-2xx status the body is drained
// into an *APIError and closed; on success the caller owns the body.
func (c *Client) get(ctx context.Context, accessToken, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("drive: creating request: %w", err)
	}

	resp, err := c.httpClient(accessToken).Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive: request failed: %w", err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	resp.Body.Close()
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}
}

func (c *Client) httpClient(accessToken string) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: accessToken,
				TokenType:   "Bearer",
			}),
			Base: c.transport,
		},
	}
}
