package testutil

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// AssertErrorResponse verifies error response with expected status and message
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedMessage string) {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	// Error responses are plain text in this API
	assert.Contains(t, string(body), expectedMessage, "error message mismatch")
}

// AssertRedirectQuery verifies a redirect to the frontend carrying key=value
// and returns the parsed query.
func AssertRedirectQuery(t *testing.T, resp *http.Response, frontendURL, key, value string) url.Values {
	t.Helper()

	require.Equal(t, http.StatusFound, resp.StatusCode, "expected redirect")

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err, "bad Location header")
	assert.True(t, strings.HasPrefix(loc.String(), frontendURL), "redirect %s not to frontend", loc)

	q := loc.Query()
	if value == "" {
		assert.NotEmpty(t, q.Get(key), "missing %s in redirect", key)
	} else {
		assert.Equal(t, value, q.Get(key), "unexpected %s in redirect", key)
	}
	return q
}

// AssertDirEmpty verifies no regular files exist anywhere under dir,
// ignoring a missing dir. Empty subdirectories are allowed.
func AssertDirEmpty(t *testing.T, dir string) {
	t.Helper()

	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, names, "expected no files in %s", dir)
}
