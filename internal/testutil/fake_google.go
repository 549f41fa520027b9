package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// FakeFile is a file served by FakeGoogle. Native documents carry their
// rendered bytes in Export, keyed by target mime type.
type FakeFile struct {
	ID       string
	Name     string
	MimeType string
	Content  []byte
	Export   map[string][]byte
	// DeclaredSize overrides the size reported in metadata.
	DeclaredSize int64
	// RejectContent answers media and export requests with 401 while
	// metadata still succeeds.
	RejectContent bool
}

// FakeGoogle stands in for the Google OAuth token endpoint and the Drive v3
// files API.
type FakeGoogle struct {
	Server *httptest.Server

	// TokenLifetime is reported as expires_in for every issued access token.
	TokenLifetime time.Duration
	// IDToken, when set, is returned with the authorization code exchange.
	IDToken string
	// RefreshDelay holds every refresh response back by this long.
	RefreshDelay time.Duration

	mu             sync.Mutex
	files          map[string]*FakeFile
	validTokens    map[string]bool
	rejectRefresh  bool
	rejectExchange bool
	tokenSeq       int

	refreshCalls  atomic.Int32
	exchangeCalls atomic.Int32
}

func NewFakeGoogle(t *testing.T) *FakeGoogle {
	t.Helper()

	fg := &FakeGoogle{
		TokenLifetime: time.Hour,
		files:         make(map[string]*FakeFile),
		validTokens:   make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Post("/token", fg.handleToken)
	r.Get("/drive/v3/files/{id}", fg.handleFile)
	r.Get("/drive/v3/files/{id}/export", fg.handleExport)

	fg.Server = httptest.NewServer(r)
	t.Cleanup(fg.Server.Close)

	return fg
}

func (fg *FakeGoogle) TokenURL() string { return fg.Server.URL + "/token" }
func (fg *FakeGoogle) AuthURL() string  { return fg.Server.URL + "/auth" }
func (fg *FakeGoogle) DriveURL() string { return fg.Server.URL + "/drive/v3" }

func (fg *FakeGoogle) AddFile(f FakeFile) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.files[f.ID] = &f
}

// IssueToken registers and returns a new valid access token.
func (fg *FakeGoogle) IssueToken() string {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.issueLocked()
}

// RevokeAll makes every access token issued so far invalid.
func (fg *FakeGoogle) RevokeAll() {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.validTokens = make(map[string]bool)
}

func (fg *FakeGoogle) SetRejectRefresh(reject bool) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.rejectRefresh = reject
}

func (fg *FakeGoogle) SetRejectExchange(reject bool) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.rejectExchange = reject
}

func (fg *FakeGoogle) RefreshCalls() int  { return int(fg.refreshCalls.Load()) }
func (fg *FakeGoogle) ExchangeCalls() int { return int(fg.exchangeCalls.Load()) }

func (fg *FakeGoogle) issueLocked() string {
	fg.tokenSeq++
	tok := fmt.Sprintf("access-%d", fg.tokenSeq)
	fg.validTokens[tok] = true
	return tok
}

func (fg *FakeGoogle) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request")
		return
	}

	if r.PostForm.Get("grant_type") == "refresh_token" && fg.RefreshDelay > 0 {
		time.Sleep(fg.RefreshDelay)
	}

	fg.mu.Lock()
	defer fg.mu.Unlock()

	resp := map[string]interface{}{
		"token_type": "Bearer",
		"expires_in": int(fg.TokenLifetime.Seconds()),
		"scope":      "https://www.googleapis.com/auth/drive.file https://www.googleapis.com/auth/drive.readonly",
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		fg.exchangeCalls.Add(1)
		if fg.rejectExchange || r.PostForm.Get("code") == "" {
			writeOAuthError(w, "invalid_grant")
			return
		}
		resp["access_token"] = fg.issueLocked()
		resp["refresh_token"] = "refresh-" + r.PostForm.Get("code")
		if fg.IDToken != "" {
			resp["id_token"] = fg.IDToken
		}
	case "refresh_token":
		fg.refreshCalls.Add(1)
		if fg.rejectRefresh || r.PostForm.Get("refresh_token") == "" {
			writeOAuthError(w, "invalid_grant")
			return
		}
		resp["access_token"] = fg.issueLocked()
	default:
		writeOAuthError(w, "unsupported_grant_type")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (fg *FakeGoogle) handleFile(w http.ResponseWriter, r *http.Request) {
	f, ok := fg.authorizedFile(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("alt") == "media" {
		if f.RejectContent {
			writeDriveError(w, http.StatusUnauthorized, "authError")
			return
		}
		w.Header().Set("Content-Type", f.MimeType)
		w.Write(f.Content)
		return
	}

	meta := map[string]string{
		"id":       f.ID,
		"name":     f.Name,
		"mimeType": f.MimeType,
	}
	size := f.DeclaredSize
	if size == 0 && !strings.HasPrefix(f.MimeType, "application/vnd.google-apps.") {
		size = int64(len(f.Content))
	}
	if size > 0 {
		meta["size"] = fmt.Sprintf("%d", size)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

func (fg *FakeGoogle) handleExport(w http.ResponseWriter, r *http.Request) {
	f, ok := fg.authorizedFile(w, r)
	if !ok {
		return
	}

	if f.RejectContent {
		writeDriveError(w, http.StatusUnauthorized, "authError")
		return
	}

	mimeType := r.URL.Query().Get("mimeType")
	content, ok := f.Export[mimeType]
	if !ok {
		writeDriveError(w, http.StatusBadRequest, "badRequest")
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Write(content)
}

func (fg *FakeGoogle) authorizedFile(w http.ResponseWriter, r *http.Request) (*FakeFile, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	fg.mu.Lock()
	valid := fg.validTokens[token]
	f, found := fg.files[chi.URLParam(r, "id")]
	fg.mu.Unlock()

	if !valid {
		writeDriveError(w, http.StatusUnauthorized, "authError")
		return nil, false
	}
	if !found {
		writeDriveError(w, http.StatusNotFound, "notFound")
		return nil, false
	}
	return f, true
}

func writeOAuthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func writeDriveError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": reason,
			"errors":  []map[string]string{{"reason": reason}},
		},
	})
}
