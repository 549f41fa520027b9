package storage

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxFilenameLength stays well below the 255-byte limit of common
	// filesystems, leaving room for the id prefix.
	MaxFilenameLength = 200

	maxPreservedExtLength = 16
	fallbackFilename      = "unnamed"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_ .\-]`)

// SanitizeFilename turns an untrusted, provider-reported name into a single
// safe path element: accents are folded, directory components and control
// characters dropped, every other rune outside [A-Za-z0-9_ .-] replaced with
// an underscore, and the result truncated to MaxFilenameLength bytes with the
// extension kept.
func SanitizeFilename(name string) string {
	name = foldMarks(name)

	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)

	if strings.Trim(name, ".") == "" {
		return fallbackFilename
	}

	if len(name) > MaxFilenameLength {
		ext := filepath.Ext(name)
		if len(ext) > maxPreservedExtLength {
			ext = ""
		}
		name = name[:MaxFilenameLength-len(ext)] + ext
	}

	return name
}

// foldMarks decomposes the string and drops combining marks so "Résumé"
// becomes "Resume" rather than "R_sum_".
func foldMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
