// Package storage manages the directory tree holding imported file bytes.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PartialSuffix marks files that are still being written.
const PartialSuffix = ".partial"

// incomingDir holds partial files. Committed files live directly under the
// root and are always named "<uuid>_<name>", so nothing in here is ever a
// committed file.
const incomingDir = ".incoming"

const (
	dirPermissions  = 0o750
	filePermissions = 0o640
)

var (
	ErrSizeLimitExceeded = errors.New("storage: size limit exceeded")
	ErrOutsideRoot       = errors.New("storage: path outside storage root")
)

type Store struct {
	root   string
	logger logrus.FieldLogger
}

func New(root string, logger logrus.FieldLogger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root %s: %w", root, err)
	}

	if err := os.MkdirAll(filepath.Join(abs, incomingDir), dirPermissions); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", abs, err)
	}

	return &Store{root: abs, logger: logger}, nil
}

func (s *Store) Root() string {
	return s.root
}

// IncomingDir is where in-progress writes are kept until Commit.
func (s *Store) IncomingDir() string {
	return filepath.Join(s.root, incomingDir)
}

// Create opens a new partial file for id. name must already be sanitized.
// A limit of zero or less disables the size check.
func (s *Store) Create(id uuid.UUID, name string, limit int64) (*PendingFile, error) {
	finalPath := filepath.Join(s.root, id.String()+"_"+name)
	if err := s.checkWithinRoot(finalPath); err != nil {
		return nil, err
	}

	partialPath := filepath.Join(s.IncomingDir(), id.String()+PartialSuffix)
	f, err := os.OpenFile(partialPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("storage: create partial file: %w", err)
	}

	return &PendingFile{
		f:           f,
		partialPath: partialPath,
		finalPath:   finalPath,
		limit:       limit,
	}, nil
}

// Open returns the stored file at path for reading.
func (s *Store) Open(path string) (*os.File, error) {
	if err := s.checkWithinRoot(path); err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Remove deletes the stored file at path. A file that is already gone counts
// as removed.
func (s *Store) Remove(path string) error {
	if err := s.checkWithinRoot(path); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}

// SweepPartials deletes partial files last modified more than olderThan ago.
// These are left behind when a process dies mid-import. Only the incoming
// directory is scanned.
func (s *Store) SweepPartials(olderThan time.Duration) (int, error) {
	dir := s.IncomingDir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: read incoming dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PartialSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).WithField("path", path).Warn("failed to remove stale partial file")
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"path":     path,
			"modified": info.ModTime(),
		}).Info("removed stale partial file")
		removed++
	}

	return removed, nil
}

func (s *Store) checkWithinRoot(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("storage: resolve %s: %w", path, err)
	}

	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return nil
}

// PendingFile is an in-progress write. Exactly one of Commit or Abort must
// be called.
type PendingFile struct {
	f           *os.File
	partialPath string
	finalPath   string
	limit       int64
	written     int64
	closed      bool
}

func (p *PendingFile) Write(b []byte) (int, error) {
	if p.limit > 0 && p.written+int64(len(b)) > p.limit {
		return 0, ErrSizeLimitExceeded
	}

	n, err := p.f.Write(b)
	p.written += int64(n)
	return n, err
}

// Written returns the number of bytes written so far.
func (p *PendingFile) Written() int64 {
	return p.written
}

// Commit flushes the partial file and moves it to its final name.
func (p *PendingFile) Commit() (string, error) {
	if err := p.f.Sync(); err != nil {
		p.Abort()
		return "", fmt.Errorf("storage: sync %s: %w", p.partialPath, err)
	}

	if err := p.close(); err != nil {
		p.Abort()
		return "", fmt.Errorf("storage: close %s: %w", p.partialPath, err)
	}

	if err := os.Rename(p.partialPath, p.finalPath); err != nil {
		p.Abort()
		return "", fmt.Errorf("storage: rename %s: %w", p.partialPath, err)
	}

	return p.finalPath, nil
}

// Abort discards everything written. It is safe to call more than once and
// after a failed Commit.
func (p *PendingFile) Abort() {
	_ = p.close()
	_ = os.Remove(p.partialPath)
}

func (p *PendingFile) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.f.Close()
}
