package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive errors
var (
	ErrBadKey        = errors.New("malformed message key")
	ErrRawNotFound   = errors.New("raw message not found")
	ErrPathTraversal = errors.New("path traversal detected")
)

// MaxRawSize is the largest raw message the archive accepts (25 MB)
const MaxRawSize = 25 * 1024 * 1024

// Archive stores raw RFC 5322 messages keyed by message key. Writes are
// idempotent: replaying the same key overwrites the previous copy, so a
// message is archived at most once regardless of how often the pipeline
// sees it.
type Archive interface {
	Store(key string, raw []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// fileArchive implements Archive on the local filesystem. Messages are
// laid out as <base>/<accountID>/<folder>/<uid>.eml so accounts can be
// pruned by removing a single directory.
type fileArchive struct {
	basePath string
}

// NewFileArchive creates a file-backed archive rooted at basePath
func NewFileArchive(basePath string) (Archive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &fileArchive{basePath: basePath}, nil
}

// keyPath maps a message key "accountID:folder:uid" onto a path under
// basePath, rejecting keys that would escape it.
func (a *fileArchive) keyPath(key string) (string, error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", ErrBadKey
	}

	// Reject traversal before Join gets a chance to collapse ".."
	// segments into something that looks clean.
	for _, part := range parts {
		if strings.Contains(part, "..") || filepath.IsAbs(part) {
			return "", ErrPathTraversal
		}
	}

	fullPath := filepath.Join(a.basePath, parts[0], folderSegment(parts[1]), parts[2]+".eml")

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("invalid archive path: %w", err)
	}
	absBase, err := filepath.Abs(a.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	return absPath, nil
}

// folderSegment flattens an IMAP folder name into a single path segment.
// Hierarchy separators and anything path-hostile are replaced so nested
// folders like "Clients/Active" stay one directory deep.
func folderSegment(folder string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, folder)
}

// Store writes raw bytes for a key, replacing any previous copy
func (a *fileArchive) Store(key string, raw []byte) error {
	if len(raw) > MaxRawSize {
		return fmt.Errorf("raw message for %s exceeds %d bytes", key, MaxRawSize)
	}

	fullPath, err := a.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create archive subdirectory: %w", err)
	}

	// Write to a temp file then rename so readers never observe a
	// half-written message.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".eml-*")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close archive file: %w", err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize archive file: %w", err)
	}

	return nil
}

// Get returns the raw bytes stored for a key
func (a *fileArchive) Get(key string) ([]byte, error) {
	fullPath, err := a.keyPath(key)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRawNotFound
		}
		return nil, fmt.Errorf("failed to read archive file: %w", err)
	}

	return raw, nil
}

// Delete removes the stored copy for a key, if any
func (a *fileArchive) Delete(key string) error {
	fullPath, err := a.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			// Already gone, not an error
			return nil
		}
		return fmt.Errorf("failed to delete archive file: %w", err)
	}

	return nil
}
