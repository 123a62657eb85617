package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

// File stores the ledger as a JSON document on disk. Saves go to a temporary
// file that is renamed over the target, so a crash never leaves a torn document.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a File store at path. The parent directory is created on
// first save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the document location.
func (f *File) Path() string { return f.path }

// Load implements ledger.Store.
func (f *File) Load(_ context.Context) ([]ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ledger.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	return Unmarshal(b)
}

// Save implements ledger.Store.
func (f *File) Save(_ context.Context, entries []ledger.Entry) error {
	b, err := Marshal(entries)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(b); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("sync ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
