// Package docstore abstracts the document repository the engine reads from.
// The core never assumes a backend: documents are enumerable entries
// addressable by key and read as raw bytes, whether they live on a mounted
// filesystem or behind an S3-compatible object API.
package docstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
)

// Entry describes one stored document.
type Entry struct {
	// Key is the backend-relative address used with Read.
	Key string
	// Size is the object size in bytes.
	Size int64
}

// Store is an enumerable, byte-oriented document collection.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// FS is a Store backed by a directory tree.
type FS struct {
	root string
	exts map[string]bool
}

// NewFS creates a filesystem store rooted at root. If exts is non-empty only
// files with those extensions (lowercase, with dot) are listed.
func NewFS(root string, exts ...string) *FS {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[strings.ToLower(e)] = true
	}
	return &FS{root: root, exts: m}
}

// List walks the root and returns matching files sorted by key.
func (s *FS) List(_ context.Context) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(s.exts) > 0 && !s.exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Key: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("docstore: list %s: %w", s.root, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("docstore: list %s: %w", s.root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Read returns the raw bytes for a key.
func (s *FS) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("docstore: read %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("docstore: read %s: %w", key, err)
	}
	return data, nil
}
