package sound

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nadzzz/islandgreet/internal/player"
)

const blobScheme = "file://"

// Blobs keeps fetched audio in temp files and hands out file:// URLs.
type Blobs struct {
	dir string

	mu   sync.Mutex
	live map[string]string // url -> path
}

var _ player.BlobStore = (*Blobs)(nil)

// NewBlobs creates a private directory under parent (os.TempDir when empty).
func NewBlobs(parent string) (*Blobs, error) {
	dir, err := os.MkdirTemp(parent, "islandgreet-*")
	if err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Blobs{dir: dir, live: make(map[string]string)}, nil
}

// Create writes data to a new file and returns its URL.
func (b *Blobs) Create(data []byte) (string, error) {
	f, err := os.CreateTemp(b.dir, "greeting-*.mp3")
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}

	url := blobScheme + filepath.ToSlash(f.Name())
	b.mu.Lock()
	b.live[url] = f.Name()
	b.mu.Unlock()
	return url, nil
}

// Read returns the contents behind a live URL.
func (b *Blobs) Read(url string) ([]byte, error) {
	b.mu.Lock()
	path, ok := b.live[url]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("blob %s not found", url)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Revoke deletes the file behind url. Unknown URLs are ignored.
func (b *Blobs) Revoke(url string) {
	b.mu.Lock()
	path, ok := b.live[url]
	delete(b.live, url)
	b.mu.Unlock()
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("revoking blob failed", "path", path, "error", err)
	}
}

// Len returns the number of live blobs.
func (b *Blobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Close revokes every blob and removes the directory.
func (b *Blobs) Close() error {
	b.mu.Lock()
	b.live = make(map[string]string)
	b.mu.Unlock()
	return os.RemoveAll(b.dir)
}
