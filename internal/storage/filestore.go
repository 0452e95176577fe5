// Package storage holds the Upload Service used after compression. FileStore
// is the local-disk implementation; production deployments swap in a remote
// Uploader behind the same interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultChunkSize is the write granularity used for progress reporting.
const DefaultChunkSize = 256 * 1024

var (
	// ErrEmptyName is returned when an upload has no usable file name
	ErrEmptyName = errors.New("upload name is empty")
	// ErrNotFound is returned when a stored path does not exist
	ErrNotFound = errors.New("stored file not found")
)

// ProgressFunc receives the bytes written so far and the total.
type ProgressFunc func(written, total int64)

// Uploader stores a named blob and returns the path it was stored under.
type Uploader interface {
	Upload(ctx context.Context, name, mimeType string, data []byte, onProgress ProgressFunc) (string, error)
}

// FileStore writes uploads below a root directory as "<uuid>/<name>".
type FileStore struct {
	root      string
	chunkSize int
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &FileStore{root: root, chunkSize: DefaultChunkSize}, nil
}

// SetChunkSize changes the progress granularity.
func (s *FileStore) SetChunkSize(n int) {
	if n > 0 {
		s.chunkSize = n
	}
}

// Upload writes data and reports progress after every chunk. A failed or
// cancelled upload leaves nothing behind.
func (s *FileStore) Upload(ctx context.Context, name, mimeType string, data []byte, onProgress ProgressFunc) (string, error) {
	clean := sanitizeName(name)
	if clean == "" {
		return "", ErrEmptyName
	}

	id := uuid.NewString()
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	if err := s.write(ctx, filepath.Join(dir, clean), data, onProgress); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	// mime type is kept next to the file so readers don't have to sniff
	if err := os.WriteFile(filepath.Join(dir, ".content-type"), []byte(mimeType), 0o644); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("write content type: %w", err)
	}

	return path.Join(id, clean), nil
}

func (s *FileStore) write(ctx context.Context, dst string, data []byte, onProgress ProgressFunc) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer f.Close()

	total := int64(len(data))
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(written+int64(s.chunkSize), total)
		n, err := f.Write(data[written:end])
		written += int64(n)
		if err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
		if onProgress != nil {
			onProgress(written, total)
		}
		if written >= total {
			break
		}
	}
	return f.Sync()
}

// Open returns the stored bytes and content type for a path from Upload.
func (s *FileStore) Open(stored string) ([]byte, string, error) {
	id, name, ok := strings.Cut(stored, "/")
	if !ok || !isUUID(id) || name != sanitizeName(name) {
		return nil, "", ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.root, id, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	ct, _ := os.ReadFile(filepath.Join(s.root, id, ".content-type"))
	return data, string(ct), nil
}

// sanitizeName keeps the base name and drops anything that could escape the
// upload directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." || strings.HasPrefix(name, ".") {
		name = strings.TrimLeft(name, "./")
	}
	return name
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
