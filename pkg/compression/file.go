package compression

import (
	"path"
	"strings"
	"time"
)

// File is an in-memory named upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	ModTime     time.Time
}

// Size returns the byte length of the file.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Blob is encoded bytes with a content type.
type Blob struct {
	Data        []byte
	ContentType string
}

const fallbackExtension = "jpg"

// NewCompressedFile wraps blob as "<name>_compressed.<ext>", keeping the
// original extension.
func NewCompressedFile(original File, blob Blob) File {
	return File{
		Name:        CompressedName(original.Name),
		ContentType: blob.ContentType,
		Data:        blob.Data,
		ModTime:     time.Now(),
	}
}

// CompressedName derives the compressed file name from the original one.
func CompressedName(name string) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = fallbackExtension
	}
	return base + "_compressed." + ext
}
