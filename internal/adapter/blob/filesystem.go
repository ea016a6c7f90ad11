package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rl1809/lending/internal/port"
)

const metaSuffix = ".content-type"

// FileStore keeps objects as plain files under a root directory. The content
// type is stored next to each object in a sidecar file.
type FileStore struct {
	root    string
	baseURL string
}

var _ port.BlobStore = (*FileStore)(nil)

func NewFileStore(root, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FileStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := writeAtomic(p, data); err != nil {
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	if contentType != "" {
		if err := writeAtomic(p+metaSuffix, []byte(contentType)); err != nil {
			return "", fmt.Errorf("write blob meta %s: %w", key, err)
		}
	}
	return s.baseURL + "/" + key, nil
}

func (s *FileStore) GetStream(ctx context.Context, key string) (io.ReadCloser, string, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", 0, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", 0, port.ErrBlobNotFound
	}
	if err != nil {
		return nil, "", 0, fmt.Errorf("open blob %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, "", 0, fmt.Errorf("stat blob %s: %w", key, err)
	}
	return f, s.contentType(p, key), info.Size(), nil
}

func (s *FileStore) contentType(p, key string) string {
	if meta, err := os.ReadFile(p + metaSuffix); err == nil && len(meta) > 0 {
		return string(meta)
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// path rejects keys that would escape the root.
func (s *FileStore) path(key string) (string, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) || strings.HasSuffix(key, metaSuffix) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func writeAtomic(p string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}
