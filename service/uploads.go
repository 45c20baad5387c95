package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mstgnz/dukapi/infra/logger"
)

const (
	MaxUploadBytes = 20 << 20
	uploadPrefix   = "/uploads/"
)

var allowedImageExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Uploads stores image files on local disk under dir
type Uploads struct {
	dir      string
	maxBytes int64
}

func NewUploads(dir string) *Uploads {
	return &Uploads{dir: dir, maxBytes: MaxUploadBytes}
}

// Dir is the directory files are written to
func (u *Uploads) Dir() string {
	return u.dir
}

// Save writes r under a random name keeping the extension of filename and
// returns the public path.
func (u *Uploads) Save(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedImageExt[ext] {
		return "", ErrInvalidFile
	}

	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	path := filepath.Join(u.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, u.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if n > u.maxBytes {
		_ = os.Remove(path)
		return "", ErrFileTooLarge
	}

	return uploadPrefix + name, nil
}

// Remove deletes the local file behind a public upload path. Remote URLs are ignored.
func (u *Uploads) Remove(publicPath string) {
	if u == nil || !strings.HasPrefix(publicPath, uploadPrefix) {
		return
	}

	name := filepath.Base(publicPath)
	if name == "." || name == "/" || strings.Contains(publicPath[len(uploadPrefix):], "..") {
		return
	}

	if err := os.Remove(filepath.Join(u.dir, name)); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove uploaded file", logger.LogContext{
			Fields: map[string]any{"path": publicPath, "error": err.Error()},
		})
	}
}
