// Package storage saves uploaded images on the local file system and
// returns the public path they are served from.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEmptyFile = errors.New("file is empty")
	ErrTooLarge  = errors.New("file is too large")
	ErrNotImage  = errors.New("only image files are allowed")
)

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalStore writes files below Root and exposes them under PublicPrefix.
type LocalStore struct {
	Root         string
	PublicPrefix string
	MaxBytes     int64
}

// NewLocalStore returns a store rooted at root served from /uploads.
func NewLocalStore(root string, maxBytes int64) *LocalStore {
	return &LocalStore{Root: root, PublicPrefix: "/uploads", MaxBytes: maxBytes}
}

// SaveImage validates an uploaded image and stores it as
// <dir>/<prefix>-<uuid><ext>.  The returned value is the public URL path.
func (s *LocalStore) SaveImage(fh *multipart.FileHeader, dir, prefix string) (string, error) {
	if fh == nil || fh.Size == 0 {
		return "", ErrEmptyFile
	}
	if s.MaxBytes > 0 && fh.Size > s.MaxBytes {
		return "", ErrTooLarge
	}
	if ct := fh.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return "", ErrNotImage
	}

	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return s.save(src, dir, prefix)
}

func (s *LocalStore) save(src io.Reader, dir, prefix string) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if n == 0 {
		return "", ErrEmptyFile
	}
	head = head[:n]
	ext, ok := imageExt[http.DetectContentType(head)]
	if !ok {
		return "", ErrNotImage
	}

	target := filepath.Join(s.Root, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), ext)
	full := filepath.Join(target, name)
	dst, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}

	body := io.MultiReader(strings.NewReader(string(head)), src)
	if s.MaxBytes > 0 {
		body = io.LimitReader(body, s.MaxBytes+1)
	}
	written, err := io.Copy(dst, body)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.MaxBytes > 0 && written > s.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return path.Join(s.PublicPrefix, filepath.ToSlash(dir), name), nil
}

// Remove deletes a file previously returned by SaveImage.  Paths outside
// the store are ignored.
func (s *LocalStore) Remove(publicURL string) error {
	rel, ok := strings.CutPrefix(publicURL, s.PublicPrefix+"/")
	if !ok || strings.Contains(rel, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(s.Root, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
