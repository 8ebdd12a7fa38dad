package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Storage persists uploaded files under slash-separated relative paths.
type Storage interface {
	Disk() string
	Save(ctx context.Context, rel string, r io.Reader) (int64, error)
	Delete(ctx context.Context, rel string) error
	URL(rel string) string
}

// LocalStorage writes files below a root directory served under a URL prefix.
type LocalStorage struct {
	root      string
	urlPrefix string
}

func NewLocalStorage(root, urlPrefix string) *LocalStorage {
	return &LocalStorage{root: root, urlPrefix: strings.TrimRight(urlPrefix, "/")}
}

func (l *LocalStorage) Disk() string { return "local" }

func (l *LocalStorage) full(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", errors.New("empty storage path")
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Save writes r to rel, creating parent directories.
func (l *LocalStorage) Save(_ context.Context, rel string, r io.Reader) (int64, error) {
	dst, err := l.full(rel)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return 0, err
	}
	return n, nil
}

// Delete removes rel. A missing file is not an error.
func (l *LocalStorage) Delete(_ context.Context, rel string) error {
	dst, err := l.full(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *LocalStorage) URL(rel string) string {
	return l.urlPrefix + "/" + strings.TrimLeft(rel, "/")
}
