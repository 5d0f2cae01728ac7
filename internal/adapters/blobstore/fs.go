// Package blobstore provides a filesystem-backed core.BlobStore.
//
// Each storage area is a directory under the root; object keys map to
// relative paths inside it. Writes land in a temp file and are renamed into
// place, so readers never observe a partial object and Copy can be re-run.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/target/quarantine-scanner/internal/core"
	apperrors "github.com/target/quarantine-scanner/internal/errors"
)

const tmpDirName = ".tmp"

// FS stores objects in per-area directories on a local or mounted filesystem.
type FS struct {
	root string
}

var _ core.BlobStore = (*FS)(nil)

// NewFS creates the root and its temp directory if needed.
func NewFS(root string) (*FS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("blobstore root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blobstore root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, tmpDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create blobstore root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FS) Root() string {
	return s.root
}

// Get opens the object for reading.
func (s *FS) Get(ctx context.Context, area, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.objectPath(area, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.NotFoundf("object %s/%s not found", area, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", area, key, err)
	}
	return f, nil
}

// Put writes the object, replacing any existing content.
func (s *FS) Put(ctx context.Context, area, key string, r io.Reader) error {
	if r == nil {
		return errors.New("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.objectPath(area, key)
	if err != nil {
		return err
	}
	return s.writeAtomic(dst, r)
}

// Copy duplicates srcArea/key into dstArea/key, overwriting the destination.
func (s *FS) Copy(ctx context.Context, srcArea, key, dstArea string) error {
	src, err := s.Get(ctx, srcArea, key)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := s.objectPath(dstArea, key)
	if err != nil {
		return err
	}
	if err := s.writeAtomic(dst, src); err != nil {
		return fmt.Errorf("copy %s/%s to %s: %w", srcArea, key, dstArea, err)
	}
	return nil
}

// Delete removes the object. Missing objects are ignored.
func (s *FS) Delete(ctx context.Context, area, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.objectPath(area, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s/%s: %w", area, key, err)
	}
	return nil
}

// Exists reports whether the object is present.
func (s *FS) Exists(ctx context.Context, area, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.objectPath(area, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s/%s: %w", area, key, err)
	}
}

func (s *FS) writeAtomic(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), "put-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return err
	}
	return nil
}

func (s *FS) objectPath(area, key string) (string, error) {
	area = strings.TrimSpace(area)
	if area == "" || area == tmpDirName || strings.ContainsAny(area, `/\`) || strings.HasPrefix(area, ".") {
		return "", apperrors.ValidationField("area", fmt.Sprintf("invalid storage area %q", area))
	}
	if key == "" || strings.HasPrefix(key, "/") {
		return "", apperrors.ValidationField("key", fmt.Sprintf("invalid object key %q", key))
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperrors.ValidationField("key", fmt.Sprintf("invalid object key %q", key))
	}
	return filepath.Join(s.root, area, clean), nil
}
