// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package avatar

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

// DiskStorage keeps avatars as files in a single directory.
type DiskStorage struct {
	dir string
}

// NewDiskStorage creates dir if needed.
func NewDiskStorage(dir string) (*DiskStorage, error) {
	if dir == "" {
		return nil, oops.Code("AVATAR_CONFIG_INVALID").Errorf("avatar directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, oops.Code("AVATAR_CONFIG_INVALID").With("dir", dir).Wrap(err)
	}
	return &DiskStorage{dir: dir}, nil
}

// Put writes body to a temporary file and renames it into place, so
// readers never see a partial image.
func (s *DiskStorage) Put(_ context.Context, key string, body []byte, _ string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return oops.Code("AVATAR_WRITE_FAILED").With("operation", "create temp file").Wrap(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return oops.Code("AVATAR_WRITE_FAILED").With("operation", "write temp file").Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return oops.Code("AVATAR_WRITE_FAILED").With("operation", "close temp file").Wrap(err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // avatars are public images
		return oops.Code("AVATAR_WRITE_FAILED").With("operation", "chmod").Wrap(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return oops.Code("AVATAR_WRITE_FAILED").With("operation", "rename").With("key", key).Wrap(err)
	}
	return nil
}

// Delete removes the file for key. A missing file is not an error.
func (s *DiskStorage) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("AVATAR_DELETE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// path resolves key inside dir. Keys are plain file names.
func (s *DiskStorage) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", oops.Code("AVATAR_KEY_INVALID").With("key", key).Errorf("avatar key must be a plain file name")
	}
	return filepath.Join(s.dir, key), nil
}

var _ Storage = (*DiskStorage)(nil)
