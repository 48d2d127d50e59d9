package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	appErr "fuzdispatch/pkg/errors"
)

// LocalStore keeps sources as <root>/<submission_id>.cpp.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("source dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "create source dir failed")
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(submissionID string) string {
	return filepath.Join(s.root, submissionID+SourceExt)
}

func (s *LocalStore) Fetch(ctx context.Context, submissionID, dstDir string) (string, error) {
	if err := validID(submissionID); err != nil {
		return "", err
	}
	src, err := os.Open(s.path(submissionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", sourceNotFound(submissionID)
		}
		return "", appErr.Wrapf(err, appErr.StorageError, "open source failed")
	}
	defer src.Close()
	return writeSource(dstDir, submissionID, src)
}

func (s *LocalStore) Put(ctx context.Context, submissionID string, code []byte) error {
	if err := validID(submissionID); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.root, ".put-*")
	if err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "create source failed")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(code); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return appErr.Wrapf(err, appErr.StorageError, "write source failed")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return appErr.Wrapf(err, appErr.StorageError, "write source failed")
	}
	if err := os.Rename(tmpName, s.path(submissionID)); err != nil {
		os.Remove(tmpName)
		return appErr.Wrapf(err, appErr.StorageError, "store source failed")
	}
	return nil
}

func writeSource(dstDir, submissionID string, r io.Reader) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "create work dir failed")
	}
	dstPath := filepath.Join(dstDir, submissionID+SourceExt)
	file, err := os.Create(dstPath)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "create source file failed")
	}
	defer file.Close()
	if _, err := io.Copy(file, r); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "write source file failed")
	}
	return dstPath, nil
}
