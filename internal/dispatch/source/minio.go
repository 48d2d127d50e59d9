package source

import (
	"bytes"
	"context"

	"github.com/klauspost/compress/zstd"

	"fuzdispatch/internal/common/storage"
	appErr "fuzdispatch/pkg/errors"
)

const zstdExt = ".zst"

// MinIOConfig configures MinIOStore.
type MinIOConfig struct {
	Bucket   string `json:"bucket"`
	Prefix   string `json:"prefix,optional"`
	Compress bool   `json:"compress,optional"`
}

// MinIOStore keeps sources in object storage under
// <prefix><submission_id>.cpp, or .cpp.zst when compressed.
type MinIOStore struct {
	storage  storage.ObjectStorage
	bucket   string
	prefix   string
	compress bool
}

// NewMinIOStore creates an object storage backed source store.
func NewMinIOStore(objectStorage storage.ObjectStorage, cfg MinIOConfig) (*MinIOStore, error) {
	if objectStorage == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("object storage is required")
	}
	if cfg.Bucket == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("source bucket is required")
	}
	return &MinIOStore{storage: objectStorage, bucket: cfg.Bucket, prefix: cfg.Prefix, compress: cfg.Compress}, nil
}

func (s *MinIOStore) key(submissionID string) string {
	return s.prefix + submissionID + SourceExt
}

// Fetch tries the compressed object first and falls back to the plain one.
func (s *MinIOStore) Fetch(ctx context.Context, submissionID, dstDir string) (string, error) {
	if err := validID(submissionID); err != nil {
		return "", err
	}
	base := s.key(submissionID)
	reader, err := s.storage.GetObject(ctx, s.bucket, base+zstdExt)
	if err == nil {
		defer reader.Close()
		dec, err := zstd.NewReader(reader)
		if err != nil {
			return "", appErr.Wrapf(err, appErr.StorageError, "create zstd reader failed")
		}
		defer dec.Close()
		return writeSource(dstDir, submissionID, dec)
	}
	if !appErr.Is(err, appErr.ObjectNotFound) {
		return "", appErr.Wrapf(err, appErr.StorageError, "download source failed")
	}

	reader, err = s.storage.GetObject(ctx, s.bucket, base)
	if err != nil {
		if appErr.Is(err, appErr.ObjectNotFound) {
			return "", sourceNotFound(submissionID)
		}
		return "", appErr.Wrapf(err, appErr.StorageError, "download source failed")
	}
	defer reader.Close()
	return writeSource(dstDir, submissionID, reader)
}

func (s *MinIOStore) Put(ctx context.Context, submissionID string, code []byte) error {
	if err := validID(submissionID); err != nil {
		return err
	}
	key := s.key(submissionID)
	body := code
	contentType := "text/plain"
	if s.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return appErr.Wrapf(err, appErr.StorageError, "create zstd writer failed")
		}
		body = enc.EncodeAll(code, nil)
		_ = enc.Close()
		key += zstdExt
		contentType = "application/zstd"
	}
	if err := s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "upload source failed")
	}
	return nil
}
