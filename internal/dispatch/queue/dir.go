package queue

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DirQueue spools one YAML file per descriptor in a shared directory.
// Producers write a hidden temp file and hard-link it into place, which
// fails if the id is already pending. Claimers rename each file into a
// private directory; rename succeeds for exactly one claimer.
type DirQueue struct {
	dir      string
	claimDir string
}

// NewDirQueue prepares dir and a claim directory private to this instance.
func NewDirQueue(dir string) (*DirQueue, error) {
	if dir == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("queue directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.QueueUnavailable, "create queue directory failed")
	}
	claimDir := filepath.Join(dir, ".claim-"+uuid.NewString())
	if err := os.MkdirAll(claimDir, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.QueueUnavailable, "create claim directory failed")
	}
	return &DirQueue{dir: dir, claimDir: claimDir}, nil
}

func (q *DirQueue) Enqueue(ctx context.Context, d model.Descriptor) error {
	if err := validate(d); err != nil {
		return err
	}
	if strings.ContainsAny(d.ID, `/\`) || strings.HasPrefix(d.ID, ".") {
		return appErr.MalformedError(d.ID, "id is not a valid file name")
	}
	d.Seq = time.Now().UnixNano()
	raw, err := model.EncodeDescriptor(d)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(q.dir, ".tmp-*")
	if err != nil {
		return appErr.Wrapf(err, appErr.QueueUnavailable, "create spool file failed")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return appErr.Wrapf(err, appErr.QueueUnavailable, "write spool file failed")
	}
	if err := tmp.Close(); err != nil {
		return appErr.Wrapf(err, appErr.QueueUnavailable, "close spool file failed")
	}

	if err := os.Link(tmpName, filepath.Join(q.dir, d.ID)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return appErr.New(appErr.DuplicateJob).WithDetail("job_id", d.ID)
		}
		return appErr.Wrapf(err, appErr.QueueUnavailable, "publish spool file failed")
	}
	return nil
}

func (q *DirQueue) ClaimAllPending(ctx context.Context) ([]model.Descriptor, error) {
	names, err := q.pendingNames()
	if err != nil {
		return nil, err
	}
	// Entries that cannot be claimed stay in the spool for the next cycle.
	// Once an entry has left the spool it is always returned.
	entries := make(map[string][]byte, len(names))
	for _, name := range names {
		spooled := filepath.Join(q.dir, name)
		claimed := filepath.Join(q.claimDir, name)
		if err := os.Rename(spooled, claimed); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn(ctx, "claim spool file failed",
					zap.String("job_id", name),
					zap.Int("code", int(appErr.QueueUnavailable)),
					zap.Error(err),
				)
			}
			continue
		}
		raw, err := os.ReadFile(claimed)
		if err != nil {
			logger.Warn(ctx, "read claimed spool file failed",
				zap.String("file", claimed),
				zap.Int("code", int(appErr.QueueUnavailable)),
				zap.Error(err),
			)
			if rbErr := os.Rename(claimed, spooled); rbErr != nil {
				logger.Error(ctx, "return claimed spool file failed", zap.String("file", claimed), zap.Error(rbErr))
			}
			continue
		}
		if err := os.Remove(claimed); err != nil {
			logger.Warn(ctx, "remove claimed spool file failed", zap.String("file", claimed), zap.Error(err))
		}
		entries[name] = raw
	}
	return decodeEntries(ctx, "dir", entries), nil
}

func (q *DirQueue) ListPending(ctx context.Context) ([]string, error) {
	names, err := q.pendingNames()
	if err != nil {
		return nil, err
	}
	entries := make(map[string][]byte, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(q.dir, name))
		if err != nil {
			continue
		}
		entries[name] = raw
	}
	return ids(decodeEntries(ctx, "dir", entries)), nil
}

// Close removes the private claim directory.
func (q *DirQueue) Close() error {
	return os.RemoveAll(q.claimDir)
}

func (q *DirQueue) pendingNames() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.QueueUnavailable, "read queue directory failed")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (q *DirQueue) String() string {
	return fmt.Sprintf("dir:%s", q.dir)
}
