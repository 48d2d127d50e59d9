package problem

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
)

// Metadata file names tried in order inside problem-<id>/.
var metaFileNames = []string{"meta.yaml", "meta.txt"}

// metaFile is the on-disk metadata layout.
type metaFile struct {
	Checkpoints int     `yaml:"checkpoints"`
	TimeLimit   float64 `yaml:"timelimit"`
	MemoryLimit float64 `yaml:"memorylimit"`
}

// DirStore reads <root>/problem-<id>/meta.yaml (or meta.txt).
type DirStore struct {
	root string
}

// NewDirStore creates a directory backed store.
func NewDirStore(root string) (*DirStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("problem data dir is required")
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) Get(ctx context.Context, problemID string) (*model.ProblemMeta, error) {
	if problemID == "" || strings.ContainsAny(problemID, `/\`) || problemID == "." || problemID == ".." {
		return nil, appErr.ValidationError("problem_id", "invalid")
	}
	dir := filepath.Join(s.root, "problem-"+problemID)
	for _, name := range metaFileNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, appErr.Wrapf(err, appErr.StorageError, "read problem metadata failed")
		}
		var f metaFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, appErr.Wrapf(err, appErr.InvalidFormat, "decode problem metadata failed")
		}
		meta := &model.ProblemMeta{
			ProblemID:       problemID,
			CheckpointCount: f.Checkpoints,
			TimeLimit:       f.TimeLimit,
			MemoryLimit:     f.MemoryLimit,
		}
		if err := validMeta(meta); err != nil {
			return nil, err
		}
		return meta, nil
	}
	return nil, notFound(problemID)
}
