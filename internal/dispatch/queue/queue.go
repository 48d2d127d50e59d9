// Package queue holds the shared job queue that producers file descriptors
// into and the scheduler drains.
package queue

import (
	"context"
	"sort"

	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
	"fuzdispatch/pkg/utils/logger"

	"go.uber.org/zap"
)

// JobQueue is the shared store of pending descriptors.
type JobQueue interface {
	// Enqueue stores d keyed by its id and assigns its arrival sequence.
	Enqueue(ctx context.Context, d model.Descriptor) error

	// ClaimAllPending atomically removes and returns every pending
	// descriptor in arrival order. No descriptor is returned to two callers.
	ClaimAllPending(ctx context.Context) ([]model.Descriptor, error)

	// ListPending returns pending ids without claiming them.
	ListPending(ctx context.Context) ([]string, error)
}

// decodeEntries parses raw stored entries keyed by their storage name.
// Unparseable entries are logged and dropped.
func decodeEntries(ctx context.Context, backend string, entries map[string][]byte) []model.Descriptor {
	out := make([]model.Descriptor, 0, len(entries))
	for name, raw := range entries {
		d, err := model.DecodeDescriptor(raw)
		if err != nil {
			logger.Warn(ctx, "skip malformed job descriptor",
				zap.String("backend", backend),
				zap.String("entry", name),
				zap.Int("code", int(appErr.GetCode(err))),
				zap.Error(err),
			)
			continue
		}
		out = append(out, d)
	}
	sortArrival(out)
	return out
}

func sortArrival(ds []model.Descriptor) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Seq != ds[j].Seq {
			return ds[i].Seq < ds[j].Seq
		}
		return ds[i].ID < ds[j].ID
	})
}

func ids(ds []model.Descriptor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}

// validate admits only well-formed descriptors of a kind the scheduler can
// run, so every backend stores the same set of descriptors.
func validate(d model.Descriptor) error {
	if err := d.Validate(); err != nil {
		return appErr.MalformedError(d.ID, err.Error())
	}
	if !d.Kind.Known() {
		return appErr.UnknownKindError(d.ID, string(d.Kind))
	}
	return nil
}
