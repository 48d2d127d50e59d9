package queue

import (
	"context"

	"fuzdispatch/internal/common/cache"
	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
)

const defaultRedisPrefix = "dispatch:queue"

// RedisQueue keeps pending descriptors in a Redis hash of id to YAML.
// Claiming drains the hash inside MULTI/EXEC.
type RedisQueue struct {
	cache   cache.Cache
	jobsKey string
	seqKey  string
}

// NewRedisQueue creates a queue under the given key prefix.
func NewRedisQueue(c cache.Cache, prefix string) (*RedisQueue, error) {
	if c == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("cache is required")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisQueue{
		cache:   c,
		jobsKey: prefix + ":jobs",
		seqKey:  prefix + ":seq",
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, d model.Descriptor) error {
	if err := validate(d); err != nil {
		return err
	}
	seq, err := q.cache.Incr(ctx, q.seqKey)
	if err != nil {
		return appErr.Wrapf(err, appErr.QueueUnavailable, "assign job sequence failed")
	}
	d.Seq = seq
	raw, err := model.EncodeDescriptor(d)
	if err != nil {
		return err
	}
	ok, err := q.cache.HSetNX(ctx, q.jobsKey, d.ID, raw)
	if err != nil {
		return appErr.Wrapf(err, appErr.QueueUnavailable, "enqueue job failed")
	}
	if !ok {
		return appErr.New(appErr.DuplicateJob).WithDetail("job_id", d.ID)
	}
	return nil
}

func (q *RedisQueue) ClaimAllPending(ctx context.Context) ([]model.Descriptor, error) {
	all, err := q.cache.HDrain(ctx, q.jobsKey)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.QueueUnavailable, "claim pending jobs failed")
	}
	return decodeEntries(ctx, "redis", toBytes(all)), nil
}

func (q *RedisQueue) ListPending(ctx context.Context) ([]string, error) {
	all, err := q.cache.HGetAll(ctx, q.jobsKey)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.QueueUnavailable, "list pending jobs failed")
	}
	return ids(decodeEntries(ctx, "redis", toBytes(all))), nil
}

func toBytes(in map[string]string) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		out[k] = []byte(v)
	}
	return out
}
