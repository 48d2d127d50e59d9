package result

import (
	"context"
	"time"

	"fuzdispatch/internal/common/cache"
	"fuzdispatch/internal/dispatch/model"
	appErr "fuzdispatch/pkg/errors"
)

const (
	defaultPrefix    = "dispatch:result"
	defaultTTL       = 24 * time.Hour
	defaultWaitSlice = time.Second
)

// RedisChannel stores each verdict under its own key with SETNX and pushes
// a wake-up token onto a per-job list that Wait blocks on.
type RedisChannel struct {
	cache     cache.Cache
	prefix    string
	ttl       time.Duration
	waitSlice time.Duration
}

// RedisOption customizes a RedisChannel.
type RedisOption func(*RedisChannel)

// WithTTL sets how long published verdicts are kept.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *RedisChannel) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithWaitSlice bounds a single blocking pop inside Wait.
func WithWaitSlice(d time.Duration) RedisOption {
	return func(c *RedisChannel) {
		if d > 0 {
			c.waitSlice = d
		}
	}
}

// NewRedisChannel creates a channel under prefix.
func NewRedisChannel(c cache.Cache, prefix string, opts ...RedisOption) (*RedisChannel, error) {
	if c == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("cache is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	ch := &RedisChannel{cache: c, prefix: prefix, ttl: defaultTTL, waitSlice: defaultWaitSlice}
	for _, opt := range opts {
		opt(ch)
	}
	return ch, nil
}

func (c *RedisChannel) verdictKey(jobID string) string {
	return c.prefix + ":verdict:" + jobID
}

func (c *RedisChannel) notifyKey(jobID string) string {
	return c.prefix + ":notify:" + jobID
}

func (c *RedisChannel) Publish(ctx context.Context, jobID string, v model.Verdict) error {
	if err := checkPublish(jobID, v); err != nil {
		return err
	}
	ok, err := c.cache.SetNX(ctx, c.verdictKey(jobID), string(v), c.ttl)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "publish verdict failed")
	}
	if !ok {
		return alreadyPublished(jobID)
	}
	// The verdict key is authoritative; a lost wake-up only delays Wait by one slice.
	notify := c.notifyKey(jobID)
	if err := c.cache.RPush(ctx, notify, string(v)); err == nil {
		_ = c.cache.Expire(ctx, notify, c.ttl)
	}
	return nil
}

func (c *RedisChannel) TryRead(ctx context.Context, jobID string) (model.Verdict, bool, error) {
	raw, err := c.cache.Get(ctx, c.verdictKey(jobID))
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.CacheError, "read verdict failed")
	}
	if raw == "" {
		return "", false, nil
	}
	v, err := model.ParseVerdict(raw)
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.CacheError, "stored verdict for %s is invalid", jobID)
	}
	return v, true, nil
}

func (c *RedisChannel) Wait(ctx context.Context, jobID string) (model.Verdict, error) {
	for {
		v, ok, err := c.TryRead(ctx, jobID)
		if err != nil {
			return "", err
		}
		if ok {
			return v, nil
		}
		if ctx.Err() != nil {
			return "", waitAborted(ctx, jobID)
		}

		slice := c.waitSlice
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < slice {
				slice = remaining
			}
		}
		if slice <= 0 {
			return "", waitAborted(ctx, jobID)
		}
		if _, err := c.cache.BLPop(ctx, slice, c.notifyKey(jobID)); err != nil {
			if ctx.Err() != nil || pastDeadline(ctx) {
				return "", waitAborted(ctx, jobID)
			}
			return "", appErr.Wrapf(err, appErr.CacheError, "wait for verdict failed")
		}
	}
}

func (c *RedisChannel) Discard(ctx context.Context, jobIDs ...string) error {
	if len(jobIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, 2*len(jobIDs))
	for _, id := range jobIDs {
		keys = append(keys, c.verdictKey(id), c.notifyKey(id))
	}
	if err := c.cache.Del(ctx, keys...); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "discard verdicts failed")
	}
	return nil
}

func pastDeadline(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}
