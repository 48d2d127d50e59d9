package problem

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	cachex "fuzdispatch/internal/common/cache"
	"fuzdispatch/internal/dispatch/model"
)

const metaKeyPrefix = "dispatch:problem:meta:"

const (
	defaultMetaTTL      = time.Hour
	defaultMetaEmptyTTL = time.Minute
)

type metaEntry struct {
	meta      model.ProblemMeta
	expiresAt time.Time
}

// CachedStore fronts a Store with an in-process TTL map and, when a cache
// client is given, the shared Redis cache. Absent problems are cached as
// null values for the empty TTL.
type CachedStore struct {
	next     Store
	cache    cachex.Cache
	ttl      time.Duration
	emptyTTL time.Duration
	localTTL time.Duration

	mu    sync.Mutex
	local map[string]metaEntry
}

// NewCachedStore wraps next. cacheClient may be nil; localTTL <= 0 disables
// the in-process layer.
func NewCachedStore(next Store, cacheClient cachex.Cache, ttl, emptyTTL, localTTL time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultMetaTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultMetaEmptyTTL
	}
	return &CachedStore{
		next:     next,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
		localTTL: localTTL,
		local:    make(map[string]metaEntry),
	}
}

func (s *CachedStore) Get(ctx context.Context, problemID string) (*model.ProblemMeta, error) {
	now := time.Now()
	if s.localTTL > 0 {
		s.mu.Lock()
		entry, ok := s.local[problemID]
		s.mu.Unlock()
		if ok && now.Before(entry.expiresAt) {
			meta := entry.meta
			return &meta, nil
		}
	}

	meta, err := s.load(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, notFound(problemID)
	}
	if s.localTTL > 0 {
		s.mu.Lock()
		s.local[problemID] = metaEntry{meta: *meta, expiresAt: now.Add(s.localTTL)}
		s.mu.Unlock()
	}
	return meta, nil
}

// load returns nil, nil for absent problems.
func (s *CachedStore) load(ctx context.Context, problemID string) (*model.ProblemMeta, error) {
	fetch := func(ctx context.Context) (*model.ProblemMeta, error) {
		meta, err := s.next.Get(ctx, problemID)
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return meta, nil
	}
	if s.cache == nil {
		return fetch(ctx)
	}
	return cachex.GetWithCached[*model.ProblemMeta](
		ctx,
		s.cache,
		metaKeyPrefix+problemID,
		cachex.JitterTTL(s.ttl),
		cachex.JitterTTL(s.emptyTTL),
		func(m *model.ProblemMeta) bool { return m == nil },
		marshalMeta,
		unmarshalMeta,
		fetch,
	)
}

func marshalMeta(meta *model.ProblemMeta) string {
	data, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalMeta(data string) (*model.ProblemMeta, error) {
	var meta model.ProblemMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
