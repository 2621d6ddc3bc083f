package store

import (
	"context"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/rushteam/rescore/core"
)

// MemoryStore 是进程内的 Store：支持 TTL 与 LRU 容量上限，进程重启后数据丢失。
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   map[string]time.Time

	cleanupInterval time.Duration
	clean           *time.Ticker
	done            chan struct{}
	closeOnce       sync.Once
}

var _ core.Store = (*MemoryStore)(nil)

type MemoryOption func(*MemoryStore)

// WithMaxEntries 设置容量上限，超过后淘汰最久未访问的 key；0 表示不限制。
func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryStore) { m.cache.MaxEntries = n }
}

// DefaultCleanupInterval 是过期 key 的默认清理周期
const DefaultCleanupInterval = 10 * time.Second

// WithCleanupInterval 设置过期 key 的清理周期，<= 0 时使用 DefaultCleanupInterval。
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.cleanupInterval = d }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	ms := &MemoryStore{
		cache:           lru.New(0),
		ttl:             make(map[string]time.Time),
		cleanupInterval: DefaultCleanupInterval,
		done:            make(chan struct{}),
	}
	ms.cache.OnEvicted = func(key lru.Key, _ any) {
		delete(ms.ttl, key.(string))
	}
	for _, opt := range opts {
		opt(ms)
	}
	if ms.cleanupInterval <= 0 {
		ms.cleanupInterval = DefaultCleanupInterval
	}
	ms.clean = time.NewTicker(ms.cleanupInterval)
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) get(key string, now time.Time) ([]byte, bool) {
	if expire, ok := m.ttl[key]; ok && now.After(expire) {
		m.cache.Remove(key)
		return nil, false
	}
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (m *MemoryStore) set(key string, value []byte, expire time.Time) {
	m.cache.Add(key, value)
	if expire.IsZero() {
		delete(m.ttl, key)
	} else {
		m.ttl[key] = expire
	}
}

func expireAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.get(key, time.Now())
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set(key, value, expireAt(ttl))
	return nil
}

func (m *MemoryStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string][]byte, len(keys))
	now := time.Now()
	for _, k := range keys {
		if v, ok := m.get(k, now); ok {
			result[k] = v
		}
	}
	return result, nil
}

func (m *MemoryStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expire := expireAt(ttl)
	for k, v := range kvs {
		m.set(k, v, expire)
	}
	return nil
}

// Len 返回当前 key 数（可能包含尚未清理的过期 key）。
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		m.clean.Stop()
		close(m.done)
	})
	return nil
}

func (m *MemoryStore) cleanup() {
	for {
		select {
		case <-m.clean.C:
			m.removeExpired(time.Now())
		case <-m.done:
			return
		}
	}
}

func (m *MemoryStore) removeExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, expire := range m.ttl {
		if now.After(expire) {
			m.cache.Remove(k)
			delete(m.ttl, k)
		}
	}
}
