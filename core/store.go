package core

import (
	"context"
	"time"
)

// Store 是跨请求共享的 KV 存储，二排用它保存 feature vector（key 见 FeatureLogger.Key）。
// 实现位于 store 包：MemoryStore 单进程，RedisStore 多实例共享。
// 实现必须并发安全。
type Store interface {
	Name() string

	// Get 在 key 不存在或已过期时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入 value；ttl <= 0 表示不过期，同时清除 key 原有的过期时间
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// BatchGet 只返回存在的 key
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	BatchSet(ctx context.Context, kvs map[string][]byte, ttl time.Duration) error

	Close() error
}

var ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

// IsStoreNotFound 判断 err 是否为 Store 的 key 不存在。
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	return domainErr != nil && domainErr.Module == ModuleStore && domainErr.Code == ErrorCodeNotFound
}
