// Package store 提供 core.Store 的实现，二排用它缓存 feature vector。
//
//	var s core.Store = store.NewMemoryStore(store.WithMaxEntries(100000))
//	var s core.Store, _ = store.NewRedisStore("localhost:6379", 0)
package store

import "github.com/rushteam/rescore/core"

// ErrNotFound 是 core.ErrStoreNotFound 的别名。
var ErrNotFound = core.ErrStoreNotFound
