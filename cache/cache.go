package cache

import (
	"sync"
)

// Regenerates a value when the caller's stamp differs from the one the
// value was generated with.
type GenFunc[V any, S comparable] func() (V, S, error)

type cacheValue[V any, S comparable] struct {
	mu    sync.Mutex
	valid bool
	stamp S
	data  V
}

// Per-key cache of values that are regenerated when their stamp changes.
// Concurrent Gets for the same key are serialized so a value is generated at
// most once per stamp.
type Cache[K comparable, V any, S comparable] struct {
	mu    sync.Mutex
	store map[K]*cacheValue[V, S]
}

func New[K comparable, V any, S comparable]() *Cache[K, V, S] {
	return &Cache[K, V, S]{
		store: make(map[K]*cacheValue[V, S]),
	}
}

func (me *Cache[K, V, S]) Get(key K, stamp S, genfn GenFunc[V, S]) (data V, err error) {
	me.mu.Lock()
	val, ok := me.store[key]
	if !ok {
		val = &cacheValue[V, S]{}
		me.store[key] = val
	}
	me.mu.Unlock()
	val.mu.Lock()
	defer val.mu.Unlock()
	if !val.valid || val.stamp != stamp {
		var newStamp S
		data, newStamp, err = genfn()
		if err != nil {
			val.valid = false
			return
		}
		val.data, val.stamp, val.valid = data, newStamp, true
	}
	data = val.data
	return
}

// Drops key so the next Get regenerates it.
func (me *Cache[K, V, S]) Delete(key K) {
	me.mu.Lock()
	delete(me.store, key)
	me.mu.Unlock()
}

func (me *Cache[K, V, S]) Len() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return len(me.store)
}
