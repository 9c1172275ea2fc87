package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	key      string
	data     []byte
	expireAt time.Time
}

// MemoryCache is a size-bounded LRU with per-entry TTL.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	cfg     MemoryConfig
	stop    chan struct{}
	once    sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		DefaultTTL:      24 * time.Hour,
		Now:             time.Now,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1
	}
	mc := &MemoryCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go mc.cleanupLoop()
	}
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = mc.cfg.DefaultTTL
	}
	expireAt := mc.cfg.Now().Add(ttl)

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if el, ok := mc.entries[key]; ok {
		e := el.Value.(*memoryEntry)
		e.data, e.expireAt = data, expireAt
		mc.lru.MoveToFront(el)
		return nil
	}
	mc.entries[key] = mc.lru.PushFront(&memoryEntry{key: key, data: data, expireAt: expireAt})
	for mc.lru.Len() > mc.cfg.MaxSize {
		mc.removeElement(mc.lru.Back())
	}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el, ok := mc.entries[key]
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	e := el.Value.(*memoryEntry)
	if !mc.cfg.Now().Before(e.expireAt) {
		mc.removeElement(el)
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.lru.MoveToFront(el)
	data := e.data
	mc.mu.Unlock()

	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if el, ok := mc.entries[k]; ok {
			mc.removeElement(el)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Len()
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	e := mc.lru.Remove(el).(*memoryEntry)
	delete(mc.entries, e.key)
}

func (mc *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(mc.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-ticker.C:
			mc.purgeExpired()
		}
	}
}

func (mc *MemoryCache) purgeExpired() {
	now := mc.cfg.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for el := mc.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*memoryEntry).expireAt) {
			mc.removeElement(el)
		}
		el = prev
	}
}

// Close stops the cleanup loop.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.stop) })
	return nil
}
