package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wesm/wahistory/internal/vault"
)

// ErrNoKey is returned when encrypted media is requested without an active
// session key.
var ErrNoKey = errors.New("no encryption key")

// FetchFunc returns the sealed bytes stored under a media URL.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// DefaultCacheBytes bounds a DecryptCache built with a zero budget.
const DefaultCacheBytes = 64 << 20

// DecryptCache holds decrypted media keyed by URL. When the byte budget is
// exceeded the oldest entries are evicted first. Concurrent requests for
// the same URL share one fetch and decrypt.
type DecryptCache struct {
	fetch    FetchFunc
	keys     KeyProvider
	maxBytes int64

	mu      sync.Mutex
	entries map[string][]byte
	order   []string
	size    int64

	group singleflight.Group
}

// NewDecryptCache returns an empty cache. maxBytes <= 0 selects
// DefaultCacheBytes.
func NewDecryptCache(fetch FetchFunc, keys KeyProvider, maxBytes int64) *DecryptCache {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	return &DecryptCache{
		fetch:    fetch,
		keys:     keys,
		maxBytes: maxBytes,
		entries:  make(map[string][]byte),
	}
}

// Get returns the plaintext for url, decrypting on first use.
func (c *DecryptCache) Get(ctx context.Context, url string) ([]byte, error) {
	c.mu.Lock()
	if data, ok := c.entries[url]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(url, func() (any, error) {
		key, ok := c.keys.Key()
		if !ok {
			return nil, ErrNoKey
		}
		sealed, err := c.fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("fetch media: %w", err)
		}
		plain, err := vault.Decrypt(sealed, key)
		if err != nil {
			return nil, err
		}
		c.put(url, plain)
		return plain, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *DecryptCache) put(url string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[url]; ok {
		return
	}
	// Entries larger than the whole budget are served but not kept.
	if int64(len(data)) > c.maxBytes {
		return
	}
	c.entries[url] = data
	c.order = append(c.order, url)
	c.size += int64(len(data))
	for c.size > c.maxBytes && len(c.order) > 0 {
		c.evictLocked(c.order[0])
	}
}

func (c *DecryptCache) evictLocked(url string) {
	data, ok := c.entries[url]
	if !ok {
		return
	}
	delete(c.entries, url)
	c.size -= int64(len(data))
	for i, u := range c.order {
		if u == url {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Remove drops url from the cache.
func (c *DecryptCache) Remove(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(url)
}

// Clear empties the cache, for example when the session key changes.
func (c *DecryptCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	c.order = nil
	c.size = 0
}

// Len returns the number of cached entries.
func (c *DecryptCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the cached plaintext bytes.
func (c *DecryptCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Reader returns the plaintext behind any media URL: sealed files go
// through cache, plain ones are read from files.
func Reader(files *LocalStore, cache *DecryptCache) FetchFunc {
	return func(ctx context.Context, url string) ([]byte, error) {
		_, name, ok := ParseURL(url)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, url)
		}
		if IsEncrypted(name) {
			return cache.Get(ctx, url)
		}
		return files.Fetch(ctx, url)
	}
}
