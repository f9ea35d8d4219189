package directory

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of actors memoised by NewLRU when no
// positive size is given.
const DefaultCacheSize = 512

// Cache memoises discovered inbox URLs by the actor IRI they were
// requested with. Implementations must be safe for concurrent use.
// Staleness is acceptable.
type Cache interface {
	Get(key string) (string, bool)
	Put(key, value string)
}

// LRU is a size bounded, process local Cache.
type LRU struct {
	cache *lru.Cache[string, string]
}

// NewLRU returns an LRU holding at most size entries.
func NewLRU(size int) *LRU {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		// only returned for a non positive size.
		panic(err)
	}
	return &LRU{cache: cache}
}

func (l *LRU) Get(key string) (string, bool) { return l.cache.Get(key) }
func (l *LRU) Put(key, value string)         { l.cache.Add(key, value) }

// Len returns the number of entries in the cache.
func (l *LRU) Len() int { return l.cache.Len() }

// Memcache is a Cache shared between processes through memcached.
// Errors talking to memcached are treated as misses.
type Memcache struct {
	client *memcache.Client
	expiry time.Duration
}

// NewMemcache returns a Memcache whose entries expire after expiry.
func NewMemcache(client *memcache.Client, expiry time.Duration) *Memcache {
	return &Memcache{
		client: client,
		expiry: expiry,
	}
}

func (m *Memcache) Get(key string) (string, bool) {
	item, err := m.client.Get(memcacheKey(key))
	if err != nil {
		return "", false
	}
	return string(item.Value), true
}

func (m *Memcache) Put(key, value string) {
	_ = m.client.Set(&memcache.Item{
		Key:        memcacheKey(key),
		Value:      []byte(value),
		Expiration: int32(m.expiry / time.Second),
	})
}

// memcacheKey maps an IRI onto the memcached key alphabet, which
// forbids spaces and control characters and is limited to 250 bytes.
func memcacheKey(iri string) string {
	sum := sha256.Sum256([]byte(iri))
	return "fedi:inbox:" + hex.EncodeToString(sum[:])
}
