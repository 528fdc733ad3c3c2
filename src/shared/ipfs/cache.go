package ipfs

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "ipfs:meta:"

// Cached is a redis read-through wrapper around another store. Metadata is
// immutable once pinned, so the TTL only bounds memory, not staleness.
type Cached struct {
	inner Store
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCached(inner Store, rdb *redis.Client, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *Cached) Put(ctx context.Context, metadata *ProposalMetadata) (string, error) {
	address, err := c.inner.Put(ctx, metadata)
	if err != nil {
		return "", err
	}
	c.prime(ctx, address, metadata)
	return address, nil
}

func (c *Cached) Get(ctx context.Context, address string) (*ProposalMetadata, error) {
	raw, err := c.rdb.Get(ctx, cacheKeyPrefix+address).Bytes()
	if err == nil {
		var metadata ProposalMetadata
		if err := json.Unmarshal(raw, &metadata); err == nil {
			return &metadata, nil
		}
		// Unreadable cache entry: fall through to the inner store.
		c.rdb.Del(ctx, cacheKeyPrefix+address)
	}

	metadata, err := c.inner.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	c.prime(ctx, address, metadata)
	return metadata, nil
}

func (c *Cached) Delete(ctx context.Context, address string) (bool, error) {
	if err := c.rdb.Del(ctx, cacheKeyPrefix+address).Err(); err != nil {
		log.Printf("ipfs: cache evict %s: %v", address, err)
	}
	return c.inner.Delete(ctx, address)
}

func (c *Cached) prime(ctx context.Context, address string, metadata *ProposalMetadata) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+address, raw, c.ttl).Err(); err != nil {
		log.Printf("ipfs: cache prime %s: %v", address, err)
	}
}
