package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/segment"
	"github.com/redis/go-redis/v9"
)

const maskKeyPrefix = "swing_ocr:mask:"

// RedisMaskCache implements segment.MaskCache on Redis so workers share masks.
// Cache errors are logged and treated as misses.
type RedisMaskCache struct {
	client redis.UniversalClient
}

// NewRedisMaskCache connects to the server at url (redis://...).
func NewRedisMaskCache(ctx context.Context, url string) (*RedisMaskCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return &RedisMaskCache{client: client}, nil
}

func (c *RedisMaskCache) Get(ctx context.Context, key string) (segment.Mask, bool) {
	data, err := c.client.Get(ctx, maskKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return segment.Mask{}, false
	}
	if err != nil {
		common.EntryFrom(ctx).WithError(err).Warn("mask cache read failed")
		return segment.Mask{}, false
	}

	var m segment.Mask
	if err := m.UnmarshalBinary(data); err != nil {
		common.EntryFrom(ctx).WithError(err).Warn("discarding corrupt cached mask")
		c.client.Del(ctx, maskKeyPrefix+key)
		return segment.Mask{}, false
	}
	return m, true
}

func (c *RedisMaskCache) Set(ctx context.Context, key string, m segment.Mask, ttl time.Duration) {
	data, err := m.MarshalBinary()
	if err != nil {
		common.EntryFrom(ctx).WithError(err).Warn("mask not cacheable")
		return
	}
	if err := c.client.Set(ctx, maskKeyPrefix+key, data, ttl).Err(); err != nil {
		common.EntryFrom(ctx).WithError(err).Warn("mask cache write failed")
	}
}

// Close closes the client.
func (c *RedisMaskCache) Close() error {
	return c.client.Close()
}
