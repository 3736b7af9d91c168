package previewcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores entries as JSON under preview:<document>:<draft>.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: "preview:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(documentID string, draftVersion int64) string {
	return c.prefix + documentID + ":" + strconv.FormatInt(draftVersion, 10)
}

func (c *RedisCache) Save(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal preview: %w", err)
	}
	if err := c.client.Set(ctx, c.key(entry.DocumentID, entry.DraftVersion), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	return nil
}

func (c *RedisCache) Load(ctx context.Context, documentID string, draftVersion int64) (Entry, bool, error) {
	payload, err := c.client.Get(ctx, c.key(documentID, draftVersion)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("load preview: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal preview: %w", err)
	}
	return entry, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, documentID string, draftVersion int64) error {
	if err := c.client.Del(ctx, c.key(documentID, draftVersion)).Err(); err != nil {
		return fmt.Errorf("delete preview: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
