// internal/campaign/results/email_cache.go
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"campaign-client/internal/common/metrics"
	"campaign-client/internal/models"

	"github.com/redis/go-redis/v9"
)

// EmailCache stores one generated email per audience segment. Once an email
// is present for a segment it is served from the cache until Clear.
type EmailCache interface {
	Get(ctx context.Context, target string) (models.Email, bool, error)
	Put(ctx context.Context, target string, email models.Email) error
	Clear(ctx context.Context) error
}

// MemoryEmailCache is the default in-process cache.
type MemoryEmailCache struct {
	mu     sync.RWMutex
	emails map[string]models.Email
}

func NewMemoryEmailCache() *MemoryEmailCache {
	return &MemoryEmailCache{emails: make(map[string]models.Email)}
}

func (c *MemoryEmailCache) Get(_ context.Context, target string) (models.Email, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	email, ok := c.emails[target]
	recordLookup("memory", ok)
	return email, ok, nil
}

func (c *MemoryEmailCache) Put(_ context.Context, target string, email models.Email) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails[target] = email
	return nil
}

func (c *MemoryEmailCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails = make(map[string]models.Email)
	return nil
}

// RedisEmailCache shares generated emails across client processes. Keys are
// namespaced per campaign: campaign:<namespace>:email:<target>.
type RedisEmailCache struct {
	client    redis.Cmdable
	namespace string
	ttl       time.Duration
}

func NewRedisEmailCache(client redis.Cmdable, namespace string, ttl time.Duration) *RedisEmailCache {
	return &RedisEmailCache{client: client, namespace: namespace, ttl: ttl}
}

func (c *RedisEmailCache) key(target string) string {
	return fmt.Sprintf("campaign:%s:email:%s", c.namespace, target)
}

func (c *RedisEmailCache) Get(ctx context.Context, target string) (models.Email, bool, error) {
	raw, err := c.client.Get(ctx, c.key(target)).Result()
	if err == redis.Nil {
		recordLookup("redis", false)
		return models.Email{}, false, nil
	}
	if err != nil {
		metrics.EmailCacheLookups.WithLabelValues("redis", "error").Inc()
		return models.Email{}, false, fmt.Errorf("redis get email: %w", err)
	}

	var email models.Email
	if err := json.Unmarshal([]byte(raw), &email); err != nil {
		return models.Email{}, false, fmt.Errorf("decode cached email: %w", err)
	}
	recordLookup("redis", true)
	return email, true, nil
}

func (c *RedisEmailCache) Put(ctx context.Context, target string, email models.Email) error {
	data, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}
	if err := c.client.Set(ctx, c.key(target), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set email: %w", err)
	}
	return nil
}

// Clear removes every email cached under this namespace.
func (c *RedisEmailCache) Clear(ctx context.Context) error {
	pattern := fmt.Sprintf("campaign:%s:email:*", c.namespace)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan emails: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del emails: %w", err)
	}
	return nil
}

func recordLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	metrics.EmailCacheLookups.WithLabelValues(backend, result).Inc()
}
