package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const reportCacheTTL = 5 * time.Minute

// reportCache stores rendered reports keyed by a generation-stamped key, so
// invalidation is a counter bump rather than a key scan.
type reportCache interface {
	Get(ctx context.Context, key string, out any) bool
	Set(ctx context.Context, key string, value any)
}

// memoryReportCache is the default in-process backend.
type memoryReportCache struct {
	c *gocache.Cache
}

func newMemoryReportCache() *memoryReportCache {
	return &memoryReportCache{c: gocache.New(reportCacheTTL, 10*time.Minute)}
}

func (m *memoryReportCache) Get(_ context.Context, key string, out any) bool {
	raw, ok := m.c.Get(key)
	if !ok {
		return false
	}
	// Round-trip through JSON so callers always get a private copy.
	data, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (m *memoryReportCache) Set(_ context.Context, key string, value any) {
	m.c.SetDefault(key, value)
}

// redisReportCache shares rendered reports across instances. Failures degrade
// to cache misses; Redis being down never fails a report request.
type redisReportCache struct {
	client *redis.Client
}

// NewRedisReportCache connects to Redis and returns a shared report cache, or
// nil when the URL is empty or unreachable.
func NewRedisReportCache(redisURL string) *redisReportCache {
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("⚠️ [REPORTS] Invalid REDIS_URL, falling back to in-memory cache: %v", err)
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ [REPORTS] Redis unreachable, falling back to in-memory cache: %v", err)
		client.Close()
		return nil
	}

	log.Println("✅ Redis report cache connected")
	return &redisReportCache{client: client}
}

func (r *redisReportCache) Get(ctx context.Context, key string, out any) bool {
	data, err := r.client.Get(ctx, "reports:"+key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (r *redisReportCache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, "reports:"+key, data, reportCacheTTL).Err(); err != nil {
		log.Printf("⚠️ [REPORTS] Failed to cache report: %v", err)
	}
}
