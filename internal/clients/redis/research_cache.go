package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dx-junkyard/plura/internal/pkg/utils"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

// ResearchCache stores completed deep-research reports keyed by the hash of
// the sanitized query. A hit lets the proposal flow return a finished report
// without enqueueing a heavy job.
type ResearchCache interface {
	Get(ctx context.Context, queryHash string) (map[string]any, bool, error)
	Set(ctx context.Context, queryHash string, result map[string]any) error
	Close() error
}

type researchCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewResearchCache(log *logger.Logger) (ResearchCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttl := utils.GetEnvAsDuration("RESEARCH_CACHE_TTL", 168*time.Hour, log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &researchCache{
		log: log.With("service", "ResearchCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (c *researchCache) key(queryHash string) string {
	return "research:" + queryHash
}

func (c *researchCache) Get(ctx context.Context, queryHash string) (map[string]any, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, fmt.Errorf("research cache not initialized")
	}
	raw, err := c.rdb.Get(ctx, c.key(queryHash)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		// Corrupt entry: drop it so the next run repopulates.
		_ = c.rdb.Del(ctx, c.key(queryHash)).Err()
		return nil, false, nil
	}
	return out, true, nil
}

func (c *researchCache) Set(ctx context.Context, queryHash string, result map[string]any) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("research cache not initialized")
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(queryHash), raw, c.ttl).Err()
}

func (c *researchCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
