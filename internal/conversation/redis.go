package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pigeonchat/pigeon/internal/user"
)

const (
	summaryPrefix = "conversations"
	epochPrefix   = "conversations:epoch"
	summaryTTL    = 5 * time.Minute
)

// RedisCache caches computed summary lists in Redis, one JSON value per
// viewer per epoch. Invalidation bumps the viewer's epoch counter instead of
// deleting the list: every Get resolves the current epoch first, so stale
// lists under old epochs become unreachable immediately and the TTL reclaims
// them. The epoch key never expires; letting it lapse before the summary
// keys would resurrect an orphaned list.
type RedisCache struct {
	cli *redis.Client
}

// ConnectRedis connects to the Redis server and pings it to ensure the
// connection is working.
func ConnectRedis(ctx context.Context, addr string) (*RedisCache, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{cli: cli}, nil
}

func (c *RedisCache) Close() error {
	return c.cli.Close()
}

func summaryKey(viewer user.ID, epoch int64) string {
	return fmt.Sprintf("%s:%s:%d", summaryPrefix, viewer, epoch)
}

func epochKey(viewer user.ID) string {
	return fmt.Sprintf("%s:%s", epochPrefix, viewer)
}

// Epoch returns the viewer's current invalidation epoch. A viewer that was
// never invalidated is at epoch zero.
func (c *RedisCache) Epoch(ctx context.Context, viewer user.ID) (int64, error) {
	epoch, err := c.cli.Get(ctx, epochKey(viewer)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get epoch: %w", err)
	}
	return epoch, nil
}

func (c *RedisCache) Get(ctx context.Context, viewer user.ID) ([]Summary, error) {
	epoch, err := c.Epoch(ctx, viewer)
	if err != nil {
		return nil, err
	}
	data, err := c.cli.Get(ctx, summaryKey(viewer, epoch)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	var sums []Summary
	if err := json.Unmarshal(data, &sums); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return sums, nil
}

// Set stores the list under the epoch the caller observed before computing
// it. If an invalidation bumped the epoch in the meantime, the write lands
// on the old epoch's key, which no Get resolves anymore.
func (c *RedisCache) Set(ctx context.Context, viewer user.ID, epoch int64, sums []Summary) error {
	data, err := json.Marshal(sums)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := c.cli.Set(ctx, summaryKey(viewer, epoch), data, summaryTTL).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, viewers ...user.ID) error {
	if len(viewers) == 0 {
		return nil
	}
	pipe := c.cli.Pipeline()
	for _, v := range viewers {
		pipe.Incr(ctx, epochKey(v))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bump epoch: %w", err)
	}
	return nil
}
