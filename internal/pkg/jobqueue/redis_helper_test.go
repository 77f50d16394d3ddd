package jobqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PlanFox/internal/pkg/env"
)

// Queue tests get their own logical DB so they never touch a dev instance's data.
const isolatedJobQueueTestRedisDB = 14

type redisEndpoint struct {
	addr     string
	password string
}

// testRedisEndpoints lists the configured endpoint first, then the usual
// docker-compose and local defaults.
func testRedisEndpoints() []redisEndpoint {
	port := env.GetEnv("CACHE_PORT", "6379")
	password := env.GetEnv("CACHE_PASSWORD", "")

	var out []redisEndpoint
	seen := map[redisEndpoint]bool{}
	for _, host := range []string{env.GetEnv("CACHE_HOST", ""), "cache", "localhost"} {
		if host == "" {
			continue
		}
		for _, pw := range []string{password, ""} {
			ep := redisEndpoint{addr: fmt.Sprintf("%s:%s", host, port), password: pw}
			if !seen[ep] {
				seen[ep] = true
				out = append(out, ep)
			}
		}
	}
	return out
}

func newIsolatedRedisClient(t *testing.T, db int) *redis.Client {
	t.Helper()

	var lastErr error
	for _, ep := range testRedisEndpoints() {
		client := redis.NewClient(&redis.Options{Addr: ep.addr, Password: ep.password, DB: db})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			lastErr = err
			_ = client.Close()
			continue
		}

		if err := client.FlushDB(context.Background()).Err(); err != nil {
			_ = client.Close()
			t.Fatalf("failed to flush redis db %d: %v", db, err)
		}
		t.Cleanup(func() {
			_ = client.FlushDB(context.Background()).Err()
			_ = client.Close()
		})
		return client
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
	return nil
}

func resetJobQueueRedis(t *testing.T, client *redis.Client) {
	t.Helper()

	ctx := context.Background()
	keys := []string{JobQueueKey, JobProcessingKey, JobStatsKey}

	iter := client.Scan(ctx, 0, JobKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	require.NoError(t, iter.Err())
	require.NoError(t, client.Del(ctx, keys...).Err())
}
