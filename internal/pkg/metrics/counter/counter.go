package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis hash holding pending event counts.
const DefaultKey = "planfox:counters:events"

// Event names recorded by the HTTP layer.
const (
	WebhookReceived  = "webhook.received"
	WebhookDuplicate = "webhook.duplicate"
	WebhookIgnored   = "webhook.ignored"
	WebhookRejected  = "webhook.rejected"
	WebhookFailed    = "webhook.failed"
	RefundRequested  = "refund.requested"
	RefundRefused    = "refund.refused"
	RefundApproved   = "refund.approved"
	RefundRejected   = "refund.rejected"
)

// Counter keeps event counts in a Redis hash. A Counter without a client
// discards everything, so callers never need a nil check.
type Counter struct {
	client *redis.Client
	key    string
}

// New creates a Counter on the given client.
func New(client *redis.Client) *Counter {
	return &Counter{client: client, key: DefaultKey}
}

// NewWithKey creates a Counter on a custom hash key.
func NewWithKey(client *redis.Client, key string) *Counter {
	return &Counter{client: client, key: key}
}

// Add increments an event by one. Failures are logged, never returned:
// counting must not break the request that triggered it.
func (c *Counter) Add(ctx context.Context, name string) {
	if c == nil || c.client == nil || name == "" {
		return
	}
	if err := c.client.HIncrBy(ctx, c.key, name, 1).Err(); err != nil {
		log.Warnf("[Metrics] Failed to count %s: %v", name, err)
	}
}

// Snapshot returns the pending counts without resetting them.
func (c *Counter) Snapshot(ctx context.Context) (map[string]int64, error) {
	if c == nil || c.client == nil {
		return map[string]int64{}, nil
	}
	data, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(data), nil
}

// Drain atomically moves the hash aside and returns its counts.
// Increments that land during the drain go to a fresh hash.
func (c *Counter) Drain(ctx context.Context) (map[string]int64, error) {
	if c == nil || c.client == nil {
		return map[string]int64{}, nil
	}

	tmpKey := fmt.Sprintf("%s:tmp:%d", c.key, time.Now().UnixNano())
	if err := c.client.Rename(ctx, c.key, tmpKey).Err(); err != nil {
		if isNoSuchKey(err) {
			return map[string]int64{}, nil
		}
		return nil, err
	}
	defer c.client.Del(ctx, tmpKey)

	data, err := c.client.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(data), nil
}

// Flush drains the counters and writes the totals to the log.
func (c *Counter) Flush(ctx context.Context) error {
	counts, err := c.Drain(ctx)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}
	log.Infof("[Metrics] Events since last flush: %s", Format(counts))
	return nil
}

// Format renders counts as sorted name=value pairs.
func Format(counts map[string]int64) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(strconv.FormatInt(counts[name], 10))
	}
	return b.String()
}

func parseCounts(data map[string]string) map[string]int64 {
	counts := make(map[string]int64, len(data))
	for name, raw := range data {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n == 0 {
			continue
		}
		counts[name] = n
	}
	return counts
}

func isNoSuchKey(err error) bool {
	if errors.Is(err, redis.Nil) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such key")
}
