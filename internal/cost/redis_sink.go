package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// RedisSink mirrors usage records to Redis so spend survives restarts and is
// visible to other replicas. Keys:
//
//	<prefix>:usage                 list of JSON usage records
//	<prefix>:daily:<YYYY-MM-DD>    hash of provider -> spend
type RedisSink struct {
	client     redis.UniversalClient
	prefix     string
	dailyTTL   time.Duration
	maxEntries int64
}

// NewRedisSink creates a sink on an existing client
func NewRedisSink(client redis.UniversalClient, prefix string, dailyTTL time.Duration, maxEntries int64) *RedisSink {
	if prefix == "" {
		prefix = "orchestrator"
	}
	if dailyTTL <= 0 {
		dailyTTL = 8 * 24 * time.Hour
	}
	return &RedisSink{
		client:     client,
		prefix:     prefix,
		dailyTTL:   dailyTTL,
		maxEntries: maxEntries,
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Record appends the record and adds its cost to the day's provider hash
func (s *RedisSink) Record(ctx context.Context, rec types.UsageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal usage record: %w", err)
	}

	usageKey := s.UsageKey()
	dailyKey := s.DailyKey(rec.Timestamp)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, usageKey, data)
		if s.maxEntries > 0 {
			pipe.LTrim(ctx, usageKey, -s.maxEntries, -1)
		}
		pipe.HIncrByFloat(ctx, dailyKey, string(rec.Provider), rec.TotalCost)
		pipe.Expire(ctx, dailyKey, s.dailyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write usage to redis: %w", err)
	}
	return nil
}

// DailyTotals reads the provider spend hash for the given day
func (s *RedisSink) DailyTotals(ctx context.Context, day time.Time) (map[types.ProviderID]float64, error) {
	raw, err := s.client.HGetAll(ctx, s.DailyKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read daily totals: %w", err)
	}

	out := make(map[types.ProviderID]float64, len(raw))
	for provider, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid total for %s: %w", provider, err)
		}
		out[types.ProviderID(provider)] = round(d)
	}
	return out, nil
}

// UsageKey is the list holding mirrored records
func (s *RedisSink) UsageKey() string {
	return s.prefix + ":usage"
}

// DailyKey is the hash holding one UTC day's totals
func (s *RedisSink) DailyKey(day time.Time) string {
	return s.prefix + ":daily:" + dayStamp(day)
}
