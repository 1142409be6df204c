package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/covid-dashboard/internal/model"
)

const defaultPrefix = "covid:summary"

// Redis is a Store shared by every server process pointed at the same Redis.
//
// Layout under the key prefix:
//
//	<prefix>:country:<name>  JSON of one CountryStats, expires after ttl
//	<prefix>:order           sorted set of country names, score = first-seen sequence
//	<prefix>:seq             counter handing out sequence numbers
//
// Order entries whose country key has expired are pruned by Snapshot.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis connects to addr and verifies the connection.
func NewRedis(addr, password, prefix string, ttl time.Duration) (*Redis, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("cache: redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: pinging redis at %s: %w", addr, err)
	}

	return &Redis{client: client, prefix: prefix, ttl: ttl}, nil
}

func (r *Redis) countryKey(country string) string {
	return r.prefix + ":country:" + country
}

func (r *Redis) orderKey() string { return r.prefix + ":order" }
func (r *Redis) seqKey() string   { return r.prefix + ":seq" }

func (r *Redis) Upsert(ctx context.Context, stats []model.CountryStats) error {
	if len(stats) == 0 {
		return nil
	}

	// Countries whose entry is missing (never seen, or expired but not yet
	// pruned from the order set) take a fresh sequence number. Live ones keep
	// theirs.
	keys := make([]string, len(stats))
	for i, s := range stats {
		keys[i] = r.countryKey(s.Country)
	}
	existing, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("cache: reading entries: %w", err)
	}

	last, err := r.client.IncrBy(ctx, r.seqKey(), int64(len(stats))).Result()
	if err != nil {
		return fmt.Errorf("cache: reserving sequence: %w", err)
	}
	first := last - int64(len(stats)) + 1

	pipe := r.client.TxPipeline()
	var fresh, live []redis.Z
	for i, s := range stats {
		val, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("cache: marshalling %s: %w", s.Country, err)
		}
		pipe.Set(ctx, keys[i], val, r.ttl)
		z := redis.Z{Score: float64(first + int64(i)), Member: s.Country}
		if existing[i] == nil {
			fresh = append(fresh, z)
		} else {
			live = append(live, z)
		}
	}
	if len(fresh) > 0 {
		pipe.ZAdd(ctx, r.orderKey(), fresh...)
	}
	if len(live) > 0 {
		pipe.ZAddNX(ctx, r.orderKey(), live...)
	}
	pipe.Expire(ctx, r.orderKey(), r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: upserting %d countries: %w", len(stats), err)
	}
	return nil
}

func (r *Redis) Snapshot(ctx context.Context) ([]model.CountryStats, error) {
	countries, err := r.client.ZRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: reading order: %w", err)
	}
	if len(countries) == 0 {
		return []model.CountryStats{}, nil
	}

	keys := make([]string, len(countries))
	for i, c := range countries {
		keys[i] = r.countryKey(c)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: reading entries: %w", err)
	}

	out := make([]model.CountryStats, 0, len(vals))
	var expired []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// nil: the entry expired
			expired = append(expired, countries[i])
			continue
		}
		var s model.CountryStats
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("cache: unmarshalling %s: %w", keys[i], err)
		}
		out = append(out, s)
	}

	if len(expired) > 0 {
		if err := r.client.ZRem(ctx, r.orderKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("cache: pruning expired entries: %w", err)
		}
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
