package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gw:"

// RedisPartitionStore persists partitions in Redis so cached responses
// survive gateway restarts. Keys are "gw:<partition>:<request key>".
type RedisPartitionStore struct {
	client *redis.Client
}

// NewRedisPartitionStore connects to addr and verifies reachability.
func NewRedisPartitionStore(ctx context.Context, addr, password string, db int) (*RedisPartitionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisPartitionStore{client: client}, nil
}

func redisKey(partition, key string) string {
	return redisKeyPrefix + partition + ":" + key
}

func (s *RedisPartitionStore) Get(ctx context.Context, partition, key string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, redisKey(partition, key)).Bytes()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode record: %w", err)
	}
	return rec, true, nil
}

func (s *RedisPartitionStore) Put(ctx context.Context, partition, key string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	// No Redis-side TTL: the policies own freshness, and stale weather
	// records must stay around for serve-stale-on-error.
	return s.client.Set(ctx, redisKey(partition, key), raw, 0).Err()
}

func (s *RedisPartitionStore) DeletePartition(ctx context.Context, partition string) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+partition+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisPartitionStore) Partitions(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), redisKeyPrefix)
		if idx := strings.Index(rest, ":"); idx > 0 {
			seen[rest[:idx]] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names, nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisPartitionStore) Close() error {
	return s.client.Close()
}
