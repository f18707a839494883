package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"veilscreen/internal/oracle"
	"veilscreen/pkg/platform/sentinel"
)

const (
	// Redis key prefix for pending correlations.
	pendingKeyPrefix = "corr:req:"
	// Sorted set holding request ids scored by deadline (unix seconds).
	deadlineSetKey = "corr:deadlines"
)

// RedisStore is the distributed correlation table. Multiple instances share
// one pending set, so a callback can land on any replica.
//
// Values carry no Redis TTL: Sweep is the authority on expiry, because an
// expired registration still has to be read back to roll back the entry state
// it was holding open.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Register(ctx context.Context, id oracle.RequestID, key Key, ttl time.Duration) error {
	payload, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal correlation key: %w", err)
	}
	ok, err := s.client.SetNX(ctx, pendingKeyPrefix+string(id), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("register correlation: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	deadline := time.Now().Add(ttl)
	if err := s.client.ZAdd(ctx, deadlineSetKey, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: string(id),
	}).Err(); err != nil {
		return fmt.Errorf("register correlation deadline: %w", err)
	}
	return nil
}

func (s *RedisStore) Resolve(ctx context.Context, id oracle.RequestID) (Key, error) {
	payload, err := s.client.GetDel(ctx, pendingKeyPrefix+string(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Key{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Key{}, fmt.Errorf("resolve correlation: %w", err)
	}

	score, err := s.client.ZScore(ctx, deadlineSetKey, string(id)).Result()
	expired := false
	if err == nil {
		expired = time.Now().Unix() > int64(score)
	}
	_ = s.client.ZRem(ctx, deadlineSetKey, string(id)).Err()

	var key Key
	if err := json.Unmarshal([]byte(payload), &key); err != nil {
		return Key{}, fmt.Errorf("unmarshal correlation key: %w", err)
	}
	if expired {
		return Key{}, sentinel.ErrExpired
	}
	return key, nil
}

func (s *RedisStore) Sweep(ctx context.Context, now time.Time) ([]Key, error) {
	ids, err := s.client.ZRangeByScore(ctx, deadlineSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix()-1, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("sweep deadlines: %w", err)
	}

	var expired []Key
	for _, id := range ids {
		payload, err := s.client.GetDel(ctx, pendingKeyPrefix+id).Result()
		if errors.Is(err, redis.Nil) {
			// Resolved concurrently between the range read and now.
			_ = s.client.ZRem(ctx, deadlineSetKey, id).Err()
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("sweep correlation %s: %w", id, err)
		}
		var key Key
		if err := json.Unmarshal([]byte(payload), &key); err != nil {
			return expired, fmt.Errorf("unmarshal swept key %s: %w", id, err)
		}
		expired = append(expired, key)
		_ = s.client.ZRem(ctx, deadlineSetKey, id).Err()
	}
	return expired, nil
}
