package resilience

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOfflineBuffer is the distributed counterpart to OfflineBuffer,
// sharing buffered realtime frames across coordinator instances via a
// per-user Redis list rather than process memory. Grounded on the same
// go-redis/v9 client construction as ratelimit.RedisBackend, since no
// pub/sub or queue-backed offline-delivery code appears anywhere in the
// retrieval pack either.
//
// Capacity and age are enforced per user (LTRIM to offlineBufferCap,
// key TTL of offlineBufferAge) instead of globally: a global FIFO across
// every user's frames would need a second Redis structure just to track
// eviction order, and nothing in the pack's Redis usage does that. The
// in-process OfflineBuffer can afford the global variant because it
// already holds an in-memory order slice for free.
type RedisOfflineBuffer struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisOfflineBuffer builds a RedisOfflineBuffer against addr.
func NewRedisOfflineBuffer(addr, password string, db int, log zerolog.Logger) *RedisOfflineBuffer {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})
	return &RedisOfflineBuffer{client: client, log: log}
}

// Ping verifies connectivity to the buffer's Redis server.
func (b *RedisOfflineBuffer) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func redisBufferKey(userID string) string {
	return "queuecoord:offlinebuf:" + userID
}

// Enqueue buffers frame for userID, trimming to the most recent
// offlineBufferCap frames and refreshing the key's TTL.
func (b *RedisOfflineBuffer) Enqueue(userID string, frame interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	bf := BufferedFrame{UserID: userID, Frame: frame, EnqueuedAt: time.Now().UTC()}
	payload, err := json.Marshal(bf)
	if err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("resilience: failed to marshal buffered frame")
		return
	}

	key := redisBufferKey(userID)
	pipe := b.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -offlineBufferCap, -1)
	pipe.Expire(ctx, key, offlineBufferAge)
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("resilience: failed to enqueue offline frame to redis")
	}
}

// Flush removes and returns all buffered frames for userID, in enqueue
// order, for replay on reconnect.
func (b *RedisOfflineBuffer) Flush(userID string) []*BufferedFrame {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	key := redisBufferKey(userID)
	vals, err := b.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("resilience: failed to flush offline frames from redis")
		return nil
	}
	if len(vals) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, key).Err(); err != nil {
		b.log.Warn().Err(err).Str("user_id", userID).Msg("resilience: failed to clear offline buffer key after flush")
	}

	out := make([]*BufferedFrame, 0, len(vals))
	for _, v := range vals {
		var bf BufferedFrame
		if err := json.Unmarshal([]byte(v), &bf); err != nil {
			b.log.Warn().Err(err).Str("user_id", userID).Msg("resilience: dropping unparsable buffered frame")
			continue
		}
		out = append(out, &bf)
	}
	return out
}
