package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps presence in Redis so several relay instances can share
// one view of who is online.
//
// Layout:
// - presence:user:{id}  hash: status, last_heartbeat (unix ms), call_with
// - presence:users      set of known user ids, for the staleness sweep
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

const usersSetKey = "presence:users"

func userKey(userID string) string {
	return "presence:user:" + userID
}

// heartbeatScript performs the heartbeat upsert atomically: stamp
// last_heartbeat, promote a missing/offline record to online, never touch
// in_call.
var heartbeatScript = redis.NewScript(`
-- KEYS[1] = presence:user:{id}
-- KEYS[2] = presence:users
-- ARGV[1] = now (unix ms)
-- ARGV[2] = user id
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur or cur == 'offline' then
  redis.call('HSET', KEYS[1], 'status', 'online')
end
redis.call('HSET', KEYS[1], 'last_heartbeat', ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

func (r *RedisStore) Heartbeat(ctx context.Context, userID string, now time.Time) error {
	return heartbeatScript.Run(ctx, r.rdb,
		[]string{userKey(userID), usersSetKey},
		now.UnixMilli(), userID,
	).Err()
}

func (r *RedisStore) Get(ctx context.Context, userID string) (Record, error) {
	vals, err := r.rdb.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("presence: redis read failed: %w", err)
	}
	return recordFromHash(userID, vals), nil
}

func (r *RedisStore) UpdateStatus(ctx context.Context, userID string, status Status, currentCallWith string, now time.Time) error {
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, userKey(userID),
		"status", string(status),
		"last_heartbeat", now.UnixMilli(),
		"call_with", currentCallWith,
	)
	pipe.SAdd(ctx, usersSetKey, userID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("presence: redis write failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Snapshot(ctx context.Context) ([]Record, error) {
	ids, err := r.rdb.SMembers(ctx, usersSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: redis members failed: %w", err)
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, userKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("presence: redis snapshot failed: %w", err)
	}

	out := make([]Record, 0, len(ids))
	for i, id := range ids {
		out = append(out, recordFromHash(id, cmds[i].Val()))
	}
	return out, nil
}

func recordFromHash(userID string, vals map[string]string) Record {
	rec := Record{UserID: userID, Status: StatusOffline}
	if len(vals) == 0 {
		return rec
	}
	if s := Status(vals["status"]); s.Valid() {
		rec.Status = s
	}
	if ms, err := strconv.ParseInt(vals["last_heartbeat"], 10, 64); err == nil {
		rec.LastHeartbeat = time.UnixMilli(ms).UTC()
	}
	rec.CurrentCallWith = vals["call_with"]
	return rec
}
