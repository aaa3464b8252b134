package presence

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

const (
	connsKey   = "hearth:presence:conns"
	roomPrefix = "hearth:presence:room:"
)

// decrement lowers a hash counter and drops the field once it reaches
// zero. It returns the remaining count, or -1 if the field was absent.
var decrement = redis.NewScript(`
local n = redis.call('HGET', KEYS[1], ARGV[1])
if not n then return -1 end
n = tonumber(n) - 1
if n <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], n)
return n
`)

// Redis shares presence between processes through per-room hashes of
// connection counters.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func roomKey(householdID string) string {
	return roomPrefix + householdID
}

func (r *Redis) Connect(ctx context.Context, userID string) error {
	if err := r.rdb.HIncrBy(ctx, connsKey, userID, 1).Err(); err != nil {
		return fmt.Errorf("presence connect: %w", err)
	}
	return nil
}

func (r *Redis) Disconnect(ctx context.Context, userID string) (bool, error) {
	n, err := decrement.Run(ctx, r.rdb, []string{connsKey}, userID).Int64()
	if err != nil {
		return false, fmt.Errorf("presence disconnect: %w", err)
	}
	return n <= 0, nil
}

func (r *Redis) Join(ctx context.Context, userID, householdID string) error {
	if err := r.rdb.HIncrBy(ctx, roomKey(householdID), userID, 1).Err(); err != nil {
		return fmt.Errorf("presence join: %w", err)
	}
	return nil
}

func (r *Redis) Leave(ctx context.Context, userID, householdID string) (bool, error) {
	n, err := decrement.Run(ctx, r.rdb, []string{roomKey(householdID)}, userID).Int64()
	if err != nil {
		return false, fmt.Errorf("presence leave: %w", err)
	}
	return n == 0, nil
}

func (r *Redis) InRoom(ctx context.Context, userID, householdID string) (bool, error) {
	ok, err := r.rdb.HExists(ctx, roomKey(householdID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("presence in room: %w", err)
	}
	return ok, nil
}

func (r *Redis) IsOnline(ctx context.Context, userID string) (bool, error) {
	ok, err := r.rdb.HExists(ctx, connsKey, userID).Result()
	if err != nil {
		return false, fmt.Errorf("presence online: %w", err)
	}
	return ok, nil
}

func (r *Redis) Online(ctx context.Context, householdID string) ([]string, error) {
	ids, err := r.rdb.HKeys(ctx, roomKey(householdID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}
