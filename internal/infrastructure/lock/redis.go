package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is a fleet-wide lock built on an atomic create-if-absent with expiry.
type Locker interface {
	// Acquire stores owner under key unless key exists. Reports whether it did.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release deletes key if it still holds owner.
	Release(ctx context.Context, key, owner string) error
}

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements Locker with SET NX PX.
type RedisLock struct {
	Rdb *redis.Client
}

// NewRedisLock wraps an existing client.
func NewRedisLock(rdb *redis.Client) *RedisLock {
	return &RedisLock{Rdb: rdb}
}

func (l *RedisLock) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return l.Rdb.SetNX(ctx, key, owner, ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, l.Rdb, []string{key}, owner).Err()
}
