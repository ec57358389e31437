package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// release só apaga a chave se o token ainda for o nosso
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker é um lock best-effort entre réplicas do worker (SET NX PX)
type RedisLocker struct {
	R      *redis.Client
	Prefix string
}

func NewRedisLocker(r *redis.Client) *RedisLocker {
	return &RedisLocker{R: r, Prefix: "settlement:lock:"}
}

func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := l.Prefix + name
	token := uuid.NewString()

	ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
	}
	return release, true, nil
}
