// Package redislock keeps two processes from running the same monitoring
// config at once.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ElectionWatch/internal/ports"
)

const keyPrefix = "electionwatch:run:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock implements ports.RunLock with SET NX PX.
type Lock struct {
	client *redis.Client
}

var _ ports.RunLock = (*Lock)(nil)

func New(client *redis.Client) *Lock {
	return &Lock{client: client}
}

// TryAcquire never blocks. The lock expires after ttl even if release is
// never called.
func (l *Lock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Err()
	}
	return release, true, nil
}
