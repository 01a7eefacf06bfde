// Package redisx holds the go-redis v9 helpers used for cross-replica
// coordination.
package redisx

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const KeyTaskLock = "lock:task:%s"

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out best-effort mutual exclusion with SET NX PX.
type Locker struct {
	rdb   *redis.Client
	owner string
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb, owner: uuid.NewString()}
}

// TryLock returns ok=false without error when another holder owns name.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := fmt.Sprintf(KeyTaskLock, name)
	ok, err := l.rdb.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, l.owner).Err(); err != nil {
			log.Printf("[lock] release %s: %v", key, err)
		}
	}
	return unlock, true, nil
}
