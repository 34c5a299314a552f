// Package redislock implements internal/lock.GlobalConcurrencyLock on
// top of Redis, for workspaces running the scheduler without the full
// registry service: a single compare-and-set Lua script gives acquire/
// renew/release the same atomicity guarantees the registry's database
// transaction does, just against a simpler, embeddable backend.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stardag-dev/stardag-go/internal/lock"
)

// keyPrefix namespaces every key this package writes, so a lock
// database can be shared with other Redis users without collisions.
const keyPrefix = "stardag:lock:"

const completedPrefix = "stardag:completed:"

// acquireScript implements re-entrant, TTL-respecting acquisition: if
// the key is unset or expired, claim it; if it's set to the same
// owner, refresh the TTL (re-entrant retry); otherwise report failure
// so the caller reports held_by_other.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
local owner = ARGV[1]
local ttl_ms = ARGV[2]
local current = redis.call("GET", key)
if current == false or current == owner then
  redis.call("SET", key, owner, "PX", ttl_ms)
  return 1
end
return 0
`)

var renewScript = redis.NewScript(`
local key = KEYS[1]
local owner = ARGV[1]
local ttl_ms = ARGV[2]
local current = redis.call("GET", key)
if current == owner then
  redis.call("PEXPIRE", key, ttl_ms)
  return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
local owner = ARGV[1]
local current = redis.call("GET", key)
if current == owner then
  redis.call("DEL", key)
  return 1
end
return 0
`)

// Lock is a redis.UniversalClient-backed GlobalConcurrencyLock.
// maxConcurrentLocks, if positive, caps how many distinct task keys
// under keyPrefix may exist at once (approximated via SCARD on a
// companion set, since Redis has no native "count keys matching
// prefix" primitive cheap enough to call on every acquisition).
type Lock struct {
	rdb     redis.UniversalClient
	maxHeld int
}

// New wraps an already-configured redis client.
func New(rdb redis.UniversalClient, maxConcurrentLocks int) *Lock {
	return &Lock{rdb: rdb, maxHeld: maxConcurrentLocks}
}

func (l *Lock) Acquire(ctx context.Context, taskID, ownerID string, ttl time.Duration, checkCompletion bool) (lock.AcquireResult, error) {
	if checkCompletion {
		done, err := l.rdb.Exists(ctx, completedPrefix+taskID).Result()
		if err != nil {
			return lock.AcquireResult{}, fmt.Errorf("stardag/redislock: checking completion for %s: %w", taskID, err)
		}
		if done > 0 {
			return lock.AcquireResult{Status: lock.StatusAlreadyCompleted}, nil
		}
	}

	key := keyPrefix + taskID
	if l.maxHeld > 0 {
		alreadyHeld, err := l.rdb.Exists(ctx, key).Result()
		if err != nil {
			return lock.AcquireResult{}, fmt.Errorf("stardag/redislock: checking key %s: %w", key, err)
		}
		if alreadyHeld == 0 {
			n, err := l.rdb.SCard(ctx, l.heldSetKey()).Result()
			if err != nil {
				return lock.AcquireResult{}, fmt.Errorf("stardag/redislock: counting held locks: %w", err)
			}
			if int(n) >= l.maxHeld {
				return lock.AcquireResult{Status: lock.StatusWorkspaceCapReached}, nil
			}
		}
	}

	res, err := acquireScript.Run(ctx, l.rdb, []string{key}, ownerID, ttl.Milliseconds()).Int()
	if err != nil {
		return lock.AcquireResult{}, fmt.Errorf("stardag/redislock: acquire %s: %w", taskID, err)
	}
	if res == 0 {
		return lock.AcquireResult{Status: lock.StatusHeldByOther}, nil
	}
	l.rdb.SAdd(ctx, l.heldSetKey(), taskID)
	return lock.AcquireResult{Status: lock.StatusAcquired}, nil
}

func (l *Lock) Renew(ctx context.Context, taskID, ownerID string, ttl time.Duration) (bool, error) {
	key := keyPrefix + taskID
	res, err := renewScript.Run(ctx, l.rdb, []string{key}, ownerID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("stardag/redislock: renew %s: %w", taskID, err)
	}
	return res == 1, nil
}

func (l *Lock) Release(ctx context.Context, taskID, ownerID string, taskCompleted bool) (bool, error) {
	key := keyPrefix + taskID
	res, err := releaseScript.Run(ctx, l.rdb, []string{key}, ownerID).Int()
	if err != nil {
		return false, fmt.Errorf("stardag/redislock: release %s: %w", taskID, err)
	}
	released := res == 1
	if released {
		l.rdb.SRem(ctx, l.heldSetKey(), taskID)
		if taskCompleted {
			if err := l.rdb.Set(ctx, completedPrefix+taskID, "1", 0).Err(); err != nil {
				return released, fmt.Errorf("stardag/redislock: recording completion for %s: %w", taskID, err)
			}
		}
	}
	return released, nil
}

func (l *Lock) heldSetKey() string { return keyPrefix + "held" }
