// Package cache holds the per-account ABI cache consulted on every generic
// decode. The document store stays the source of truth; this avoids a store
// round-trip per action.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/si-chain/eosio-plugin/internal/abi"
)

// Lookup reads an account's stored schema from the source of truth.
type Lookup interface {
	LookupABI(ctx context.Context, name string) (*abi.ABI, error)
}

// DefaultTTL bounds how long a Redis-tier entry survives without
// invalidation.
const DefaultTTL = 15 * time.Minute

const redisKeyPrefix = "abi:"

// ABICache is a two-tier read-through cache: a process-local map, an
// optional shared Redis tier, then the store. Entries are invalidated when a
// schema-set action is processed; absent schemas are never cached so a late
// setabi becomes visible immediately.
type ABICache struct {
	lookup Lookup
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	mu  sync.RWMutex
	mem map[string]*abi.ABI
}

// New returns an ABICache over the store lookup. rdb may be nil to run
// memory-only.
func New(lookup Lookup, rdb *redis.Client, logger *slog.Logger) *ABICache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ABICache{
		lookup: lookup,
		rdb:    rdb,
		ttl:    DefaultTTL,
		logger: logger.With("component", "abi-cache"),
		mem:    make(map[string]*abi.ABI),
	}
}

// Resolve returns the most recently known schema for account, or (nil, nil)
// when none is available.
func (c *ABICache) Resolve(ctx context.Context, account string) (*abi.ABI, error) {
	c.mu.RLock()
	def, ok := c.mem[account]
	c.mu.RUnlock()
	if ok {
		return def, nil
	}

	if def := c.fromRedis(ctx, account); def != nil {
		c.mu.Lock()
		c.mem[account] = def
		c.mu.Unlock()
		return def, nil
	}

	def, err := c.lookup.LookupABI(ctx, account)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, nil
	}

	c.mu.Lock()
	c.mem[account] = def
	c.mu.Unlock()
	c.toRedis(ctx, account, def)
	return def, nil
}

// Invalidate drops any cached schema for account in both tiers.
func (c *ABICache) Invalidate(account string) {
	c.mu.Lock()
	delete(c.mem, account)
	c.mu.Unlock()

	if c.rdb != nil {
		if err := c.rdb.Del(context.Background(), redisKeyPrefix+account).Err(); err != nil {
			c.logger.Debug("redis invalidate failed", "account", account, "error", err)
		}
	}
}

// fromRedis reads the shared tier. Any failure degrades to the store lookup.
func (c *ABICache) fromRedis(ctx context.Context, account string) *abi.ABI {
	if c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+account).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("redis get failed", "account", account, "error", err)
		}
		return nil
	}
	var def abi.ABI
	if err := json.Unmarshal(raw, &def); err != nil {
		c.logger.Debug("redis entry malformed", "account", account, "error", err)
		return nil
	}
	return &def
}

func (c *ABICache) toRedis(ctx context.Context, account string, def *abi.ABI) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+account, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("redis set failed", "account", account, "error", err)
	}
}
