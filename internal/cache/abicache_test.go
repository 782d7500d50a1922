package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/si-chain/eosio-plugin/internal/abi"
)

type fakeLookup struct {
	abis  map[string]*abi.ABI
	calls int
}

func (f *fakeLookup) LookupABI(ctx context.Context, name string) (*abi.ABI, error) {
	f.calls++
	return f.abis[name], nil
}

func tokenABI(t *testing.T) *abi.ABI {
	t.Helper()
	def, err := abi.Parse([]byte(`{
		"version": "v1.0",
		"structs": [{"name": "transfer", "fields": [{"name": "from", "type": "name"}]}],
		"actions": [{"name": "transfer", "type": "transfer"}]
	}`))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return def
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestResolveMemoryHit(t *testing.T) {
	lk := &fakeLookup{abis: map[string]*abi.ABI{"token": tokenABI(t)}}
	c := New(lk, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		def, err := c.Resolve(ctx, "token")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if def == nil {
			t.Fatal("expected a schema")
		}
	}
	if lk.calls != 1 {
		t.Errorf("expected a single store lookup, got %d", lk.calls)
	}
}

func TestResolveAbsentNotCached(t *testing.T) {
	lk := &fakeLookup{abis: map[string]*abi.ABI{}}
	c := New(lk, nil, nil)
	ctx := context.Background()

	if def, err := c.Resolve(ctx, "token"); err != nil || def != nil {
		t.Fatalf("resolve absent: def=%v err=%v", def, err)
	}

	// A schema that appears later must be visible on the next resolve.
	lk.abis["token"] = tokenABI(t)
	def, err := c.Resolve(ctx, "token")
	if err != nil || def == nil {
		t.Fatalf("resolve after attach: def=%v err=%v", def, err)
	}
	if lk.calls != 2 {
		t.Errorf("expected both resolves to hit the store, got %d calls", lk.calls)
	}
}

func TestRedisTierSharedAcrossInstances(t *testing.T) {
	rdb := testRedis(t)
	lk := &fakeLookup{abis: map[string]*abi.ABI{"token": tokenABI(t)}}
	ctx := context.Background()

	first := New(lk, rdb, nil)
	if _, err := first.Resolve(ctx, "token"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// A fresh cache with an empty memory tier should be served by Redis.
	second := New(&fakeLookup{}, rdb, nil)
	def, err := second.Resolve(ctx, "token")
	if err != nil {
		t.Fatalf("resolve via redis: %v", err)
	}
	if def == nil || def.ActionType("transfer") != "transfer" {
		t.Fatalf("redis tier returned %+v", def)
	}
}

func TestInvalidateDropsBothTiers(t *testing.T) {
	rdb := testRedis(t)
	lk := &fakeLookup{abis: map[string]*abi.ABI{"token": tokenABI(t)}}
	c := New(lk, rdb, nil)
	ctx := context.Background()

	if _, err := c.Resolve(ctx, "token"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	c.Invalidate("token")

	if err := rdb.Get(ctx, "abi:token").Err(); err != redis.Nil {
		t.Errorf("expected redis key gone, got %v", err)
	}
	if _, err := c.Resolve(ctx, "token"); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if lk.calls != 2 {
		t.Errorf("expected the post-invalidate resolve to hit the store, got %d calls", lk.calls)
	}
}

func TestMalformedRedisEntryFallsBack(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	if err := srv.Set("abi:token", "{not json"); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	lk := &fakeLookup{abis: map[string]*abi.ABI{"token": tokenABI(t)}}
	c := New(lk, rdb, nil)

	def, err := c.Resolve(context.Background(), "token")
	if err != nil || def == nil {
		t.Fatalf("resolve: def=%v err=%v", def, err)
	}
	if lk.calls != 1 {
		t.Errorf("expected fallback to the store, got %d calls", lk.calls)
	}
}
