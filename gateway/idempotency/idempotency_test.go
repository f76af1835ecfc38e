package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupGuard(t *testing.T) (*miniredis.Miniredis, *RedisGuard) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisGuard(client, "test")
}

func TestRedisGuardFirstClaimWins(t *testing.T) {
	_, guard := setupGuard(t)
	ctx := context.Background()

	ok, err := guard.Claim(ctx, Key("req-1", "get_weather", `{"location":"Hanoi"}`), time.Minute)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first claim to succeed")
	}
}

func TestRedisGuardDuplicateRejected(t *testing.T) {
	_, guard := setupGuard(t)
	ctx := context.Background()
	key := Key("req-1", "get_weather", `{"location":"Hanoi"}`)

	if ok, err := guard.Claim(ctx, key, time.Minute); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err := guard.Claim(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if ok {
		t.Fatal("expected duplicate claim to be rejected")
	}
}

func TestRedisGuardDistinctRequestsIndependent(t *testing.T) {
	_, guard := setupGuard(t)
	ctx := context.Background()

	k1 := Key("req-1", "get_weather", `{"location":"Hanoi"}`)
	k2 := Key("req-2", "get_weather", `{"location":"Hanoi"}`)

	if ok, _ := guard.Claim(ctx, k1, time.Minute); !ok {
		t.Fatal("expected req-1 claim to succeed")
	}
	if ok, err := guard.Claim(ctx, k2, time.Minute); err != nil || !ok {
		t.Fatalf("expected req-2 claim to succeed independently: ok=%v err=%v", ok, err)
	}
}

func TestRedisGuardExpiry(t *testing.T) {
	mr, guard := setupGuard(t)
	ctx := context.Background()
	key := Key("req-1", "get_weather", `{}`)

	if ok, _ := guard.Claim(ctx, key, time.Second); !ok {
		t.Fatal("expected first claim to succeed")
	}
	mr.FastForward(2 * time.Second)

	ok, err := guard.Claim(ctx, key, time.Second)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !ok {
		t.Fatal("expected claim to succeed again once the key expired")
	}
}

func TestNoopGuardAlwaysClaims(t *testing.T) {
	var g Noop
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := g.Claim(ctx, "same-key", time.Minute)
		if err != nil || !ok {
			t.Fatalf("iteration %d: ok=%v err=%v", i, ok, err)
		}
	}
}
