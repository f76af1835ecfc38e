// Package idempotency provides a distributed guard against re-executing the
// same tool call twice for one request, across gateway replicas sharing a
// Redis backend. The orchestrator already refuses to re-issue a duplicate
// tool-call signature within a single process (its own seen-set); this
// package extends that guard across processes for deployments that run
// several gateway instances behind a load balancer and want a second
// in-flight request (retry, duplicate webhook delivery) to observe the same
// "already executed" outcome rather than re-running a side-effecting tool.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard claims a (requestID, tool-call-signature) pair exactly once within a
// TTL window. Claim reports true the first time a given key is seen; later
// callers within the TTL get false without any Redis round-trip cost beyond
// the SETNX itself.
type Guard interface {
	// Claim returns true if this is the first claim of key within the TTL,
	// false if another caller already claimed it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Key builds the dedup key for one tool call within one request, mirroring
// the orchestrator's in-process signature (tool name + JSON-encoded
// arguments) but namespaced by request id so unrelated requests never
// collide.
func Key(requestID, toolName, argsJSON string) string {
	return requestID + "\x00" + toolName + "\x00" + argsJSON
}

// RedisGuard implements Guard over go-redis, using SETNX (via SetNX) as the
// distributed claim primitive — the same pattern the teacher's RedisCache
// exposes for its own distributed-lock use.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisGuard builds a RedisGuard. prefix namespaces keys so a shared
// Redis instance can host the gateway's dedup keys alongside unrelated data.
func NewRedisGuard(client redis.UniversalClient, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = "llmgateway"
	}
	return &RedisGuard{client: client, prefix: prefix}
}

func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	full := fmt.Sprintf("%s:toolcall:%s", g.prefix, key)
	ok, err := g.client.SetNX(ctx, full, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: redis setnx: %w", err)
	}
	return ok, nil
}

// Noop never rejects a claim; it is the default Guard when no distributed
// backend is configured, leaving the orchestrator's in-process seen-set as
// the only dedup layer.
type Noop struct{}

func (Noop) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}
