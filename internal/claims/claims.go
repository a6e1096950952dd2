// Package claims provides short-lived Redis claims so only one worker acts on
// a key at a time. A claim expires on its own if the holder dies.
package claims

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const keyPrefix = "claims:"

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store issues claims backed by Redis SET NX.
type Store struct {
	client redis.UniversalClient
	tracer trace.Tracer

	mu     sync.Mutex
	tokens map[string]string
}

// NewStore panics when client is nil.
func NewStore(client redis.UniversalClient) *Store {
	if client == nil {
		panic("claims: redis client required")
	}
	return &Store{
		client: client,
		tracer: otel.Tracer("support.internal.claims"),
		tokens: make(map[string]string),
	}
}

// Claim takes key for ttl. It returns false when someone else holds it.
func (s *Store) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "claims.claim")
	defer span.End()
	span.SetAttributes(attribute.String("claims.key", key))

	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("claims: claim %s: %w", key, err)
	}
	span.SetAttributes(attribute.Bool("claims.acquired", ok))
	if ok {
		s.mu.Lock()
		s.tokens[key] = token
		s.mu.Unlock()
	}
	return ok, nil
}

// Release gives up a claim taken by this store. Releasing a claim that
// expired and was re-taken elsewhere is a no-op.
func (s *Store) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	token, ok := s.tokens[key]
	delete(s.tokens, key)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, s.client, []string{keyPrefix + key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("claims: release %s: %w", key, err)
	}
	return nil
}
