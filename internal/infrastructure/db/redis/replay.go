package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayTTL = 24 * time.Hour

// ReplayGuard remembers processed gateway operation ids.
// Key format: webhook:op:<operation_id>
type ReplayGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewReplayGuard creates a ReplayGuard wrapping the given Redis client.
func NewReplayGuard(client redis.Cmdable) *ReplayGuard {
	return &ReplayGuard{client: client, ttl: replayTTL}
}

// IsDuplicate reports whether operationID has already been processed.
func (g *ReplayGuard) IsDuplicate(ctx context.Context, operationID string) (bool, error) {
	n, err := g.client.Exists(ctx, g.key(operationID)).Result()
	if err != nil {
		return false, fmt.Errorf("replay check: %w", err)
	}
	return n > 0, nil
}

// Mark records operationID as processed (expires after the guard's TTL).
func (g *ReplayGuard) Mark(ctx context.Context, operationID string) error {
	if err := g.client.Set(ctx, g.key(operationID), "1", g.ttl).Err(); err != nil {
		return fmt.Errorf("replay mark: %w", err)
	}
	return nil
}

func (g *ReplayGuard) key(operationID string) string {
	return "webhook:op:" + operationID
}
