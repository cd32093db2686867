// Package idempotency keeps a Redis-backed record of deliveries a consumer
// already handled. The database stays the source of truth; a miss here only
// costs a round trip to it.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/commerce-core/pkg/redis"
)

var (
	ErrNoStore    = errors.New("idempotency: store is required")
	ErrBadTTL     = errors.New("idempotency: ttl must be non-negative")
	ErrNoConsumer = errors.New("idempotency: consumer name is required")
	ErrNoID       = errors.New("idempotency: delivery id is required")
)

// SeenSet marks delivery ids per consumer under
// `cc:idempotency:seen:<consumer>:<id>`. The stored value is the UTC time the
// id was marked.
type SeenSet struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewSeenSet(store redis.IdempotencyStore, ttl time.Duration) (*SeenSet, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if ttl < 0 {
		return nil, ErrBadTTL
	}
	return &SeenSet{store: store, ttl: ttl, now: time.Now}, nil
}

func (s *SeenSet) WasProcessed(ctx context.Context, consumer, id string) (bool, error) {
	key, err := s.key(consumer, id)
	if err != nil {
		return false, err
	}
	_, err = s.store.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case redis.IsNil(err):
		return false, nil
	default:
		return false, err
	}
}

// MarkProcessed must only run after the durable write committed. An existing
// mark keeps its original timestamp.
func (s *SeenSet) MarkProcessed(ctx context.Context, consumer, id string) error {
	key, err := s.key(consumer, id)
	if err != nil {
		return err
	}
	_, err = s.store.SetNX(ctx, key, s.now().UTC().Format(time.RFC3339), s.ttl)
	return err
}

// Forget drops a mark so the next delivery goes back to the database.
func (s *SeenSet) Forget(ctx context.Context, consumer, id string) error {
	key, err := s.key(consumer, id)
	if err != nil {
		return err
	}
	return s.store.Del(ctx, key)
}

func (s *SeenSet) key(consumer, id string) (string, error) {
	switch {
	case consumer == "":
		return "", ErrNoConsumer
	case id == "":
		return "", ErrNoID
	}
	return s.store.IdempotencyKey("seen:"+consumer, id), nil
}
