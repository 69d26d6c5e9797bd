// Package redis provides Redis-backed call state, caller records and a
// distributed lock, so several replicas can share in-flight calls.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key this package writes.
const DefaultPrefix = "casefile:"

// farFuture is the index score of entries without expiration (2100-01-01).
const farFuture = 4102444800

// CallStateStore implements ports.CallStateStore using Redis.
type CallStateStore struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ ports.CallStateStore = (*CallStateStore)(nil)

// Option configures the Redis stores.
type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
}

// WithTTL sets the expiration for call state.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

func apply(opts []Option) options {
	o := options{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dial creates a client for address.
func Dial(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// NewCallStateStore creates a call state store from an existing client.
func NewCallStateStore(client backend.UniversalClient, opts ...Option) *CallStateStore {
	o := apply(opts)
	return &CallStateStore{
		client: client,
		prefix: o.prefix + "call:",
		ttl:    o.ttl,
	}
}

func (s *CallStateStore) key(callID string) string {
	return s.prefix + callID
}

func (s *CallStateStore) indexKey() string {
	return s.prefix + "index"
}

// Save persists the context as JSON and indexes it by expiry.
func (s *CallStateStore) Save(ctx context.Context, sc domain.SessionContext) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to marshal call state: %w", err)
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = farFuture
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(sc.CallID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: sc.CallID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save call state: %w", err)
	}
	return nil
}

// Load retrieves the context of a call.
func (s *CallStateStore) Load(ctx context.Context, callID string) (domain.SessionContext, error) {
	val, err := s.client.Get(ctx, s.key(callID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.SessionContext{}, domain.ErrCallNotFound
		}
		return domain.SessionContext{}, fmt.Errorf("failed to get call state: %w", err)
	}

	var sc domain.SessionContext
	if err := json.Unmarshal(val, &sc); err != nil {
		return domain.SessionContext{}, fmt.Errorf("failed to unmarshal call state: %w", err)
	}
	if sc.AttemptCounts == nil {
		sc.AttemptCounts = make(map[domain.Step]int)
	}
	return sc, nil
}

// Delete removes the call.
func (s *CallStateStore) Delete(ctx context.Context, callID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(callID))
	pipe.ZRem(ctx, s.indexKey(), callID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete call state: %w", err)
	}
	return nil
}

// List returns live call IDs. Expired entries are pruned from the index lazily.
func (s *CallStateStore) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired calls: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	return ids, nil
}
