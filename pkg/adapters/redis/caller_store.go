package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// CallerStore implements ports.CallerStore using Redis. Versions are checked
// under WATCH so a concurrent writer on another replica aborts the transaction.
type CallerStore struct {
	client backend.UniversalClient
	prefix string
}

var _ ports.CallerStore = (*CallerStore)(nil)

// NewCallerStore creates a caller store from an existing client.
func NewCallerStore(client backend.UniversalClient, opts ...Option) *CallerStore {
	o := apply(opts)
	return &CallerStore{client: client, prefix: o.prefix + "caller:"}
}

func (s *CallerStore) key(ani string) string {
	return s.prefix + ani
}

func (s *CallerStore) indexKey() string {
	return s.prefix + "index"
}

func decodeCaller(data []byte) (domain.CallerRecord, error) {
	var rec domain.CallerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.CallerRecord{}, fmt.Errorf("failed to unmarshal caller: %w", err)
	}
	return rec, nil
}

// Get returns the record for ani.
func (s *CallerStore) Get(ctx context.Context, ani string) (domain.CallerRecord, error) {
	data, err := s.client.Get(ctx, s.key(ani)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.CallerRecord{}, domain.ErrCallerNotFound
		}
		return domain.CallerRecord{}, fmt.Errorf("failed to get caller: %w", err)
	}
	return decodeCaller(data)
}

// Put writes rec when the stored version equals expected.
func (s *CallerStore) Put(ctx context.Context, rec domain.CallerRecord, expected int64) (domain.CallerRecord, error) {
	key := s.key(rec.ANI)
	stored := rec.Clone()
	stored.Version = expected + 1

	txf := func(tx *backend.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, backend.Nil):
			if expected != 0 {
				return domain.ErrVersionConflict
			}
		case err != nil:
			return fmt.Errorf("failed to read caller: %w", err)
		default:
			cur, err := decodeCaller(data)
			if err != nil {
				return err
			}
			if cur.Version != expected {
				return domain.ErrVersionConflict
			}
		}

		payload, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal caller: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, s.indexKey(), rec.ANI)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	switch {
	case errors.Is(err, backend.TxFailedErr):
		return domain.CallerRecord{}, domain.ErrVersionConflict
	case err != nil:
		return domain.CallerRecord{}, err
	}
	return stored.Clone(), nil
}

// List returns the stored ANIs in lexical order.
func (s *CallerStore) List(ctx context.Context) ([]string, error) {
	anis, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list callers: %w", err)
	}
	sort.Strings(anis)
	return anis, nil
}
