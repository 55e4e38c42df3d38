package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	draftKeyPrefix   = "order:draft:"
	maxUpdateRetries = 5
)

var ErrConflict = errors.New("draft was modified concurrently, try again")

// RedisDraftStore shares drafts between replicas. Updates run inside
// WATCH/MULTI so two replicas cannot both pass the submission gate.
type RedisDraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDraftStore(client *redis.Client, ttl time.Duration) *RedisDraftStore {
	return &RedisDraftStore{client: client, ttl: ttl}
}

func draftKey(id string) string {
	return draftKeyPrefix + id
}

func (s *RedisDraftStore) Create(ctx context.Context, d Draft) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	ok, err := s.client.SetNX(ctx, draftKey(d.ID), b, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	if !ok {
		return ErrDraftExists
	}
	return nil
}

func (s *RedisDraftStore) Get(ctx context.Context, id string) (Draft, error) {
	b, err := s.client.Get(ctx, draftKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("get draft: %w", err)
	}
	var d Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	return d, nil
}

// Update may call fn more than once when another writer wins the race.
func (s *RedisDraftStore) Update(ctx context.Context, id string, fn func(Draft) (Draft, error)) (Draft, error) {
	key := draftKey(id)
	var out Draft

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var d Draft
		if err := json.Unmarshal(b, &d); err != nil {
			return fmt.Errorf("decode draft: %w", err)
		}
		next, err := fn(d)
		if err != nil {
			out = d
			return err
		}
		nb, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal draft: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, s.ttl)
			return nil
		})
		if err == nil {
			out = next
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return Draft{}, ErrConflict
}

func (s *RedisDraftStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, draftKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
