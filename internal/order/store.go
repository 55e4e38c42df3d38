package order

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrDraftExists = errors.New("draft already exists")

// Draft is one account's order in progress.
type Draft struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DraftStore keeps drafts between requests. Update must apply fn atomically
// with respect to other updates of the same draft; if fn returns an error
// nothing is written and that error is returned.
type DraftStore interface {
	Create(ctx context.Context, d Draft) error
	Get(ctx context.Context, id string) (Draft, error)
	Update(ctx context.Context, id string, fn func(Draft) (Draft, error)) (Draft, error)
	Delete(ctx context.Context, id string) error
}

type InMemoryDraftStore struct {
	mu     sync.Mutex
	drafts map[string]Draft
}

func NewInMemoryDraftStore() *InMemoryDraftStore {
	return &InMemoryDraftStore{drafts: make(map[string]Draft)}
}

func (s *InMemoryDraftStore) Create(_ context.Context, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[d.ID]; ok {
		return ErrDraftExists
	}
	s.drafts[d.ID] = d
	return nil
}

func (s *InMemoryDraftStore) Get(_ context.Context, id string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, ErrNotFound
	}
	return d, nil
}

func (s *InMemoryDraftStore) Update(_ context.Context, id string, fn func(Draft) (Draft, error)) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, ErrNotFound
	}
	next, err := fn(d)
	if err != nil {
		return d, err
	}
	s.drafts[id] = next
	return next, nil
}

func (s *InMemoryDraftStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[id]; !ok {
		return ErrNotFound
	}
	delete(s.drafts, id)
	return nil
}
