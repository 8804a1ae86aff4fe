package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/devops-promotions/promotions/internal/promotion"
)

// MemoryStorage keeps promotions in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu          sync.RWMutex
	initialized bool
	nextID      int64
	promotions  map[int64]promotion.Promotion
}

// NewMemoryStorage returns an empty store. Init must be called before use.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.promotions = make(map[int64]promotion.Promotion)
		s.initialized = true
	}
	return nil
}

func (s *MemoryStorage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.promotions = make(map[int64]promotion.Promotion)
	s.nextID = 0
	s.initialized = true
	return nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (s *MemoryStorage) Create(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return promotion.Promotion{}, ErrNotInitialized
	}
	if s.nameTaken(p.Name, 0) {
		return promotion.Promotion{}, ErrDuplicate
	}

	s.nextID++
	p.ID = s.nextID
	s.promotions[p.ID] = clonePromotion(p)
	return clonePromotion(p), nil
}

func (s *MemoryStorage) Get(ctx context.Context, id int64) (promotion.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return promotion.Promotion{}, ErrNotInitialized
	}
	p, ok := s.promotions[id]
	if !ok {
		return promotion.Promotion{}, ErrNotFound
	}
	return clonePromotion(p), nil
}

func (s *MemoryStorage) Update(ctx context.Context, p promotion.Promotion) (promotion.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return promotion.Promotion{}, ErrNotInitialized
	}
	if _, ok := s.promotions[p.ID]; !ok {
		return promotion.Promotion{}, ErrNotFound
	}
	if s.nameTaken(p.Name, p.ID) {
		return promotion.Promotion{}, ErrDuplicate
	}

	s.promotions[p.ID] = clonePromotion(p)
	return clonePromotion(p), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	if _, ok := s.promotions[id]; !ok {
		return ErrNotFound
	}
	delete(s.promotions, id)
	return nil
}

// List returns matching promotions ordered by id.
func (s *MemoryStorage) List(ctx context.Context, filter Filter) ([]promotion.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	out := make([]promotion.Promotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		if filter.Match(p) {
			out = append(out, clonePromotion(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) nameTaken(name string, except int64) bool {
	for id, existing := range s.promotions {
		if id != except && existing.Name == name {
			return true
		}
	}
	return false
}

// clonePromotion copies the optional fields so callers never share pointers
// with the stored value.
func clonePromotion(p promotion.Promotion) promotion.Promotion {
	if p.Discount != nil {
		d := *p.Discount
		p.Discount = &d
	}
	if p.Customer != nil {
		c := *p.Customer
		p.Customer = &c
	}
	return p
}
