package payments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists payments.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByToken(ctx context.Context, token string) (*Payment, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	List(ctx context.Context, f ListFilter) ([]*Payment, int, error)
}

// LogsStore keeps the raw gateway traffic of a payment for support.
type LogsStore interface {
	InsertPaymentLog(ctx context.Context, paymentID int64, logType string, payload any) error
}

// Locker serializes work on a key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// MemoryStore is a Store kept in process memory. Payments are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]Payment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int64]Payment)}
}

func (s *MemoryStore) Create(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now().UTC()
	p.ID = s.nextID
	p.Created = now
	p.Modified = now
	s.byID[p.ID] = *p
	return nil
}

func (s *MemoryStore) Update(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; !ok {
		return ErrNotFound
	}
	p.Modified = time.Now().UTC()
	s.byID[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) GetByToken(_ context.Context, token string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if p.Token == token {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) TokenExists(ctx context.Context, token string) (bool, error) {
	_, err := s.GetByToken(ctx, token)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) List(_ context.Context, f ListFilter) ([]*Payment, int, error) {
	s.mu.RLock()
	var out []*Payment
	for _, p := range s.byID {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Variant != "" && p.Variant != f.Variant {
			continue
		}
		if f.Since != nil && p.Created.Before(*f.Since) {
			continue
		}
		cp := p
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	total := len(out)
	if f.Offset >= total {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}
