package invite

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemory implements Store behind a single mutex so the bound check and
// the increment in Redeem are one critical section.
type InMemory struct {
	mu     sync.RWMutex
	codes  map[string]*Code
	uses   []Use
	nextID int64
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty invite store.
func NewInMemory() *InMemory {
	return &InMemory{codes: make(map[string]*Code)}
}

func (s *InMemory) Insert(ctx context.Context, code Code) (Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return Code{}, fmt.Errorf("%w: code already exists", ErrConflict)
	}
	s.nextID++
	code.ID = s.nextID
	code.Uses = 0
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	stored := code
	s.codes[code.Code] = &stored
	return code, nil
}

func (s *InMemory) GetByCode(ctx context.Context, code string) (Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[code]
	if !ok {
		return Code{}, ErrNotFound
	}
	return *c, nil
}

func (s *InMemory) Redeem(ctx context.Context, code string, userID int64, now time.Time) (Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return Code{}, ErrNotFound
	}
	if c.Expired(now) {
		return Code{}, fmt.Errorf("%w: code expired", ErrConflict)
	}
	if c.Exhausted() {
		return Code{}, fmt.Errorf("%w: code exhausted", ErrConflict)
	}
	c.Uses++
	s.uses = append(s.uses, Use{CodeID: c.ID, UserID: userID, UsedAt: now})
	return *c, nil
}

func (s *InMemory) Uses(ctx context.Context, codeID int64) ([]Use, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Use
	for _, u := range s.uses {
		if u.CodeID == codeID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *InMemory) ListByCreator(ctx context.Context, creatorID int64) ([]Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Code
	for _, c := range s.codes {
		if c.CreatorID == creatorID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
