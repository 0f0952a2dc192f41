package friends

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type pairKey struct{ lo, hi int64 }

// InMemory implements Store with in-process concurrency safety. DM
// channels are provisioned from an internal counter; production uses the
// Postgres store, which owns the real channels table.
type InMemory struct {
	mu            sync.RWMutex
	requests      map[int64]*Request
	friendships   map[pairKey]*Friendship
	nextRequestID int64
	nextChannelID int64
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty friends store.
func NewInMemory() *InMemory {
	return &InMemory{
		requests:    make(map[int64]*Request),
		friendships: make(map[pairKey]*Friendship),
	}
}

func (s *InMemory) SendRequest(ctx context.Context, senderID, receiverID int64) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := NormalizePair(senderID, receiverID)
	if _, ok := s.friendships[pairKey{lo, hi}]; ok {
		return Request{}, fmt.Errorf("%w: already friends", ErrConflict)
	}

	var reusable *Request
	for _, r := range s.requests {
		samePair := (r.SenderID == senderID && r.ReceiverID == receiverID) ||
			(r.SenderID == receiverID && r.ReceiverID == senderID)
		if !samePair {
			continue
		}
		if r.Status == StatusPending {
			return Request{}, fmt.Errorf("%w: request already pending", ErrConflict)
		}
		if r.SenderID == senderID {
			reusable = r
		}
	}
	if reusable != nil {
		reusable.Status = StatusPending
		reusable.UpdatedAt = time.Now().UTC()
		return *reusable, nil
	}

	s.nextRequestID++
	req := &Request{
		ID:         s.nextRequestID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	s.requests[req.ID] = req
	return *req, nil
}

func (s *InMemory) GetRequest(ctx context.Context, requestID int64) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return Request{}, ErrNotFound
	}
	return *r, nil
}

func (s *InMemory) AcceptRequest(ctx context.Context, requestID, actorID int64) (Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return Friendship{}, ErrNotFound
	}
	if r.ReceiverID != actorID {
		return Friendship{}, fmt.Errorf("%w: only the receiver may accept", ErrPermissionDenied)
	}
	if r.Status != StatusPending {
		return Friendship{}, fmt.Errorf("%w: request is %s", ErrConflict, r.Status)
	}

	r.Status = StatusAccepted
	r.UpdatedAt = time.Now().UTC()

	lo, hi := NormalizePair(r.SenderID, r.ReceiverID)
	f := &Friendship{User1ID: lo, User2ID: hi, CreatedAt: time.Now().UTC()}
	s.friendships[pairKey{lo, hi}] = f
	return *f, nil
}

func (s *InMemory) DeclineRequest(ctx context.Context, requestID, actorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	if r.ReceiverID != actorID {
		return fmt.Errorf("%w: only the receiver may decline", ErrPermissionDenied)
	}
	if r.Status != StatusPending {
		return fmt.Errorf("%w: request is %s", ErrConflict, r.Status)
	}
	r.Status = StatusDeclined
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) CancelRequest(ctx context.Context, requestID, actorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	if r.SenderID != actorID {
		return fmt.Errorf("%w: only the sender may cancel", ErrPermissionDenied)
	}
	if r.Status != StatusPending {
		return fmt.Errorf("%w: request is %s", ErrConflict, r.Status)
	}
	delete(s.requests, requestID)
	return nil
}

func (s *InMemory) RemoveFriend(ctx context.Context, userA, userB int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := NormalizePair(userA, userB)
	if _, ok := s.friendships[pairKey{lo, hi}]; !ok {
		return ErrNotFound
	}
	delete(s.friendships, pairKey{lo, hi})
	return nil
}

func (s *InMemory) Friendship(ctx context.Context, userA, userB int64) (Friendship, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := NormalizePair(userA, userB)
	f, ok := s.friendships[pairKey{lo, hi}]
	if !ok {
		return Friendship{}, false, nil
	}
	return *f, true, nil
}

func (s *InMemory) FriendsOf(ctx context.Context, userID int64) ([]Friendship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Friendship
	for _, f := range s.friendships {
		if f.User1ID == userID || f.User2ID == userID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].User1ID != out[j].User1ID {
			return out[i].User1ID < out[j].User1ID
		}
		return out[i].User2ID < out[j].User2ID
	})
	return out, nil
}

func (s *InMemory) PendingFor(ctx context.Context, userID int64) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Request
	for _, r := range s.requests {
		if r.Status == StatusPending && (r.ReceiverID == userID || r.SenderID == userID) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) EnsureDMChannels(ctx context.Context, userA, userB int64) (Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := NormalizePair(userA, userB)
	f, ok := s.friendships[pairKey{lo, hi}]
	if !ok {
		return Friendship{}, ErrNotFound
	}
	if f.DMChannelID == 0 {
		s.nextChannelID++
		f.DMChannelID = s.nextChannelID
		s.nextChannelID++
		f.DMVoiceChannelID = s.nextChannelID
	}
	return *f, nil
}
