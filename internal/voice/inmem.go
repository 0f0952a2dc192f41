package voice

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu            sync.RWMutex
	channels      map[int64]*Channel
	memberByUser  map[int64]*Member // unique per user: cross-channel exclusivity
	nextChannelID int64
	nextMemberID  int64
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty voice store.
func NewInMemory() *InMemory {
	return &InMemory{
		channels:     make(map[int64]*Channel),
		memberByUser: make(map[int64]*Member),
	}
}

func (s *InMemory) CreateChannel(ctx context.Context, name string, maxUsers int) (Channel, error) {
	if maxUsers < 0 {
		return Channel{}, fmt.Errorf("voice: negative capacity")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextChannelID++
	ch := &Channel{
		ID:        s.nextChannelID,
		Name:      name,
		MaxUsers:  maxUsers,
		CreatedAt: time.Now().UTC(),
	}
	s.channels[ch.ID] = ch
	return *ch, nil
}

func (s *InMemory) GetChannel(ctx context.Context, channelID int64) (Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return Channel{}, ErrNotFound
	}
	return *ch, nil
}

func (s *InMemory) Join(ctx context.Context, userID, channelID int64) (Member, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return Member{}, 0, ErrNotFound
	}

	var prev int64
	if existing, ok := s.memberByUser[userID]; ok {
		if existing.ChannelID == channelID {
			return *existing, channelID, nil
		}
		prev = existing.ChannelID
	}

	if ch.MaxUsers > 0 && s.occupancy(channelID) >= ch.MaxUsers {
		return Member{}, 0, ErrChannelFull
	}

	s.nextMemberID++
	m := &Member{
		ID:        s.nextMemberID,
		ChannelID: channelID,
		UserID:    userID,
		JoinedAt:  time.Now().UTC(),
	}
	s.memberByUser[userID] = m
	return *m, prev, nil
}

func (s *InMemory) Leave(ctx context.Context, userID int64) (Member, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberByUser[userID]
	if !ok {
		return Member{}, false, nil
	}
	delete(s.memberByUser, userID)
	return *m, true, nil
}

func (s *InMemory) ToggleMute(ctx context.Context, userID int64) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberByUser[userID]
	if !ok {
		return Member{}, fmt.Errorf("%w: no active membership", ErrNotFound)
	}
	m.Muted = !m.Muted
	return *m, nil
}

func (s *InMemory) ToggleDeafen(ctx context.Context, userID int64) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberByUser[userID]
	if !ok {
		return Member{}, fmt.Errorf("%w: no active membership", ErrNotFound)
	}
	m.Deafened = !m.Deafened
	return *m, nil
}

func (s *InMemory) Members(ctx context.Context, channelID int64) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.channels[channelID]; !ok {
		return nil, ErrNotFound
	}
	var members []Member
	for _, m := range s.memberByUser {
		if m.ChannelID == channelID {
			members = append(members, *m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (s *InMemory) MemberOf(ctx context.Context, userID int64) (Member, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberByUser[userID]
	if !ok {
		return Member{}, false, nil
	}
	return *m, true, nil
}

// occupancy counts members in a channel; callers hold the lock.
func (s *InMemory) occupancy(channelID int64) int {
	n := 0
	for _, m := range s.memberByUser {
		if m.ChannelID == channelID {
			n++
		}
	}
	return n
}
