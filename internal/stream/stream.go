package stream

import (
	"context"
	"sync"
	"time"
)

// Kind identifies a domain event pushed to the real-time transport.
type Kind string

const (
	RoleChanged          Kind = "role-changed"
	VoiceJoined          Kind = "voice-joined"
	VoiceLeft            Kind = "voice-left"
	VoiceForceDisconnect Kind = "voice-force-disconnected"
	FriendRequestUpdated Kind = "friend-request-updated"
	FriendshipCreated    Kind = "friendship-created"
)

// Event is emitted after every committed mutation. The transport layer
// decides which connected clients receive it.
type Event struct {
	Kind      Kind           `json:"kind"`
	UserID    int64          `json:"user_id,omitempty"`
	TargetID  int64          `json:"target_id,omitempty"`
	ChannelID int64          `json:"channel_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stream fans domain events out to all active subscribers (the WebSocket
// gateway and any other transport consumers).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out to all subscribers.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking commits.
		}
	}
}

// Emit is a convenience wrapper used by the domain services; a nil stream
// is valid and publishes nothing.
func (s *Stream) Emit(kind Kind, userID, targetID, channelID int64) {
	if s == nil {
		return
	}
	s.Publish(Event{Kind: kind, UserID: userID, TargetID: targetID, ChannelID: channelID})
}
