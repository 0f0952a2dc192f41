package stream

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	s.Emit(VoiceJoined, 7, 0, 42)

	select {
	case evt := <-ch:
		if evt.Kind != VoiceJoined || evt.UserID != 7 || evt.ChannelID != 42 {
			t.Fatalf("unexpected event: %#v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Emit(VoiceLeft, int64(i), 0, 1)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestSubscriberRemovedOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed as expected
			}
		case <-deadline:
			t.Fatal("subscriber channel never closed")
		}
	}
}

func TestNilStreamEmitIsNoop(t *testing.T) {
	var s *Stream
	s.Emit(FriendshipCreated, 1, 2, 0) // must not panic
}
