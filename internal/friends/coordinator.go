package friends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voxhall.org/internal/obs"
	"voxhall.org/internal/stream"
)

// Coordinator owns the friend-request lifecycle and canonical friendship
// materialization. Each committed transition emits a domain event for the
// real-time transport.
type Coordinator struct {
	store  Store
	events *stream.Stream
}

// NewCoordinator constructs a Coordinator. The event stream may be nil in
// tests.
func NewCoordinator(store Store, events *stream.Stream) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("friends store is required")
	}
	return &Coordinator{store: store, events: events}, nil
}

// SendRequest opens a pending request from sender to receiver.
func (c *Coordinator) SendRequest(ctx context.Context, senderID, receiverID int64) (_ Request, err error) {
	defer func(start time.Time) { obs.ObserveOp("friends.send_request", start, err) }(time.Now())
	if senderID <= 0 || receiverID <= 0 {
		return Request{}, fmt.Errorf("%w: sender and receiver are required", ErrInvalidInput)
	}
	if senderID == receiverID {
		return Request{}, fmt.Errorf("%w: cannot befriend yourself", ErrInvalidInput)
	}
	req, err := c.store.SendRequest(ctx, senderID, receiverID)
	if err != nil {
		return Request{}, err
	}
	c.events.Emit(stream.FriendRequestUpdated, senderID, receiverID, 0)
	return req, nil
}

// AcceptRequest transitions the request to accepted and materializes the
// friendship; only the receiver may accept.
func (c *Coordinator) AcceptRequest(ctx context.Context, requestID, actorID int64) (_ Friendship, err error) {
	defer func(start time.Time) { obs.ObserveOp("friends.accept_request", start, err) }(time.Now())
	f, err := c.store.AcceptRequest(ctx, requestID, actorID)
	if err != nil {
		return Friendship{}, err
	}
	c.events.Emit(stream.FriendRequestUpdated, f.User1ID, f.User2ID, 0)
	c.events.Emit(stream.FriendshipCreated, f.User1ID, f.User2ID, 0)
	return f, nil
}

// DeclineRequest returns the request to a resendable state; only the
// receiver may decline.
func (c *Coordinator) DeclineRequest(ctx context.Context, requestID, actorID int64) (err error) {
	defer func(start time.Time) { obs.ObserveOp("friends.decline_request", start, err) }(time.Now())
	req, err := c.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if err := c.store.DeclineRequest(ctx, requestID, actorID); err != nil {
		return err
	}
	c.events.Emit(stream.FriendRequestUpdated, req.SenderID, req.ReceiverID, 0)
	return nil
}

// CancelRequest withdraws a pending request; only the sender may cancel.
func (c *Coordinator) CancelRequest(ctx context.Context, requestID, actorID int64) (err error) {
	defer func(start time.Time) { obs.ObserveOp("friends.cancel_request", start, err) }(time.Now())
	req, err := c.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if err := c.store.CancelRequest(ctx, requestID, actorID); err != nil {
		return err
	}
	c.events.Emit(stream.FriendRequestUpdated, req.SenderID, req.ReceiverID, 0)
	return nil
}

// RemoveFriend deletes the friendship row. The DM channels and their
// message history survive; a later re-friending provisions fresh ones.
func (c *Coordinator) RemoveFriend(ctx context.Context, userA, userB int64) (err error) {
	defer func(start time.Time) { obs.ObserveOp("friends.remove_friend", start, err) }(time.Now())
	if userA == userB {
		return fmt.Errorf("%w: distinct users required", ErrInvalidInput)
	}
	if err := c.store.RemoveFriend(ctx, userA, userB); err != nil {
		return err
	}
	c.events.Emit(stream.FriendRequestUpdated, userA, userB, 0)
	return nil
}

// Friendship looks up the canonical row for a pair.
func (c *Coordinator) Friendship(ctx context.Context, userA, userB int64) (Friendship, bool, error) {
	return c.store.Friendship(ctx, userA, userB)
}

// FriendsOf lists a user's friendships.
func (c *Coordinator) FriendsOf(ctx context.Context, userID int64) ([]Friendship, error) {
	return c.store.FriendsOf(ctx, userID)
}

// PendingFor lists pending requests involving the user.
func (c *Coordinator) PendingFor(ctx context.Context, userID int64) ([]Request, error) {
	return c.store.PendingFor(ctx, userID)
}

// DMChannels returns the pair's private text and voice channel ids,
// provisioning them on first access. Repeated calls never create
// duplicates.
func (c *Coordinator) DMChannels(ctx context.Context, userA, userB int64) (Friendship, error) {
	return c.store.EnsureDMChannels(ctx, userA, userB)
}
