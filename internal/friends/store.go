package friends

import "context"

// Store describes persistence for friend requests and friendships. The
// actor checks live inside the store operations so each status transition
// is a single atomic unit, never a read-then-write from the caller.
type Store interface {
	// SendRequest inserts a pending request, failing with ErrConflict if
	// a pending request already exists in either direction or the pair is
	// already friends. A previously declined or accepted row for the same
	// ordered pair is reset to pending.
	SendRequest(ctx context.Context, senderID, receiverID int64) (Request, error)

	GetRequest(ctx context.Context, requestID int64) (Request, error)

	// AcceptRequest verifies the actor is the receiver and the request is
	// pending, then marks it accepted and materializes the canonical
	// friendship in the same atomic unit.
	AcceptRequest(ctx context.Context, requestID, actorID int64) (Friendship, error)

	// DeclineRequest verifies the actor is the receiver; the request
	// returns to a state from which a new one may be sent.
	DeclineRequest(ctx context.Context, requestID, actorID int64) error

	// CancelRequest verifies the actor is the sender and withdraws the
	// pending request.
	CancelRequest(ctx context.Context, requestID, actorID int64) error

	// RemoveFriend deletes the friendship row only; DM channels and their
	// history are left in place.
	RemoveFriend(ctx context.Context, userA, userB int64) error

	Friendship(ctx context.Context, userA, userB int64) (Friendship, bool, error)
	FriendsOf(ctx context.Context, userID int64) ([]Friendship, error)
	PendingFor(ctx context.Context, userID int64) ([]Request, error)

	// EnsureDMChannels provisions the pair's private text and voice
	// channels on first access and persists their ids back onto the
	// friendship row; repeated calls return the same channels.
	EnsureDMChannels(ctx context.Context, userA, userB int64) (Friendship, error)
}
