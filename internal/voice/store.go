package voice

import "context"

// Store describes persistence for voice channels and memberships. Join and
// the toggles are single atomic operations: implementations must serialize
// the capacity check against concurrent joins of the same channel.
type Store interface {
	CreateChannel(ctx context.Context, name string, maxUsers int) (Channel, error)
	GetChannel(ctx context.Context, channelID int64) (Channel, error)

	// Join applies move semantics: an existing membership elsewhere is
	// released in the same atomic unit before the capacity check. The
	// returned prev id is the channel left, 0 when the user was absent,
	// or channelID itself when the user was already there and nothing
	// changed. A full target fails with ErrChannelFull and leaves prior
	// membership intact.
	Join(ctx context.Context, userID, channelID int64) (Member, int64, error)

	// Leave releases the user's membership wherever it is; ok reports
	// whether a membership existed.
	Leave(ctx context.Context, userID int64) (Member, bool, error)

	ToggleMute(ctx context.Context, userID int64) (Member, error)
	ToggleDeafen(ctx context.Context, userID int64) (Member, error)

	Members(ctx context.Context, channelID int64) ([]Member, error)
	MemberOf(ctx context.Context, userID int64) (Member, bool, error)
}
