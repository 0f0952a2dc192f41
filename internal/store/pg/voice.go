package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"voxhall.org/internal/voice"
)

func (s *Store) CreateChannel(ctx context.Context, name string, maxUsers int) (voice.Channel, error) {
	if maxUsers < 0 {
		return voice.Channel{}, fmt.Errorf("voice: negative capacity")
	}
	var ch voice.Channel
	row := s.db.QueryRowContext(ctx, `
		insert into channels (name, kind, max_users)
		values ($1, 'voice', $2)
		returning id, name, max_users, created_at
	`, name, maxUsers)
	if err := row.Scan(&ch.ID, &ch.Name, &ch.MaxUsers, &ch.CreatedAt); err != nil {
		return voice.Channel{}, err
	}
	return ch, nil
}

func (s *Store) GetChannel(ctx context.Context, channelID int64) (voice.Channel, error) {
	var ch voice.Channel
	err := s.db.QueryRowContext(ctx, `
		select id, name, max_users, created_at
		from channels
		where id = $1 and kind = 'voice'
	`, channelID).Scan(&ch.ID, &ch.Name, &ch.MaxUsers, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return voice.Channel{}, voice.ErrNotFound
	}
	if err != nil {
		return voice.Channel{}, err
	}
	return ch, nil
}

func (s *Store) Join(ctx context.Context, userID, channelID int64) (voice.Member, int64, error) {
	var (
		member voice.Member
		prev   int64
	)
	err := withRetry(ctx, func(ctx context.Context) error {
		member = voice.Member{}
		prev = 0

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		// Lock the channel row so concurrent joins serialize on the
		// capacity check.
		var maxUsers int
		err = tx.QueryRowContext(ctx, `
			select max_users from channels where id = $1 and kind = 'voice' for update
		`, channelID).Scan(&maxUsers)
		if errors.Is(err, sql.ErrNoRows) {
			return voice.ErrNotFound
		}
		if err != nil {
			return err
		}

		var existing voice.Member
		err = tx.QueryRowContext(ctx, `
			select id, channel_id, user_id, muted, deafened, joined_at
			from voice_members
			where user_id = $1
			for update
		`, userID).Scan(&existing.ID, &existing.ChannelID, &existing.UserID, &existing.Muted, &existing.Deafened, &existing.JoinedAt)
		switch {
		case err == nil:
			if existing.ChannelID == channelID {
				member = existing
				prev = channelID
				return tx.Commit()
			}
			prev = existing.ChannelID
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		var occupancy int
		if err := tx.QueryRowContext(ctx, `
			select count(*) from voice_members where channel_id = $1
		`, channelID).Scan(&occupancy); err != nil {
			return err
		}
		if maxUsers > 0 && occupancy >= maxUsers {
			// Rolls back, so the previous membership survives.
			prev = 0
			return voice.ErrChannelFull
		}

		if prev != 0 {
			if _, err := tx.ExecContext(ctx, `
				delete from voice_members where user_id = $1
			`, userID); err != nil {
				return err
			}
		}

		row := tx.QueryRowContext(ctx, `
			insert into voice_members (channel_id, user_id)
			values ($1, $2)
			returning id, channel_id, user_id, muted, deafened, joined_at
		`, channelID, userID)
		if err := row.Scan(&member.ID, &member.ChannelID, &member.UserID, &member.Muted, &member.Deafened, &member.JoinedAt); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return voice.Member{}, 0, err
	}
	return member, prev, nil
}

func (s *Store) Leave(ctx context.Context, userID int64) (voice.Member, bool, error) {
	var m voice.Member
	err := s.db.QueryRowContext(ctx, `
		delete from voice_members
		where user_id = $1
		returning id, channel_id, user_id, muted, deafened, joined_at
	`, userID).Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Muted, &m.Deafened, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return voice.Member{}, false, nil
	}
	if err != nil {
		return voice.Member{}, false, err
	}
	return m, true, nil
}

func (s *Store) ToggleMute(ctx context.Context, userID int64) (voice.Member, error) {
	return s.toggle(ctx, userID, "muted")
}

func (s *Store) ToggleDeafen(ctx context.Context, userID int64) (voice.Member, error) {
	return s.toggle(ctx, userID, "deafened")
}

func (s *Store) toggle(ctx context.Context, userID int64, column string) (voice.Member, error) {
	var m voice.Member
	query := fmt.Sprintf(`
		update voice_members
		set %[1]s = not %[1]s
		where user_id = $1
		returning id, channel_id, user_id, muted, deafened, joined_at
	`, column)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Muted, &m.Deafened, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return voice.Member{}, fmt.Errorf("%w: no active membership", voice.ErrNotFound)
	}
	if err != nil {
		return voice.Member{}, err
	}
	return m, nil
}

func (s *Store) Members(ctx context.Context, channelID int64) ([]voice.Member, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `
		select 1 from channels where id = $1 and kind = 'voice'
	`, channelID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, voice.ErrNotFound
		}
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, channel_id, user_id, muted, deafened, joined_at
		from voice_members
		where channel_id = $1
		order by id
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []voice.Member
	for rows.Next() {
		var m voice.Member
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Muted, &m.Deafened, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) MemberOf(ctx context.Context, userID int64) (voice.Member, bool, error) {
	var m voice.Member
	err := s.db.QueryRowContext(ctx, `
		select id, channel_id, user_id, muted, deafened, joined_at
		from voice_members
		where user_id = $1
	`, userID).Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Muted, &m.Deafened, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return voice.Member{}, false, nil
	}
	if err != nil {
		return voice.Member{}, false, err
	}
	return m, true, nil
}
