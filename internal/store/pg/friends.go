package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"voxhall.org/internal/friends"
)

func (s *Store) SendRequest(ctx context.Context, senderID, receiverID int64) (friends.Request, error) {
	var req friends.Request
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		lo, hi := friends.NormalizePair(senderID, receiverID)
		var exists int
		err = tx.QueryRowContext(ctx, `
			select 1 from friendships where user1_id = $1 and user2_id = $2
		`, lo, hi).Scan(&exists)
		if err == nil {
			return fmt.Errorf("%w: already friends", friends.ErrConflict)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		// Lock both directions so a simultaneous reverse request cannot
		// slip in between the check and the write.
		rows, err := tx.QueryContext(ctx, `
			select id, sender_id, status
			from friend_requests
			where (sender_id = $1 and receiver_id = $2)
			   or (sender_id = $2 and receiver_id = $1)
			for update
		`, senderID, receiverID)
		if err != nil {
			return err
		}
		var reusableID int64
		for rows.Next() {
			var (
				id     int64
				sender int64
				status string
			)
			if err := rows.Scan(&id, &sender, &status); err != nil {
				rows.Close()
				return err
			}
			if status == string(friends.StatusPending) {
				rows.Close()
				return fmt.Errorf("%w: request already pending", friends.ErrConflict)
			}
			if sender == senderID {
				reusableID = id
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		var row *sql.Row
		if reusableID != 0 {
			row = tx.QueryRowContext(ctx, `
				update friend_requests
				set status = 'pending', updated_at = now()
				where id = $1
				returning id, sender_id, receiver_id, status, created_at, updated_at
			`, reusableID)
		} else {
			row = tx.QueryRowContext(ctx, `
				insert into friend_requests (sender_id, receiver_id, status)
				values ($1, $2, 'pending')
				returning id, sender_id, receiver_id, status, created_at, updated_at
			`, senderID, receiverID)
		}
		if err := scanRequest(row, &req); err != nil {
			// The row locks above cannot see a concurrent insert that has
			// not committed yet; the unique indexes catch that race.
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return fmt.Errorf("%w: request already pending", friends.ErrConflict)
			}
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return friends.Request{}, err
	}
	return req, nil
}

func (s *Store) GetRequest(ctx context.Context, requestID int64) (friends.Request, error) {
	var req friends.Request
	row := s.db.QueryRowContext(ctx, `
		select id, sender_id, receiver_id, status, created_at, updated_at
		from friend_requests
		where id = $1
	`, requestID)
	if err := scanRequest(row, &req); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return friends.Request{}, friends.ErrNotFound
		}
		return friends.Request{}, err
	}
	return req, nil
}

func (s *Store) AcceptRequest(ctx context.Context, requestID, actorID int64) (friends.Friendship, error) {
	var f friends.Friendship
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		req, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.ReceiverID != actorID {
			return fmt.Errorf("%w: only the receiver may accept", friends.ErrPermissionDenied)
		}
		if req.Status != friends.StatusPending {
			return fmt.Errorf("%w: request is %s", friends.ErrConflict, req.Status)
		}

		if _, err := tx.ExecContext(ctx, `
			update friend_requests set status = 'accepted', updated_at = now() where id = $1
		`, requestID); err != nil {
			return err
		}

		lo, hi := friends.NormalizePair(req.SenderID, req.ReceiverID)
		row := tx.QueryRowContext(ctx, `
			insert into friendships (user1_id, user2_id)
			values ($1, $2)
			returning user1_id, user2_id, created_at
		`, lo, hi)
		if err := row.Scan(&f.User1ID, &f.User2ID, &f.CreatedAt); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return fmt.Errorf("%w: already friends", friends.ErrConflict)
			}
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return friends.Friendship{}, err
	}
	return f, nil
}

func (s *Store) DeclineRequest(ctx context.Context, requestID, actorID int64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		req, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.ReceiverID != actorID {
			return fmt.Errorf("%w: only the receiver may decline", friends.ErrPermissionDenied)
		}
		if req.Status != friends.StatusPending {
			return fmt.Errorf("%w: request is %s", friends.ErrConflict, req.Status)
		}

		if _, err := tx.ExecContext(ctx, `
			update friend_requests set status = 'declined', updated_at = now() where id = $1
		`, requestID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) CancelRequest(ctx context.Context, requestID, actorID int64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		req, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.SenderID != actorID {
			return fmt.Errorf("%w: only the sender may cancel", friends.ErrPermissionDenied)
		}
		if req.Status != friends.StatusPending {
			return fmt.Errorf("%w: request is %s", friends.ErrConflict, req.Status)
		}

		if _, err := tx.ExecContext(ctx, `delete from friend_requests where id = $1`, requestID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) RemoveFriend(ctx context.Context, userA, userB int64) error {
	lo, hi := friends.NormalizePair(userA, userB)
	res, err := s.db.ExecContext(ctx, `
		delete from friendships where user1_id = $1 and user2_id = $2
	`, lo, hi)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return friends.ErrNotFound
	}
	return nil
}

func (s *Store) Friendship(ctx context.Context, userA, userB int64) (friends.Friendship, bool, error) {
	lo, hi := friends.NormalizePair(userA, userB)
	f, err := s.friendshipRow(ctx, lo, hi)
	if errors.Is(err, sql.ErrNoRows) {
		return friends.Friendship{}, false, nil
	}
	if err != nil {
		return friends.Friendship{}, false, err
	}
	return f, true, nil
}

func (s *Store) FriendsOf(ctx context.Context, userID int64) ([]friends.Friendship, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user1_id, user2_id, dm_channel_id, dm_voice_channel_id, created_at
		from friendships
		where user1_id = $1 or user2_id = $1
		order by user1_id, user2_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []friends.Friendship
	for rows.Next() {
		var (
			f       friends.Friendship
			dmText  sql.NullInt64
			dmVoice sql.NullInt64
		)
		if err := rows.Scan(&f.User1ID, &f.User2ID, &dmText, &dmVoice, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.DMChannelID = dmText.Int64
		f.DMVoiceChannelID = dmVoice.Int64
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) PendingFor(ctx context.Context, userID int64) ([]friends.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, sender_id, receiver_id, status, created_at, updated_at
		from friend_requests
		where status = 'pending' and (sender_id = $1 or receiver_id = $1)
		order by id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []friends.Request
	for rows.Next() {
		var req friends.Request
		var status string
		if err := rows.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		req.Status = friends.Status(status)
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) EnsureDMChannels(ctx context.Context, userA, userB int64) (friends.Friendship, error) {
	var f friends.Friendship
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		lo, hi := friends.NormalizePair(userA, userB)
		var (
			dmText  sql.NullInt64
			dmVoice sql.NullInt64
		)
		err = tx.QueryRowContext(ctx, `
			select user1_id, user2_id, dm_channel_id, dm_voice_channel_id, created_at
			from friendships
			where user1_id = $1 and user2_id = $2
			for update
		`, lo, hi).Scan(&f.User1ID, &f.User2ID, &dmText, &dmVoice, &f.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return friends.ErrNotFound
		}
		if err != nil {
			return err
		}

		if dmText.Valid {
			f.DMChannelID = dmText.Int64
			f.DMVoiceChannelID = dmVoice.Int64
			return tx.Commit()
		}

		if err := tx.QueryRowContext(ctx, `
			insert into channels (name, kind, max_users) values ('dm', 'text', 0) returning id
		`).Scan(&f.DMChannelID); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `
			insert into channels (name, kind, max_users) values ('dm', 'voice', 0) returning id
		`).Scan(&f.DMVoiceChannelID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update friendships
			set dm_channel_id = $3, dm_voice_channel_id = $4
			where user1_id = $1 and user2_id = $2
		`, lo, hi, f.DMChannelID, f.DMVoiceChannelID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return friends.Friendship{}, err
	}
	return f, nil
}

func (s *Store) friendshipRow(ctx context.Context, lo, hi int64) (friends.Friendship, error) {
	var (
		f       friends.Friendship
		dmText  sql.NullInt64
		dmVoice sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		select user1_id, user2_id, dm_channel_id, dm_voice_channel_id, created_at
		from friendships
		where user1_id = $1 and user2_id = $2
	`, lo, hi).Scan(&f.User1ID, &f.User2ID, &dmText, &dmVoice, &f.CreatedAt)
	if err != nil {
		return friends.Friendship{}, err
	}
	f.DMChannelID = dmText.Int64
	f.DMVoiceChannelID = dmVoice.Int64
	return f, nil
}

func lockRequest(ctx context.Context, tx *sql.Tx, requestID int64) (friends.Request, error) {
	var req friends.Request
	row := tx.QueryRowContext(ctx, `
		select id, sender_id, receiver_id, status, created_at, updated_at
		from friend_requests
		where id = $1
		for update
	`, requestID)
	if err := scanRequest(row, &req); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return friends.Request{}, friends.ErrNotFound
		}
		return friends.Request{}, err
	}
	return req, nil
}

func scanRequest(row *sql.Row, req *friends.Request) error {
	var status string
	if err := row.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return err
	}
	req.Status = friends.Status(status)
	return nil
}
