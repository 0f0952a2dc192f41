package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voxhall.org/internal/invite"
)

func (s *Store) Insert(ctx context.Context, code invite.Code) (invite.Code, error) {
	var (
		out     invite.Code
		expires sql.NullTime
	)
	row := s.db.QueryRowContext(ctx, `
		insert into invite_codes (code, creator_id, max_uses, expires_at)
		values ($1, $2, $3, $4)
		returning id, code, creator_id, max_uses, uses, expires_at, created_at
	`, code.Code, code.CreatorID, code.MaxUses, nullIfZeroTime(code.ExpiresAt))
	if err := row.Scan(&out.ID, &out.Code, &out.CreatorID, &out.MaxUses, &out.Uses, &expires, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return invite.Code{}, fmt.Errorf("%w: code already exists", invite.ErrConflict)
		}
		return invite.Code{}, err
	}
	if expires.Valid {
		out.ExpiresAt = expires.Time
	}
	return out, nil
}

func (s *Store) GetByCode(ctx context.Context, code string) (invite.Code, error) {
	var (
		out     invite.Code
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, code, creator_id, max_uses, uses, expires_at, created_at
		from invite_codes
		where code = $1
	`, code).Scan(&out.ID, &out.Code, &out.CreatorID, &out.MaxUses, &out.Uses, &expires, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return invite.Code{}, invite.ErrNotFound
	}
	if err != nil {
		return invite.Code{}, err
	}
	if expires.Valid {
		out.ExpiresAt = expires.Time
	}
	return out, nil
}

func (s *Store) Redeem(ctx context.Context, code string, userID int64, now time.Time) (invite.Code, error) {
	var out invite.Code
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		// The guard and the increment are one statement, so two redeemers
		// racing on the last use cannot both pass the bound check.
		var expires sql.NullTime
		err = tx.QueryRowContext(ctx, `
			update invite_codes
			set uses = uses + 1
			where code = $1
			  and (expires_at is null or expires_at > $2)
			  and (max_uses = 0 or uses < max_uses)
			returning id, code, creator_id, max_uses, uses, expires_at, created_at
		`, code, now).Scan(&out.ID, &out.Code, &out.CreatorID, &out.MaxUses, &out.Uses, &expires, &out.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return s.redeemFailure(ctx, code, now)
		}
		if err != nil {
			return err
		}
		if expires.Valid {
			out.ExpiresAt = expires.Time
		}

		if _, err := tx.ExecContext(ctx, `
			insert into invite_code_uses (code_id, user_id, used_at)
			values ($1, $2, $3)
		`, out.ID, userID, now); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return invite.Code{}, err
	}
	return out, nil
}

// redeemFailure classifies a rejected redemption for the caller.
func (s *Store) redeemFailure(ctx context.Context, code string, now time.Time) error {
	c, err := s.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if c.Expired(now) {
		return fmt.Errorf("%w: code expired", invite.ErrConflict)
	}
	return fmt.Errorf("%w: code exhausted", invite.ErrConflict)
}

func (s *Store) Uses(ctx context.Context, codeID int64) ([]invite.Use, error) {
	rows, err := s.db.QueryContext(ctx, `
		select code_id, user_id, used_at
		from invite_code_uses
		where code_id = $1
		order by used_at, user_id
	`, codeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invite.Use
	for rows.Next() {
		var u invite.Use
		if err := rows.Scan(&u.CodeID, &u.UserID, &u.UsedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListByCreator(ctx context.Context, creatorID int64) ([]invite.Code, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, code, creator_id, max_uses, uses, expires_at, created_at
		from invite_codes
		where creator_id = $1
		order by id
	`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invite.Code
	for rows.Next() {
		var (
			c       invite.Code
			expires sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Code, &c.CreatorID, &c.MaxUses, &c.Uses, &expires, &c.CreatedAt); err != nil {
			return nil, err
		}
		if expires.Valid {
			c.ExpiresAt = expires.Time
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
