package sqlite

import (
	"context"

	"github.com/flagbearer/ctfbot"
)

// Ensure service implements interface.
var _ ctfbot.TrackedUserService = (*TrackedUserService)(nil)

// TrackedUserService stores the AlpacaHack accounts being followed.
type TrackedUserService struct {
	db *DB
}

func NewTrackedUserService(db *DB) *TrackedUserService {
	return &TrackedUserService{db: db}
}

func (s *TrackedUserService) CreateTrackedUser(ctx context.Context, user *ctfbot.TrackedUser) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	user.CreatedAt = tx.now
	if err := user.Validate(); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO tracked_users (name, created_at)
		VALUES (?, ?)
	`,
		user.Name,
		(*NullTime)(&user.CreatedAt),
	)
	if err != nil {
		if ctfbot.ErrorCode(FormatError(err)) == ctfbot.ECONFLICT {
			return ctfbot.Errorf(ctfbot.ECONFLICT, "User %q is already tracked.", user.Name)
		}
		return FormatError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return FormatError(err)
	}
	user.ID = int(id)

	return FormatError(tx.Commit())
}

func (s *TrackedUserService) FindTrackedUsers(ctx context.Context) ([]*ctfbot.TrackedUser, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM tracked_users
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, FormatError(err)
	}
	defer rows.Close()

	users := make([]*ctfbot.TrackedUser, 0)
	for rows.Next() {
		var user ctfbot.TrackedUser
		if err := rows.Scan(&user.ID, &user.Name, (*NullTime)(&user.CreatedAt)); err != nil {
			return nil, FormatError(err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, FormatError(err)
	}

	return users, nil
}

func (s *TrackedUserService) DeleteTrackedUser(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM tracked_users WHERE name = ?`, name)
	if err != nil {
		return FormatError(err)
	}

	if n, err := result.RowsAffected(); err != nil {
		return FormatError(err)
	} else if n == 0 {
		return ctfbot.Errorf(ctfbot.ENOTFOUND, "No tracked user named %q.", name)
	}
	return FormatError(tx.Commit())
}
