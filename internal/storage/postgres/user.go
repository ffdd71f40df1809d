package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"wp_syncer/internal/domain"
)

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

// EnsureUser returns the id of the account with user.Username, creating it when missing.
func (s *UserStore) EnsureUser(ctx context.Context, user domain.User) (int64, error) {
	query := `
		INSERT INTO users (username, email, display_name, role)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		user.Username,
		user.Email,
		user.DisplayName,
		user.Role,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure user %s: %w", user.Username, err)
	}

	return id, nil
}
