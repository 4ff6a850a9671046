package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type roleRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRoleRepository creates a PostgreSQL-backed role repository.
func NewRoleRepository(pool *pgxpool.Pool, logger zerolog.Logger) RoleRepository {
	return &roleRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "role").Logger(),
	}
}

func (r *roleRepository) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role,
	).Scan(&ok)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Str("role", role).Msg("failed to look up role")
		return false, fmt.Errorf("failed to look up role: %w", err)
	}
	return ok, nil
}

func (r *roleRepository) Grant(ctx context.Context, userID, role string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}
