package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore reads operator accounts from the control schema.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// FetchByEmail implements Store.
func (s *PGStore) FetchByEmail(ctx context.Context, email string) (Admin, bool, error) {
	var admin Admin
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, token_hash, is_active
		FROM platform_admins
		WHERE email = $1`,
		email,
	).Scan(&admin.ID, &admin.Email, &admin.TokenHash, &admin.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Admin{}, false, nil
	}
	if err != nil {
		return Admin{}, false, fmt.Errorf("authz: query admin: %w", err)
	}
	return admin, true, nil
}
