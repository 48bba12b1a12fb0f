package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskbounty/marketplace/internal/domain"
)

// ErrStaleIdentity signals that a concurrent writer bumped the version
// between our read and write; the caller should retry the whole operation.
var ErrStaleIdentity = errors.New("identity was modified concurrently")

type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	FindByUsername(ctx context.Context, username string) (*domain.Identity, error)
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByUsernameOrEmail(ctx context.Context, identifier string) (*domain.Identity, error)
	// Update performs a compare-and-swap on the version column so the
	// attempt-counter/timestamp pair is never clobbered by a racing writer.
	Update(ctx context.Context, identity *domain.Identity) error
	SetConnectedAccount(ctx context.Context, id, connectedAccountID string) error
}

type identityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepository{pool: pool}
}

const identityCols = `id, username, email, password_hash, disabled, verified, code_hash,
	resend_attempts, last_code_sent_at, connected_account_id, version, created_at, updated_at`

func (r *identityRepository) scanRow(row pgx.Row) (*domain.Identity, error) {
	var i domain.Identity
	err := row.Scan(
		&i.ID, &i.Username, &i.Email, &i.PasswordHash, &i.Disabled, &i.Verified, &i.CodeHash,
		&i.ResendAttempts, &i.LastCodeSentAt, &i.ConnectedAccountID, &i.Version, &i.CreatedAt, &i.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *identityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	const q = `
		INSERT INTO identities (id, username, email, password_hash, disabled, verified, code_hash,
			resend_attempts, last_code_sent_at, connected_account_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING version, created_at, updated_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.pool.QueryRow(ctx, q,
		identity.ID, identity.Username, identity.Email, identity.PasswordHash,
		identity.Disabled, identity.Verified, identity.CodeHash,
		identity.ResendAttempts, identity.LastCodeSentAt, identity.ConnectedAccountID,
	).Scan(&identity.Version, &identity.CreatedAt, &identity.UpdatedAt)
}

func (r *identityRepository) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	const q = `SELECT ` + identityCols + ` FROM identities WHERE username = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.scanRow(r.pool.QueryRow(ctx, q, username))
}

func (r *identityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	const q = `SELECT ` + identityCols + ` FROM identities WHERE lower(email) = lower($1)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.scanRow(r.pool.QueryRow(ctx, q, email))
}

func (r *identityRepository) FindByUsernameOrEmail(ctx context.Context, identifier string) (*domain.Identity, error) {
	const q = `SELECT ` + identityCols + ` FROM identities WHERE username = $1 OR lower(email) = lower($1)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.scanRow(r.pool.QueryRow(ctx, q, identifier))
}

func (r *identityRepository) Update(ctx context.Context, identity *domain.Identity) error {
	const q = `
		UPDATE identities
		SET email = $2,
			verified = $3,
			code_hash = $4,
			resend_attempts = $5,
			last_code_sent_at = $6,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $7
		RETURNING version, updated_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := r.pool.QueryRow(ctx, q,
		identity.ID, identity.Email, identity.Verified, identity.CodeHash,
		identity.ResendAttempts, identity.LastCodeSentAt, identity.Version,
	).Scan(&identity.Version, &identity.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrStaleIdentity
	}
	return err
}

func (r *identityRepository) SetConnectedAccount(ctx context.Context, id, connectedAccountID string) error {
	const q = `UPDATE identities SET connected_account_id = $2, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, connectedAccountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
