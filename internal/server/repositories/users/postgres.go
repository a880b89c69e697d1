package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/dbx"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/google/uuid"
)

// Constraint names from the migrations.
const (
	usernameConstraint    = "users_username_key"
	singleAdminConstraint = "users_single_admin_idx"
)

type PostgresRepository struct {
	db      dbx.DBTX
	timeout time.Duration
}

func NewPostgresRepository(db dbx.DBTX, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{db: db, timeout: timeout}
}

func (r *PostgresRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// inTx runs fn in a new transaction when the repository holds a pool, or
// directly on the caller's transaction otherwise.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if db, ok := r.db.(*sql.DB); ok {
		return dbx.WithTx(ctx, db, nil, fn)
	}
	return fn(ctx, r.db)
}

const selectUser = `
	SELECT u.id, u.username, u.email, u.full_name, u.role, u.email_verified, u.created_at,
	       c.password_hash, c.hash_algorithm
	FROM users u
	JOIN credentials c ON c.user_id = u.id
`

func (r *PostgresRepository) getOne(ctx context.Context, op, where string, arg string) (*models.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, selectUser+where, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &user.Role, &user.EmailVerified, &user.CreatedAt,
		&user.PasswordHash, &user.HashAlgorithm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", dbx.Classify(op, err))
	}
	return user, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "get user", "WHERE u.username = $1", username)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "get user", "WHERE u.id = $1", id)
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	err := r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		query := `
			INSERT INTO users (id, username, email, full_name, role, email_verified)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`
		err := tx.QueryRowContext(ctx, query,
			user.ID, user.Username, user.Email, user.FullName, user.Role, user.EmailVerified).Scan(&user.CreatedAt)
		if err != nil {
			return err
		}

		query = `
			INSERT INTO credentials (user_id, password_hash, hash_algorithm)
			VALUES ($1, $2, $3)
		`
		_, err = tx.ExecContext(ctx, query, user.ID, user.PasswordHash, user.HashAlgorithm)
		return err
	})
	if err != nil {
		switch dbx.UniqueConstraint(err) {
		case usernameConstraint:
			return nil, common.ErrUsernameTaken
		case singleAdminConstraint:
			return nil, common.ErrAlreadyBootstrapped
		}
		return nil, fmt.Errorf("db error: %w", dbx.Classify("create user", err))
	}
	return user, nil
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, userID, hash, algorithm string) error {
	query := `
		UPDATE credentials
		SET password_hash = $2, hash_algorithm = $3, updated_at = NOW()
		WHERE user_id = $1
	`
	return r.execOne(ctx, "update credential", query, userID, hash, algorithm)
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET email_verified = TRUE
		WHERE id = $1
	`
	return r.execOne(ctx, "verify email", query, userID)
}

// execOne runs an update that must touch exactly one row.
func (r *PostgresRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(op, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) CountByRole(ctx context.Context, role string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify("count users", err))
	}
	return n, nil
}
