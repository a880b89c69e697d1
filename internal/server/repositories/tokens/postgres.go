package tokens

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

// PostgresRepository stores tokens in the tokens table over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx). Every statement runs under timeout.
type PostgresRepository struct {
	db      dbx.DBTX
	timeout time.Duration
	batch   int
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
// timeout <= 0 disables the per-call deadline; batch <= 0 means DefaultPurgeBatch.
func NewPostgresRepository(db dbx.DBTX, timeout time.Duration, batch int) *PostgresRepository {
	if batch <= 0 {
		batch = DefaultPurgeBatch
	}
	return &PostgresRepository{db: db, timeout: timeout, batch: batch}
}

func (r *PostgresRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

const tokenColumns = `id, token_value, user_id, token_type, issued_at, expires_at, revoked, origin_ip, user_agent`

func (r *PostgresRepository) Put(ctx context.Context, t *models.Token) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	query := `
		INSERT INTO tokens (id, token_value, user_id, token_type, issued_at, expires_at, revoked, origin_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Hash, t.UserID, string(t.Type), t.IssuedAt, t.ExpiresAt, t.Revoked,
		nullString(t.OriginIP), nullString(t.UserAgent))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrDuplicateToken
		}
		return fmt.Errorf("db error: %w", dbx.Classify("put token", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, hash string) (models.Token, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE token_value = $1
	`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Token{}, false, nil
		}
		return models.Token{}, false, fmt.Errorf("db error: %w", dbx.Classify("get token", err))
	}
	return t, true, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE tokens
		SET revoked = TRUE
		WHERE token_value = $1 AND revoked = FALSE
	`
	n, err := r.exec(ctx, "revoke token", query, hash)
	return n == 1, err
}

func (r *PostgresRepository) RevokeByUser(ctx context.Context, userID string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE tokens
		SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`
	return r.exec(ctx, "revoke user tokens", query, userID)
}

func (r *PostgresRepository) RevokeByUserAndType(ctx context.Context, userID string, typ models.TokenType) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE tokens
		SET revoked = TRUE
		WHERE user_id = $1 AND token_type = $2 AND revoked = FALSE
	`
	return r.exec(ctx, "revoke user tokens by type", query, userID, string(typ))
}

// exec runs a single write statement and returns the affected row count.
func (r *PostgresRepository) exec(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify(op, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

// Purge deletes in batches of r.batch rows; each batch is its own statement
// so no lock is held across the whole table.
func (r *PostgresRepository) Purge(ctx context.Context, before time.Time, revokedOnly bool) (int, error) {
	query := `
		DELETE FROM tokens
		WHERE id IN (
			SELECT id FROM tokens
			WHERE revoked = TRUE OR ($2 = FALSE AND expires_at < $1)
			LIMIT $3
		)
	`
	removed := 0
	for {
		n, err := r.purgeBatch(ctx, query, before, revokedOnly)
		removed += n
		if err != nil {
			return removed, err
		}
		if n < r.batch {
			return removed, nil
		}
	}
}

func (r *PostgresRepository) purgeBatch(ctx context.Context, query string, before time.Time, revokedOnly bool) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.exec(ctx, "purge tokens", query, before, revokedOnly, r.batch)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.Token, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE user_id = $1
		ORDER BY issued_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify("list user tokens", err))
	}
	defer rows.Close()

	var out []models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify("list user tokens", err))
	}
	return out, nil
}

// Close is a no-op; the pool is owned by the repository manager.
func (r *PostgresRepository) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (models.Token, error) {
	var (
		t         models.Token
		tokenType string
		originIP  sql.NullString
		userAgent sql.NullString
	)
	err := row.Scan(&t.ID, &t.Hash, &t.UserID, &tokenType, &t.IssuedAt, &t.ExpiresAt, &t.Revoked, &originIP, &userAgent)
	if err != nil {
		return models.Token{}, err
	}
	t.Type = models.TokenType(tokenType)
	t.OriginIP = originIP.String
	t.UserAgent = userAgent.String
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
