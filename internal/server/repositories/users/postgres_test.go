package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db, time.Second), mock, db
}

const (
	insertUserQ = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*username,.*\)\s*VALUES\s*\(\$1,.*\$6\)\s*RETURNING\s+created_at$`
	insertCredQ = `(?s)^INSERT\s+INTO\s+credentials\s*\(user_id,\s*password_hash,\s*hash_algorithm\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)$`
	selectByQ   = `(?s)^SELECT\s+u\.id,.*FROM\s+users\s+u\s+JOIN\s+credentials\s+c\s+ON\s+c\.user_id\s*=\s*u\.id\s+WHERE\s+u\.username\s*=\s*\$1$`
)

var userCols = []string{"id", "username", "email", "full_name", "role", "email_verified", "created_at", "password_hash", "hash_algorithm"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(insertUserQ).
		WithArgs(sqlmock.AnyArg(), "root", "root@example.org", "Root", "admin", false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec(insertCredQ).
		WithArgs(sqlmock.AnyArg(), "hash", "bcrypt").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u := &models.User{Username: "root", Email: "root@example.org", FullName: "Root", Role: models.RoleAdmin,
		PasswordHash: "hash", HashAlgorithm: "bcrypt"}
	got, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID == "" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_SecondAdmin(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(insertUserQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_single_admin_idx"})
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), &models.User{Username: "r2", Role: models.RoleAdmin})
	if !errors.Is(err, common.ErrAlreadyBootstrapped) {
		t.Fatalf("want ErrAlreadyBootstrapped, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_UsernameTaken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(insertUserQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), &models.User{Username: "bob", Role: models.RoleUser})
	if !errors.Is(err, common.ErrUsernameTaken) {
		t.Fatalf("want ErrUsernameTaken, got %v", err)
	}
}

func TestCreate_CredentialFailureRollsBack(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(insertUserQ).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(insertCredQ).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), &models.User{Username: "bob", Role: models.RoleUser})
	if err == nil || !regexp.MustCompile(`db error: .*disk full`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByUsername_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(userCols).
		AddRow("u1", "alice", "a@example.org", "Alice", "user", true, time.Now(), "h", "bcrypt")
	mock.ExpectQuery(selectByQ).WithArgs("alice").WillReturnRows(rows)

	u, err := repo.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "u1" || !u.EmailVerified || u.PasswordHash != "h" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestGetByUsername_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByQ).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUsername(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByUsername_Timeout(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByQ).WithArgs("alice").WillReturnError(context.DeadlineExceeded)

	_, err := repo.GetByUsername(context.Background(), "alice")
	if !errors.Is(err, common.ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+u\.id,.*WHERE\s+u\.id\s*=\s*\$1$`
	rows := sqlmock.NewRows(userCols).
		AddRow("u1", "alice", "a@example.org", "Alice", "user", false, time.Now(), "h", "bcrypt")
	mock.ExpectQuery(q).WithArgs("u1").WillReturnRows(rows)

	u, err := repo.GetByID(context.Background(), "u1")
	if err != nil || u.Username != "alice" {
		t.Fatalf("unexpected result %+v err=%v", u, err)
	}
}

func TestUpdatePasswordHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+credentials\s+SET\s+password_hash\s*=\s*\$2,\s*hash_algorithm\s*=\s*\$3,.*WHERE\s+user_id\s*=\s*\$1$`
	mock.ExpectExec(q).WithArgs("u1", "h2", "bcrypt").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("u2", "h2", "bcrypt").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdatePasswordHash(context.Background(), "u1", "h2", "bcrypt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.UpdatePasswordHash(context.Background(), "u2", "h2", "bcrypt"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestMarkEmailVerified(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+email_verified\s*=\s*TRUE\s+WHERE\s+id\s*=\s*\$1$`
	mock.ExpectExec(q).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkEmailVerified(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCountByRole(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+users\s+WHERE\s+role\s*=\s*\$1$`
	mock.ExpectQuery(q).WithArgs("admin").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := repo.CountByRole(context.Background(), "admin")
	if err != nil || n != 1 {
		t.Fatalf("want 1, got %d err=%v", n, err)
	}
}
