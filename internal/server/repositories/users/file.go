package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/filex"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
)

// FileRepository is a MemoryRepository whose every mutation is written to a
// JSON file atomically before returning. A failed write undoes the change.
type FileRepository struct {
	path string
	mem  *MemoryRepository
}

type userEntry struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	PasswordHash  string    `json:"password_hash"`
	HashAlgorithm string    `json:"hash_algorithm"`
}

// OpenFileRepository loads path; a missing file is an empty directory.
func OpenFileRepository(path string) (*FileRepository, error) {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	r := &FileRepository{path: path, mem: NewMemoryRepository()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return r, nil
	}

	var entries []userEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse user file %s: %w", path, err)
	}
	for _, e := range entries {
		u := models.User(e)
		if err := r.mem.insertLocked(&u); err != nil {
			return nil, fmt.Errorf("user file %s: %q: %w", path, e.Username, err)
		}
	}
	return r, nil
}

// persistLocked writes all users sorted by creation. Callers hold r.mem.mu.
func (r *FileRepository) persistLocked() error {
	entries := make([]userEntry, 0, len(r.mem.byID))
	for _, u := range r.mem.byID {
		entries = append(entries, userEntry(*u))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user file: %w", err)
	}
	if err := filex.WriteFileAtomic(r.path, data, 0o600); err != nil {
		return common.Unavailable("write user file", err)
	}
	return nil
}

func (r *FileRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.mem.GetByUsername(ctx, username)
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.mem.GetByID(ctx, id)
}

func (r *FileRepository) CountByRole(ctx context.Context, role string) (int, error) {
	return r.mem.CountByRole(ctx, role)
}

func (r *FileRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mem.mu.Lock()
	defer r.mem.mu.Unlock()

	if err := r.mem.insertLocked(user); err != nil {
		return nil, err
	}
	if err := r.persistLocked(); err != nil {
		r.mem.deleteLocked(user.ID)
		return nil, err
	}
	return user, nil
}

// update applies fn to the stored user and persists, restoring the previous
// record if the write fails.
func (r *FileRepository) update(ctx context.Context, userID string, fn func(u *models.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mem.mu.Lock()
	defer r.mem.mu.Unlock()

	u, ok := r.mem.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	prev := *u
	fn(u)
	if err := r.persistLocked(); err != nil {
		*u = prev
		return err
	}
	return nil
}

func (r *FileRepository) UpdatePasswordHash(ctx context.Context, userID, hash, algorithm string) error {
	return r.update(ctx, userID, func(u *models.User) {
		u.PasswordHash = hash
		u.HashAlgorithm = algorithm
	})
}

func (r *FileRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	return r.update(ctx, userID, func(u *models.User) {
		u.EmailVerified = true
	})
}
