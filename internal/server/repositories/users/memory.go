package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository is an in-process directory. Like the relational schema it
// allows a single admin and unique usernames.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*models.User
	byUsername map[string]string
	now        func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]*models.User),
		byUsername: make(map[string]string),
		now:        time.Now,
	}
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.insertLocked(user); err != nil {
		return nil, err
	}
	return user, nil
}

// insertLocked fills in ID and CreatedAt when empty and stores a copy.
func (r *MemoryRepository) insertLocked(user *models.User) error {
	if _, ok := r.byUsername[user.Username]; ok {
		return common.ErrUsernameTaken
	}
	if user.Role == models.RoleAdmin && r.countLocked(models.RoleAdmin) > 0 {
		return common.ErrAlreadyBootstrapped
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.now().UTC()
	}
	cp := *user
	r.byID[cp.ID] = &cp
	r.byUsername[cp.Username] = cp.ID
	return nil
}

func (r *MemoryRepository) deleteLocked(id string) {
	if u, ok := r.byID[id]; ok {
		delete(r.byUsername, u.Username)
		delete(r.byID, id)
	}
}

func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, userID, hash, algorithm string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	u.HashAlgorithm = algorithm
	return nil
}

func (r *MemoryRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.EmailVerified = true
	return nil
}

func (r *MemoryRepository) CountByRole(ctx context.Context, role string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked(role), nil
}

func (r *MemoryRepository) countLocked(role string) int {
	n := 0
	for _, u := range r.byID {
		if u.Role == role {
			n++
		}
	}
	return n
}
