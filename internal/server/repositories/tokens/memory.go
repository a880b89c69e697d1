package tokens

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
)

// MemoryStore keeps tokens in process memory. It is meant for tests and
// ephemeral deployments: nothing survives a restart.
//
// Besides the token map it keeps the set of revoked hashes and a min-heap of
// expiries, so a purge step only touches the tokens it removes and never
// walks the whole map.
type MemoryStore struct {
	mu      sync.RWMutex
	tokens  map[string]*models.Token
	byUser  map[string]map[string]struct{}
	revoked map[string]struct{}
	expiry  expiryHeap
	batch   int
}

// NewMemoryStore returns an empty MemoryStore. batch <= 0 means DefaultPurgeBatch.
func NewMemoryStore(batch int) *MemoryStore {
	if batch <= 0 {
		batch = DefaultPurgeBatch
	}
	return &MemoryStore{
		tokens:  make(map[string]*models.Token),
		byUser:  make(map[string]map[string]struct{}),
		revoked: make(map[string]struct{}),
		batch:   batch,
	}
}

type expiryEntry struct {
	hash      string
	expiresAt time.Time
}

// expiryHeap orders entries by expiry. Entries of deleted tokens stay until
// they reach the top and are then dropped.
type expiryHeap []expiryEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(expiryEntry)) }

func (h *expiryHeap) Pop() any {
	old := *h
	e := old[len(old)-1]
	*h = old[:len(old)-1]
	return e
}

func (s *MemoryStore) Put(ctx context.Context, t *models.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t)
}

func (s *MemoryStore) insertLocked(t *models.Token) error {
	if _, ok := s.tokens[t.Hash]; ok {
		return common.ErrDuplicateToken
	}
	cp := *t
	s.tokens[t.Hash] = &cp
	set, ok := s.byUser[t.UserID]
	if !ok {
		set = make(map[string]struct{})
		s.byUser[t.UserID] = set
	}
	set[t.Hash] = struct{}{}
	heap.Push(&s.expiry, expiryEntry{hash: t.Hash, expiresAt: t.ExpiresAt})
	if cp.Revoked {
		s.revoked[t.Hash] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) deleteLocked(hash string) {
	t, ok := s.tokens[hash]
	if !ok {
		return
	}
	delete(s.tokens, hash)
	delete(s.revoked, hash)
	if set, ok := s.byUser[t.UserID]; ok {
		delete(set, hash)
		if len(set) == 0 {
			delete(s.byUser, t.UserID)
		}
	}
}

func (s *MemoryStore) markRevokedLocked(t *models.Token) {
	t.Revoked = true
	s.revoked[t.Hash] = struct{}{}
}

func (s *MemoryStore) unmarkRevokedLocked(t *models.Token) {
	t.Revoked = false
	delete(s.revoked, t.Hash)
}

func (s *MemoryStore) Get(ctx context.Context, hash string) (models.Token, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Token{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[hash]
	if !ok {
		return models.Token{}, false, nil
	}
	return *t, true, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok || t.Revoked {
		return false, nil
	}
	s.markRevokedLocked(t)
	return true, nil
}

// revokeUserLocked revokes the active tokens of userID accepted by match and
// returns them.
func (s *MemoryStore) revokeUserLocked(userID string, match func(*models.Token) bool) []*models.Token {
	var changed []*models.Token
	for hash := range s.byUser[userID] {
		t := s.tokens[hash]
		if t.Revoked || !match(t) {
			continue
		}
		s.markRevokedLocked(t)
		changed = append(changed, t)
	}
	return changed
}

func anyToken(*models.Token) bool { return true }

func ofType(typ models.TokenType) func(*models.Token) bool {
	return func(t *models.Token) bool { return t.Type == typ }
}

func (s *MemoryStore) RevokeByUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.revokeUserLocked(userID, anyToken)), nil
}

func (s *MemoryStore) RevokeByUserAndType(ctx context.Context, userID string, typ models.TokenType) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.revokeUserLocked(userID, ofType(typ))), nil
}

// Purge removes tokens one batch at a time, taking the write lock once per
// batch.
func (s *MemoryStore) Purge(ctx context.Context, before time.Time, revokedOnly bool) (int, error) {
	removed := 0
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		s.mu.Lock()
		gone, more := s.takePurgeBatchLocked(before, revokedOnly)
		s.mu.Unlock()

		removed += len(gone)
		if !more {
			return removed, nil
		}
	}
}

// takePurgeBatchLocked deletes up to s.batch purgeable tokens, revoked ones
// first, then expired ones in expiry order. Stale index entries count
// towards the batch. more reports whether the batch limit stopped the step.
func (s *MemoryStore) takePurgeBatchLocked(before time.Time, revokedOnly bool) (gone []models.Token, more bool) {
	steps := 0
	for hash := range s.revoked {
		if steps == s.batch {
			return gone, true
		}
		steps++
		t, ok := s.tokens[hash]
		if !ok || !t.Revoked {
			delete(s.revoked, hash)
			continue
		}
		gone = append(gone, *t)
		s.deleteLocked(hash)
	}
	if revokedOnly {
		return gone, false
	}

	for s.expiry.Len() > 0 && s.expiry[0].expiresAt.Before(before) {
		if steps == s.batch {
			return gone, true
		}
		steps++
		e := heap.Pop(&s.expiry).(expiryEntry)
		t, ok := s.tokens[e.hash]
		if !ok || !t.Purgeable(before, false) {
			continue
		}
		gone = append(gone, *t)
		s.deleteLocked(e.hash)
	}
	return gone, false
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]models.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Token, 0, len(s.byUser[userID]))
	for hash := range s.byUser[userID] {
		out = append(out, *s.tokens[hash])
	}
	sortByIssued(out)
	return out, nil
}

// Len returns the number of stored tokens.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

func (s *MemoryStore) Close() error { return nil }

func sortByIssued(ts []models.Token) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].IssuedAt.Equal(ts[j].IssuedAt) {
			return ts[i].Hash < ts[j].Hash
		}
		return ts[i].IssuedAt.Before(ts[j].IssuedAt)
	})
}
