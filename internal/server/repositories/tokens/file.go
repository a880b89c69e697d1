package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/filex"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/timex"
)

// FileStore keeps tokens in memory and mirrors every mutation to a single
// JSON document on disk, rewritten atomically before the call returns. If the
// write fails the in-memory change is undone, so callers never observe a
// token that is not on disk.
type FileStore struct {
	path string
	mem  *MemoryStore
}

// fileEntry is the on-disk form of a token. The document maps token hash to
// entry. A bare number in place of an entry is read as an expiry in epoch
// milliseconds, the format of older token files; such tokens have no owner,
// never verify, and are only kept until the sweep removes them.
type fileEntry struct {
	ID          string           `json:"id,omitempty"`
	UserID      string           `json:"user_id"`
	Type        models.TokenType `json:"token_type"`
	IssuedAtMs  int64            `json:"issued_at_ms"`
	ExpiresAtMs int64            `json:"expires_at_ms"`
	Revoked     bool             `json:"revoked,omitempty"`
	OriginIP    string           `json:"origin_ip,omitempty"`
	UserAgent   string           `json:"user_agent,omitempty"`
}

// OpenFileStore loads path (creating its directory if needed). A missing
// file is an empty store.
func OpenFileStore(path string, batch int) (*FileStore, error) {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	s := &FileStore{path: path, mem: NewMemoryStore(batch)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if err := s.load(data); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) load(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for hash, msg := range raw {
		var e fileEntry
		if err := json.Unmarshal(msg, &e.ExpiresAtMs); err == nil {
			e.Type = models.TokenTypeSession
		} else if err := json.Unmarshal(msg, &e); err != nil {
			return fmt.Errorf("entry %q: %w", hash, err)
		}
		t := entryToToken(hash, e)
		if err := s.mem.insertLocked(&t); err != nil {
			return err
		}
	}
	return nil
}

func entryToToken(hash string, e fileEntry) models.Token {
	return models.Token{
		ID:        e.ID,
		Hash:      hash,
		UserID:    e.UserID,
		Type:      e.Type,
		IssuedAt:  timex.UnixMilli(e.IssuedAtMs),
		ExpiresAt: timex.UnixMilli(e.ExpiresAtMs),
		Revoked:   e.Revoked,
		OriginIP:  e.OriginIP,
		UserAgent: e.UserAgent,
	}
}

func tokenToEntry(t *models.Token) fileEntry {
	return fileEntry{
		ID:          t.ID,
		UserID:      t.UserID,
		Type:        t.Type,
		IssuedAtMs:  t.IssuedAt.UnixMilli(),
		ExpiresAtMs: t.ExpiresAt.UnixMilli(),
		Revoked:     t.Revoked,
		OriginIP:    t.OriginIP,
		UserAgent:   t.UserAgent,
	}
}

// persistLocked writes the whole document. Callers hold s.mem.mu.
func (s *FileStore) persistLocked() error {
	doc := make(map[string]fileEntry, len(s.mem.tokens))
	for hash, t := range s.mem.tokens {
		doc[hash] = tokenToEntry(t)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}
	if err := filex.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return common.Unavailable("write token file", err)
	}
	return nil
}

func (s *FileStore) Put(ctx context.Context, t *models.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *t
	cp.IssuedAt = cp.IssuedAt.Truncate(time.Millisecond)
	cp.ExpiresAt = cp.ExpiresAt.Truncate(time.Millisecond)

	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	if err := s.mem.insertLocked(&cp); err != nil {
		return err
	}
	if err := s.persistLocked(); err != nil {
		s.mem.deleteLocked(cp.Hash)
		return err
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, hash string) (models.Token, bool, error) {
	return s.mem.Get(ctx, hash)
}

func (s *FileStore) ListByUser(ctx context.Context, userID string) ([]models.Token, error) {
	return s.mem.ListByUser(ctx, userID)
}

func (s *FileStore) Revoke(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	t, ok := s.mem.tokens[hash]
	if !ok || t.Revoked {
		return false, nil
	}
	s.mem.markRevokedLocked(t)
	if err := s.persistLocked(); err != nil {
		s.mem.unmarkRevokedLocked(t)
		return false, err
	}
	return true, nil
}

func (s *FileStore) RevokeByUser(ctx context.Context, userID string) (int, error) {
	return s.revokeUser(ctx, userID, anyToken)
}

func (s *FileStore) RevokeByUserAndType(ctx context.Context, userID string, typ models.TokenType) (int, error) {
	return s.revokeUser(ctx, userID, ofType(typ))
}

func (s *FileStore) revokeUser(ctx context.Context, userID string, match func(*models.Token) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	changed := s.mem.revokeUserLocked(userID, match)
	if len(changed) == 0 {
		return 0, nil
	}
	if err := s.persistLocked(); err != nil {
		for _, t := range changed {
			s.mem.unmarkRevokedLocked(t)
		}
		return 0, err
	}
	return len(changed), nil
}

// Purge removes tokens batch by batch; every batch is one file rewrite.
func (s *FileStore) Purge(ctx context.Context, before time.Time, revokedOnly bool) (int, error) {
	removed := 0
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		n, more, err := s.purgeBatch(before, revokedOnly)
		removed += n
		if err != nil {
			return removed, err
		}
		if !more {
			return removed, nil
		}
	}
}

func (s *FileStore) purgeBatch(before time.Time, revokedOnly bool) (int, bool, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	gone, more := s.mem.takePurgeBatchLocked(before, revokedOnly)
	if len(gone) == 0 {
		return 0, more, nil
	}
	if err := s.persistLocked(); err != nil {
		for i := range gone {
			_ = s.mem.insertLocked(&gone[i])
		}
		return 0, false, err
	}
	return len(gone), more, nil
}

func (s *FileStore) Close() error { return nil }
