package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/cryptox"
	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/metrics"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/notify"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: testEpoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) last(t *testing.T) notify.Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no notification sent")
	return n.sent[len(n.sent)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// unavailableStore fails every call the way a backend outage does.
type unavailableStore struct{}

func unavailable(op string) error {
	return &common.StoreUnavailableError{Op: op, Err: context.DeadlineExceeded}
}

func (unavailableStore) Put(context.Context, *models.Token) error { return unavailable("put") }
func (unavailableStore) Get(context.Context, string) (models.Token, bool, error) {
	return models.Token{}, false, unavailable("get")
}
func (unavailableStore) Revoke(context.Context, string) (bool, error) {
	return false, unavailable("revoke")
}
func (unavailableStore) RevokeByUser(context.Context, string) (int, error) {
	return 0, unavailable("revoke by user")
}
func (unavailableStore) RevokeByUserAndType(context.Context, string, models.TokenType) (int, error) {
	return 0, unavailable("revoke by user and type")
}
func (unavailableStore) Purge(context.Context, time.Time, bool) (int, error) {
	return 0, unavailable("purge")
}
func (unavailableStore) ListByUser(context.Context, string) ([]models.Token, error) {
	return nil, unavailable("list")
}
func (unavailableStore) Close() error { return nil }

// collidingStore reports a duplicate for the first fails puts.
type collidingStore struct {
	tokens.Store
	mu    sync.Mutex
	fails int
	puts  int
}

func (s *collidingStore) Put(ctx context.Context, t *models.Token) error {
	s.mu.Lock()
	s.puts++
	fail := s.puts <= s.fails
	s.mu.Unlock()
	if fail {
		return common.ErrDuplicateToken
	}
	return s.Store.Put(ctx, t)
}

// unavailableUsers wraps a directory whose reads time out.
type unavailableUsers struct {
	users.Repository
}

func (unavailableUsers) GetByUsername(context.Context, string) (*models.User, error) {
	return nil, unavailable("get user")
}

type fixture struct {
	clock    *fakeClock
	store    *tokens.MemoryStore
	users    *users.MemoryRepository
	hasher   *cryptox.Hasher
	metrics  *metrics.Metrics
	notifier *recordingNotifier

	issuer   *Issuer
	verifier *Verifier
	revoker  *Revoker
	sweeper  *Sweeper
	svc      *SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    newFakeClock(),
		store:    tokens.NewMemoryStore(tokens.DefaultPurgeBatch),
		users:    users.NewMemoryRepository(),
		hasher:   cryptox.NewHasher(bcrypt.MinCost),
		metrics:  metrics.New(),
		notifier: &recordingNotifier{},
	}
	f.wire(f.store)
	return f
}

// wire rebuilds the services on top of store.
func (f *fixture) wire(store tokens.Store) {
	log := logging.Nop()
	f.issuer = NewIssuer(store, nil, log, f.metrics)
	f.issuer.now = f.clock.Now
	f.verifier = NewVerifier(store, log, f.metrics)
	f.verifier.now = f.clock.Now
	f.revoker = NewRevoker(store, log)
	f.sweeper = NewSweeper(store, time.Minute, time.Hour, log, f.metrics)
	f.sweeper.now = f.clock.Now
	f.svc = NewSessionService(SessionDeps{
		Users:    f.users,
		Hasher:   f.hasher,
		Issuer:   f.issuer,
		Verifier: f.verifier,
		Revoker:  f.revoker,
		Notifier: f.notifier,
		Logger:   log,
		Metrics:  f.metrics,
	})
}

func (f *fixture) createUser(t *testing.T, username, password, role string) *models.User {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	u, err := f.users.Create(context.Background(), &models.User{
		Username:      username,
		Email:         username + "@example.com",
		Role:          role,
		PasswordHash:  hash,
		HashAlgorithm: cryptox.FormatBcrypt.String(),
	})
	require.NoError(t, err)
	return u
}
