package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/dbx"
	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/config"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/users"
	"github.com/redis/go-redis/v9"
)

// Repositories is the storage opened for one configuration.
type Repositories struct {
	Users  users.Repository
	Tokens tokens.Store

	closers []func() error
}

// Close releases every resource opened by Open, in reverse order.
func (r *Repositories) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Repositories) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Seams for tests.
var (
	openDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
		return dbx.Open(ctx, "pgx", dsn, dbx.PoolOptions{})
	}
	newRedisClient = func(cfg *config.Config) redis.UniversalClient {
		return redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
)

// Open builds the user directory and token store selected by
// cfg.StoreBackend. On error everything opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (repos *Repositories, err error) {
	repos = &Repositories{}
	defer func() {
		if err != nil {
			_ = repos.Close()
			repos = nil
		}
	}()

	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn(ctx, "memory backend selected: tokens and users are lost on restart")
		repos.Users = users.NewMemoryRepository()
		repos.Tokens = tokens.NewMemoryStore(cfg.SweepBatch)

	case config.BackendFile:
		if repos.Users, err = users.OpenFileRepository(cfg.UserFile); err != nil {
			return nil, err
		}
		if repos.Tokens, err = tokens.OpenFileStore(cfg.TokenFile, cfg.SweepBatch); err != nil {
			return nil, err
		}

	case config.BackendPostgres:
		db, err := openPostgres(ctx, cfg, repos)
		if err != nil {
			return nil, err
		}
		m := NewPostgresRepositoryManager(cfg.StoreTimeout, cfg.SweepBatch)
		repos.Users = m.Users(db)
		repos.Tokens = m.Tokens(db)

	case config.BackendRedis:
		client := newRedisClient(cfg)
		repos.onClose(client.Close)
		if err := pingRedis(ctx, client, cfg); err != nil {
			return nil, err
		}
		repos.Tokens = tokens.NewRedisStore(client, tokens.RedisOptions{
			Retention: cfg.SweepGrace,
			Timeout:   cfg.StoreTimeout,
			Batch:     cfg.SweepBatch,
		})
		if cfg.DatabaseDSN == "" {
			logger.Warn(ctx, "redis backend without database DSN: users are kept in memory")
			repos.Users = users.NewMemoryRepository()
			break
		}
		db, err := openPostgres(ctx, cfg, repos)
		if err != nil {
			return nil, err
		}
		repos.Users = NewPostgresRepositoryManager(cfg.StoreTimeout, cfg.SweepBatch).Users(db)

	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", common.ErrConfig, cfg.StoreBackend)
	}

	logger.Info(ctx, "storage opened", "backend", cfg.StoreBackend)
	return repos, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, repos *Repositories) (*sql.DB, error) {
	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	repos.onClose(db.Close)

	m := NewPostgresRepositoryManager(cfg.StoreTimeout, cfg.SweepBatch)
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migrations: %w", err)
	}
	return db, nil
}

func pingRedis(ctx context.Context, client redis.UniversalClient, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return nil
}
