// Package server wires configuration, storage, services and transports into
// the running auth service. It starts the HTTP and gRPC servers and the
// token sweeper, and shuts everything down on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/fieldauth/internal/cryptox"
	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/config"
	"github.com/dmitrijs2005/fieldauth/internal/server/httpserver"
	"github.com/dmitrijs2005/fieldauth/internal/server/metrics"
	"github.com/dmitrijs2005/fieldauth/internal/server/notify"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fieldauth/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/fieldauth/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    *repomanager.Repositories
	notifier notify.Notifier
	metrics  *metrics.Metrics

	sessions *services.SessionService
	revoker  *services.Revoker
	sweeper  *services.Sweeper
}

// NewApp validates c, opens storage and builds the services. The caller
// owns the App and must Close it unless Run is used.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	repos, err := repomanager.Open(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	var notifier notify.Notifier
	if c.AMQPURL != "" {
		notifier = notify.NewAMQPNotifier(c.AMQPURL, notify.DefaultQueue, logger)
	} else {
		logger.Warn(ctx, "no amqp url configured: notifications are only logged")
		notifier = notify.NewLogNotifier(logger)
	}

	m := metrics.New()
	issuer := services.NewIssuer(repos.Tokens, c.TTLs(), logger.With("module", "issuer"), m)
	verifier := services.NewVerifier(repos.Tokens, logger.With("module", "verifier"), m)
	revoker := services.NewRevoker(repos.Tokens, logger.With("module", "revoker"))
	sweeper := services.NewSweeper(repos.Tokens, c.SweepInterval, c.SweepGrace, logger.With("module", "sweeper"), m)

	sessions := services.NewSessionService(services.SessionDeps{
		Users:    repos.Users,
		Hasher:   cryptox.NewHasher(c.BcryptCost),
		Issuer:   issuer,
		Verifier: verifier,
		Revoker:  revoker,
		Notifier: notifier,
		Logger:   logger.With("module", "sessions"),
		Metrics:  m,
	})

	return &App{
		config:   c,
		logger:   logger,
		repos:    repos,
		notifier: notifier,
		metrics:  m,
		sessions: sessions,
		revoker:  revoker,
		sweeper:  sweeper,
	}, nil
}

func (app *App) Sessions() *services.SessionService { return app.sessions }
func (app *App) Revoker() *services.Revoker         { return app.revoker }
func (app *App) Sweeper() *services.Sweeper         { return app.sweeper }

// Close releases the notifier and the storage.
func (app *App) Close() error {
	return errors.Join(app.notifier.Close(), app.repos.Close())
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled, a signal arrives or one of the servers
// fails, then closes the App.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "backend", app.config.StoreBackend)

	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpserver.NewServer(app.config.HTTPAddr, app.sessions, app.metrics, app.logger).Run(gctx)
	})

	if app.config.GRPCAddr != "" {
		g.Go(func() error {
			return gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.sessions).Run(gctx)
		})
	}

	g.Go(func() error {
		return app.sweeper.Run(gctx)
	})

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "app stopped with error", "error", err)
	}
	if cerr := app.Close(); cerr != nil {
		app.logger.Error(ctx, "close failed", "error", cerr)
		err = errors.Join(err, cerr)
	}

	app.logger.Info(ctx, "App stopped")
	return err
}
