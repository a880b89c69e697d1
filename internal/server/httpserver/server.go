// Package httpserver exposes the session facade over HTTP/JSON using echo.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/metrics"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	shutdownTimeout = 10 * time.Second
	bodyLimit       = "64K"
)

// Sessions is the part of services.SessionService served over HTTP.
type Sessions interface {
	Login(ctx context.Context, username, password string, meta models.TokenMetadata) (string, models.Identity, error)
	VerifySession(ctx context.Context, raw string) (models.Identity, error)
	Logout(ctx context.Context, raw string) error
	BootstrapAdmin(ctx context.Context, f services.AdminFields) (models.Identity, error)
	RequestPasswordReset(ctx context.Context, username string, meta models.TokenMetadata) error
	ResetPassword(ctx context.Context, raw, newPassword string) error
	ConfirmEmail(ctx context.Context, raw string) (models.Identity, error)
}

type Server struct {
	address  string
	sessions Sessions
	logger   logging.Logger
	echo     *echo.Echo
}

func NewServer(address string, sessions Sessions, m *metrics.Metrics, l logging.Logger) *Server {
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		address:  address,
		sessions: sessions,
		logger:   l.With("module", "http_server"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(requestLogger(s.logger))

	e.POST("/login", s.login)
	e.POST("/verify-token", s.verifyToken)
	e.POST("/logout-token", s.logoutToken)
	e.POST("/create-admin", s.createAdmin)
	e.POST("/request-password-reset", s.requestPasswordReset)
	e.POST("/reset-password", s.resetPassword)
	e.POST("/verify-email", s.verifyEmail)
	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	s.echo = e
	return s
}

// Handler returns the routed echo instance.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}

func requestLogger(l logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			l.Info(req.Context(), "http request",
				"method", req.Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"took", time.Since(start),
			)
			return nil
		}
	}
}
