package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/fieldauth/internal/common"
	"github.com/dmitrijs2005/fieldauth/internal/netx"
	"github.com/dmitrijs2005/fieldauth/internal/server/models"
	"github.com/dmitrijs2005/fieldauth/internal/server/services"
	"github.com/labstack/echo/v4"
)

const maxUserAgentLen = 512

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenReq struct {
	Token string `json:"token"`
}

type createAdminReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type passwordResetReq struct {
	Username string `json:"username"`
}

type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type loginResp struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

type verifyResp struct {
	Valid bool             `json:"valid"`
	User  *models.Identity `json:"user,omitempty"`
}

type successResp struct {
	Success bool             `json:"success"`
	User    *models.Identity `json:"user,omitempty"`
}

func errorBody(msg string) echo.Map { return echo.Map{"error": msg} }

// tokenMeta captures the device the request came from.
func tokenMeta(c echo.Context) models.TokenMetadata {
	req := c.Request()
	return models.TokenMetadata{
		OriginIP:  netx.ClientIP(req.RemoteAddr, req.Header.Get(echo.HeaderXForwardedFor), req.Header.Get(echo.HeaderXRealIP)),
		UserAgent: netx.TruncateUserAgent(req.UserAgent(), maxUserAgentLen),
	}
}

// failure answers errors that are not part of an endpoint's normal outcomes.
func (s *Server) failure(c echo.Context, err error) error {
	ctx := c.Request().Context()
	if errors.Is(err, common.ErrStoreUnavailable) {
		s.logger.Error(ctx, "store unavailable", "path", c.Path(), "error", err)
		return c.JSON(http.StatusServiceUnavailable, errorBody("service unavailable"))
	}
	s.logger.Error(ctx, "request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
}

func (s *Server) login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}

	raw, ident, err := s.sessions.Login(c.Request().Context(), strings.TrimSpace(req.Username), req.Password, tokenMeta(c))
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, errorBody(common.PublicCredentialsMessage))
		}
		return s.failure(c, err)
	}
	return c.JSON(http.StatusOK, loginResp{Token: raw, User: ident})
}

func (s *Server) verifyToken(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}

	ident, err := s.sessions.VerifySession(c.Request().Context(), req.Token)
	if err != nil {
		if common.IsTokenValidityError(err) {
			return c.JSON(http.StatusOK, verifyResp{Valid: false})
		}
		return s.failure(c, err)
	}
	return c.JSON(http.StatusOK, verifyResp{Valid: true, User: &ident})
}

func (s *Server) logoutToken(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusOK, successResp{Success: true})
	}
	if err := s.sessions.Logout(c.Request().Context(), req.Token); err != nil {
		s.logger.Warn(c.Request().Context(), "logout interrupted", "error", err)
	}
	return c.JSON(http.StatusOK, successResp{Success: true})
}

func (s *Server) createAdmin(c echo.Context) error {
	var req createAdminReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}

	ident, err := s.sessions.BootstrapAdmin(c.Request().Context(), services.AdminFields{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"user": ident})
	case errors.Is(err, common.ErrAlreadyBootstrapped):
		return c.JSON(http.StatusBadRequest, errorBody("already bootstrapped"))
	case errors.Is(err, common.ErrWeakInput):
		return c.JSON(http.StatusBadRequest, errorBody("username and password are required"))
	case errors.Is(err, common.ErrUsernameTaken):
		return c.JSON(http.StatusConflict, errorBody("username taken"))
	}
	return s.failure(c, err)
}

func (s *Server) requestPasswordReset(c echo.Context) error {
	var req passwordResetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}
	if err := s.sessions.RequestPasswordReset(c.Request().Context(), strings.TrimSpace(req.Username), tokenMeta(c)); err != nil {
		return s.failure(c, err)
	}
	return c.JSON(http.StatusAccepted, successResp{Success: true})
}

func (s *Server) resetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}

	err := s.sessions.ResetPassword(c.Request().Context(), req.Token, req.NewPassword)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, successResp{Success: true})
	case common.IsTokenValidityError(err):
		return c.JSON(http.StatusBadRequest, errorBody(common.PublicTokenMessage))
	case errors.Is(err, common.ErrWeakInput):
		return c.JSON(http.StatusBadRequest, errorBody("new password is required"))
	}
	return s.failure(c, err)
}

func (s *Server) verifyEmail(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid body"))
	}

	ident, err := s.sessions.ConfirmEmail(c.Request().Context(), req.Token)
	if err != nil {
		if common.IsTokenValidityError(err) {
			return c.JSON(http.StatusBadRequest, errorBody(common.PublicTokenMessage))
		}
		return s.failure(c, err)
	}
	return c.JSON(http.StatusOK, successResp{Success: true, User: &ident})
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
