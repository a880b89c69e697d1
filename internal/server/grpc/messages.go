package grpc

import "github.com/dmitrijs2005/fieldauth/internal/server/models"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

type VerifyTokenRequest struct {
	Token string `json:"token"`
}

type VerifyTokenResponse struct {
	Valid bool             `json:"valid"`
	User  *models.Identity `json:"user,omitempty"`
}

type LogoutTokenRequest struct {
	Token string `json:"token"`
}

type LogoutTokenResponse struct {
	Success bool `json:"success"`
}

type CreateAdminRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type CreateAdminResponse struct {
	User models.Identity `json:"user"`
}

type RevokeUserSessionsRequest struct {
	UserID string `json:"userId"`
}

type RevokeUserSessionsResponse struct {
	Revoked int `json:"revoked"`
}
