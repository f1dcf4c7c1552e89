package auth

import (
	"time"

	"github.com/google/uuid"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SessionUser describes the signed-in user.
type SessionUser struct {
	UID   uuid.UUID `json:"uid"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

// LoginResponse contains the access token and the user it was issued to.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        SessionUser `json:"user"`
}
