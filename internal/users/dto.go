package users

import (
	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/pkg/db/models"
)

// NotSet is shown for a missing name or role.
const NotSet = "Not set"

// UserSummary is one row of the admin user listing.
type UserSummary struct {
	UID   uuid.UUID `json:"uid"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

// CreateInput is the admin create-user request.
type CreateInput struct {
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// CreateResult echoes the created user.
type CreateResult struct {
	UID   uuid.UUID `json:"uid"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

// ResetPasswordInput is the admin password reset request.
type ResetPasswordInput struct {
	UID         string `json:"uid" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

func summarize(identity models.AuthIdentity, role *models.User) UserSummary {
	out := UserSummary{
		UID:   identity.ID,
		Email: identity.Email,
		Name:  NotSet,
		Role:  NotSet,
	}
	switch {
	case role != nil && role.Name != "":
		out.Name = role.Name
	case identity.DisplayName != "":
		out.Name = identity.DisplayName
	}
	if role != nil && role.Role != "" {
		out.Role = string(role.Role)
	}
	return out
}
