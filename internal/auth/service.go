package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/hilife/servicereport-backend/pkg/auth"
	"github.com/hilife/servicereport-backend/pkg/auth/session"
	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/db"
	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	pkgerrors "github.com/hilife/servicereport-backend/pkg/errors"
	"github.com/hilife/servicereport-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, accessID string) error
}

type identityRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.AuthIdentity, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type roleRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type sessionManager interface {
	Start(ctx context.Context, accessID string, userID uuid.UUID) error
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Identities     identityRepository
	Roles          roleRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	Now            func() time.Time
}

type service struct {
	identities identityRepository
	roles      roleRepository
	session    sessionManager
	jwtCfg     config.JWTConfig
	now        func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Identities == nil {
		return nil, fmt.Errorf("identity repository is required")
	}
	if params.Roles == nil {
		return nil, fmt.Errorf("role repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		identities: params.Identities,
		roles:      params.Roles,
		session:    params.SessionManager,
		jwtCfg:     params.JWTConfig,
		now:        now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	identity, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	// Identities without a role record sign in as engineers.
	role := enums.UserRoleEngineer
	name := identity.DisplayName
	record, err := s.roles.FindByID(ctx, identity.ID)
	switch {
	case err == nil:
		role = record.Role
		if record.Name != "" {
			name = record.Name
		}
	case !db.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load role record")
	}

	now := s.now().UTC()
	if err := s.identities.UpdateLastLogin(ctx, identity.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}

	accessID := session.NewAccessID()
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: identity.ID,
		Email:  identity.Email,
		Role:   role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.session.Start(ctx, accessID, identity.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store session")
	}

	return &LoginResponse{
		AccessToken: accessToken,
		ExpiresAt:   now.Add(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute),
		User: SessionUser{
			UID:   identity.ID,
			Email: identity.Email,
			Name:  name,
			Role:  string(role),
		},
	}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session")
	}
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "revoke session")
	}
	return nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.AuthIdentity, error) {
	input := strings.TrimSpace(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	identity, err := s.identities.FindByEmail(ctx, strings.ToLower(input))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup identity")
	}

	valid, err := security.VerifyPassword(password, identity.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || identity.Disabled {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return identity, nil
}
