package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/hilife/servicereport-backend/pkg/auth"
	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	pkgerrors "github.com/hilife/servicereport-backend/pkg/errors"
	"github.com/hilife/servicereport-backend/pkg/security"
)

var testJWT = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "servicereport",
	ExpirationMinutes: 30,
	SessionTTLMinutes: 60,
}

func TestServiceLoginAdmin(t *testing.T) {
	password := "admin-secret"
	identity := &models.AuthIdentity{
		ID:           uuid.New(),
		Email:        "boss@hilife.sg",
		PasswordHash: mustHashPassword(t, password),
		DisplayName:  "Boss",
	}
	roles := stubRoleRepo{user: &models.User{ID: identity.ID, Name: "The Boss", Role: enums.UserRoleAdmin}}
	svc, sessions, identities := buildTestService(t, identity, roles)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: " Boss@Hilife.sg ", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.UserRoleAdmin || claims.UserID != identity.ID {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if sessions.started != claims.ID {
		t.Fatalf("session should be keyed by jti, got %q want %q", sessions.started, claims.ID)
	}
	if resp.User.Name != "The Boss" || resp.User.Role != "admin" {
		t.Fatalf("unexpected user %+v", resp.User)
	}
	if identities.lastLogin.IsZero() {
		t.Fatal("expected last login recorded")
	}
}

func TestServiceLoginDefaultsToEngineerWithoutRoleRecord(t *testing.T) {
	password := "engineer-secret"
	identity := &models.AuthIdentity{
		ID:           uuid.New(),
		Email:        "tan@hilife.sg",
		PasswordHash: mustHashPassword(t, password),
		DisplayName:  "Tan",
	}
	svc, _, _ := buildTestService(t, identity, stubRoleRepo{})

	resp, err := svc.Login(context.Background(), LoginRequest{Email: identity.Email, Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User.Role != "engineer" || resp.User.Name != "Tan" {
		t.Fatalf("unexpected user %+v", resp.User)
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	identity := &models.AuthIdentity{
		ID:           uuid.New(),
		Email:        "tan@hilife.sg",
		PasswordHash: mustHashPassword(t, "right-password"),
	}
	svc, sessions, _ := buildTestService(t, identity, stubRoleRepo{})

	for _, req := range []LoginRequest{
		{Email: identity.Email, Password: "wrong-password"},
		{Email: "nobody@hilife.sg", Password: "right-password"},
		{Email: "", Password: "right-password"},
	} {
		_, err := svc.Login(context.Background(), req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %+v, got %v", req, err)
		}
	}
	if sessions.started != "" {
		t.Fatal("no session should be started")
	}
}

func TestServiceLoginRejectsDisabledIdentity(t *testing.T) {
	identity := &models.AuthIdentity{
		ID:           uuid.New(),
		Email:        "gone@hilife.sg",
		PasswordHash: mustHashPassword(t, "password1"),
		Disabled:     true,
	}
	svc, _, _ := buildTestService(t, identity, stubRoleRepo{})

	_, err := svc.Login(context.Background(), LoginRequest{Email: identity.Email, Password: "password1"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestServiceLogout(t *testing.T) {
	svc, sessions, _ := buildTestService(t, nil, stubRoleRepo{})

	if err := svc.Logout(context.Background(), "jti-1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if sessions.revoked != "jti-1" {
		t.Fatalf("expected session revoked, got %q", sessions.revoked)
	}
	if err := svc.Logout(context.Background(), ""); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	sessions.err = errors.New("redis down")
	if err := svc.Logout(context.Background(), "jti-2"); !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal, got %v", err)
	}
}

func buildTestService(t *testing.T, identity *models.AuthIdentity, roles stubRoleRepo) (Service, *stubSessionManager, *stubIdentityRepo) {
	t.Helper()
	identities := &stubIdentityRepo{identity: identity}
	sessions := &stubSessionManager{}
	svc, err := NewService(ServiceParams{
		Identities:     identities,
		Roles:          roles,
		SessionManager: sessions,
		JWTConfig:      testJWT,
		Now:            func() time.Time { return time.Now() },
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, sessions, identities
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubIdentityRepo struct {
	identity  *models.AuthIdentity
	lastLogin time.Time
}

func (s *stubIdentityRepo) FindByEmail(_ context.Context, email string) (*models.AuthIdentity, error) {
	if s.identity == nil || s.identity.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.identity, nil
}

func (s *stubIdentityRepo) UpdateLastLogin(_ context.Context, _ uuid.UUID, at time.Time) error {
	s.lastLogin = at
	return nil
}

type stubRoleRepo struct {
	user *models.User
}

func (s stubRoleRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

type stubSessionManager struct {
	started string
	revoked string
	err     error
}

func (s *stubSessionManager) Start(_ context.Context, accessID string, _ uuid.UUID) error {
	s.started = accessID
	return s.err
}

func (s *stubSessionManager) Revoke(_ context.Context, accessID string) error {
	s.revoked = accessID
	return s.err
}
