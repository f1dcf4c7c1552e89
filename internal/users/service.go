package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/db"
	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	pkgerrors "github.com/hilife/servicereport-backend/pkg/errors"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/security"
)

type identityStore interface {
	Create(ctx context.Context, identity *models.AuthIdentity) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.AuthIdentity, error)
	FindByEmail(ctx context.Context, email string) (*models.AuthIdentity, error)
	List(ctx context.Context) ([]models.AuthIdentity, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type roleStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type taskQueue interface {
	Enqueue(ctx context.Context, kind enums.ReconciliationKind, subjectID uuid.UUID, cause string) (*models.ReconciliationTask, error)
}

// Service implements the admin user callables.
type Service interface {
	List(ctx context.Context, callerID uuid.UUID) ([]UserSummary, error)
	Create(ctx context.Context, callerID uuid.UUID, input CreateInput) (*CreateResult, error)
	ResetPassword(ctx context.Context, callerID uuid.UUID, input ResetPasswordInput) error
	Delete(ctx context.Context, callerID uuid.UUID, uid string) error
}

type ServiceParams struct {
	Identities identityStore
	Roles      roleStore
	Tasks      taskQueue
	Password   config.PasswordConfig
	Logger     *logger.Logger
	// Hash overrides security.HashPassword.
	Hash func(password string) (string, error)
	// CompensationBackoff bounds the retries of a compensating identity delete.
	CompensationBackoff retry.Backoff
}

type service struct {
	identities identityStore
	roles      roleStore
	tasks      taskQueue
	minLength  int
	hash       func(string) (string, error)
	backoff    func() retry.Backoff
	logg       *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Identities == nil {
		return nil, fmt.Errorf("identity repository required")
	}
	if params.Roles == nil {
		return nil, fmt.Errorf("role repository required")
	}
	if params.Tasks == nil {
		return nil, fmt.Errorf("reconciliation task repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	hash := params.Hash
	if hash == nil {
		cfg := params.Password
		hash = func(password string) (string, error) {
			return security.HashPassword(password, cfg)
		}
	}
	backoff := func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewExponential(100*time.Millisecond))
	}
	if params.CompensationBackoff != nil {
		backoff = func() retry.Backoff { return params.CompensationBackoff }
	}
	minLength := params.Password.MinLength
	if minLength <= 0 {
		minLength = 6
	}
	return &service{
		identities: params.Identities,
		roles:      params.Roles,
		tasks:      params.Tasks,
		minLength:  minLength,
		hash:       hash,
		backoff:    backoff,
		logg:       params.Logger,
	}, nil
}

// requireAdmin reads the caller's role record. Nothing else happens for
// callers that are not admins.
func (s *service) requireAdmin(ctx context.Context, callerID uuid.UUID, action string) error {
	if callerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	role, err := s.roles.FindByID(ctx, callerID)
	if err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("only administrators can %s", action))
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load caller role")
	}
	if role.Role != enums.UserRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("only administrators can %s", action))
	}
	return nil
}

func (s *service) List(ctx context.Context, callerID uuid.UUID) ([]UserSummary, error) {
	if err := s.requireAdmin(ctx, callerID, "list users"); err != nil {
		return nil, err
	}
	identities, err := s.identities.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list identities")
	}
	ids := make([]uuid.UUID, 0, len(identities))
	for _, identity := range identities {
		ids = append(ids, identity.ID)
	}
	roles, err := s.roles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list role records")
	}

	out := make([]UserSummary, 0, len(identities))
	for _, identity := range identities {
		var role *models.User
		if r, ok := roles[identity.ID]; ok {
			role = &r
		}
		out = append(out, summarize(identity, role))
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, callerID uuid.UUID, input CreateInput) (*CreateResult, error) {
	if err := s.requireAdmin(ctx, callerID, "create users"); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" || email == "" || input.Password == "" || strings.TrimSpace(input.Role) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name, email, password, and role are required")
	}
	role, err := enums.ParseUserRole(input.Role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role").
			WithDetails(map[string]string{"role": "must be engineer or admin"})
	}
	if err := security.CheckPasswordLength(input.Password, s.minLength); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	if _, err := s.identities.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already in use")
	} else if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check email")
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	identity := &models.AuthIdentity{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  name,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if db.IsUniqueViolation(err, "auth_identities_email_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create identity")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"uid":  identity.ID.String(),
		"role": role,
	})
	record := &models.User{
		ID:    identity.ID,
		Name:  name,
		Phone: strings.TrimSpace(input.Phone),
		Role:  role,
	}
	if err := s.roles.Create(ctx, record); err != nil {
		s.logg.Error(logCtx, "failed to create role record; removing identity", err)
		s.compensateIdentity(logCtx, identity.ID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create role record")
	}

	s.logg.Info(logCtx, "user created")
	return &CreateResult{
		UID:   identity.ID,
		Email: identity.Email,
		Name:  name,
		Role:  string(role),
	}, nil
}

// compensateIdentity removes an identity whose role record could not be
// written and queues a task when that also fails.
func (s *service) compensateIdentity(ctx context.Context, id uuid.UUID) {
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		if _, err := s.identities.Delete(ctx, id); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return
	}
	s.logg.Error(ctx, "compensating identity delete failed", err)
	s.enqueue(ctx, enums.ReconcileDeleteIdentity, id, err)
}

func (s *service) enqueue(ctx context.Context, kind enums.ReconciliationKind, id uuid.UUID, cause error) {
	if _, err := s.tasks.Enqueue(context.WithoutCancel(ctx), kind, id, cause.Error()); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "kind", kind), "failed to enqueue reconciliation task", err)
	}
}

func (s *service) ResetPassword(ctx context.Context, callerID uuid.UUID, input ResetPasswordInput) error {
	if err := s.requireAdmin(ctx, callerID, "reset user passwords"); err != nil {
		return err
	}
	if strings.TrimSpace(input.UID) == "" || input.NewPassword == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "uid and new password are required")
	}
	uid, err := uuid.Parse(strings.TrimSpace(input.UID))
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "uid is not a valid id")
	}
	if err := security.CheckPasswordLength(input.NewPassword, s.minLength); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	hash, err := s.hash(input.NewPassword)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	ok, err := s.identities.UpdatePassword(ctx, uid, hash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to reset user password")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	s.logg.Info(s.logg.WithField(ctx, "uid", uid.String()), "user password reset")
	return nil
}

// Delete removes the role record and then the identity. An identity that
// cannot be removed is handed to the reconciliation job.
func (s *service) Delete(ctx context.Context, callerID uuid.UUID, rawUID string) error {
	if err := s.requireAdmin(ctx, callerID, "delete users"); err != nil {
		return err
	}
	if strings.TrimSpace(rawUID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "uid is required")
	}
	uid, err := uuid.Parse(strings.TrimSpace(rawUID))
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "uid is not a valid id")
	}

	if _, err := s.identities.FindByID(ctx, uid); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity")
	}

	logCtx := s.logg.WithField(ctx, "uid", uid.String())
	if _, err := s.roles.Delete(ctx, uid); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete user")
	}
	if _, err := s.identities.Delete(ctx, uid); err != nil {
		s.logg.Error(logCtx, "identity delete failed after role record removal", err)
		s.enqueue(logCtx, enums.ReconcileDeleteIdentity, uid, err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete user")
	}
	s.logg.Info(logCtx, "user deleted")
	return nil
}
