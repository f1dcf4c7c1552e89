package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hilife/servicereport-backend/internal/repo"
	"github.com/hilife/servicereport-backend/pkg/db/models"
)

// IdentityRepository persists login identities.
type IdentityRepository struct {
	repo.Base
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{Base: repo.NewBase(db)}
}

// Create inserts the identity, assigning an id when unset.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.AuthIdentity) error {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	return r.DB(ctx).Create(identity).Error
}

// FindByEmail retrieves the identity matching the provided email.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*models.AuthIdentity, error) {
	var identity models.AuthIdentity
	if err := r.DB(ctx).Where("email = ?", email).First(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *IdentityRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.AuthIdentity, error) {
	var identity models.AuthIdentity
	if err := r.DB(ctx).First(&identity, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

// List returns every identity ordered by email.
func (r *IdentityRepository) List(ctx context.Context) ([]models.AuthIdentity, error) {
	var identities []models.AuthIdentity
	if err := r.DB(ctx).Order("email ASC").Find(&identities).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

// UpdatePassword replaces the stored hash. It returns false when no identity matched.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	res := r.DB(ctx).
		Model(&models.AuthIdentity{}).
		Where("id = ?", id).
		UpdateColumn("password_hash", hash)
	return repo.Touched(res)
}

// UpdateLastLogin refreshes the identity's last_login_at timestamp.
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.AuthIdentity{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.DeleteByID(ctx, &models.AuthIdentity{}, id)
}

// RoleRepository persists the application role records.
type RoleRepository struct {
	repo.Base
}

func NewRoleRepository(db *gorm.DB) *RoleRepository {
	return &RoleRepository{Base: repo.NewBase(db)}
}

func (r *RoleRepository) Create(ctx context.Context, user *models.User) error {
	return r.DB(ctx).Create(user).Error
}

// FindByID loads a role record by its UUID.
func (r *RoleRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByIDs returns the role records found for ids keyed by id.
func (r *RoleRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.User
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *RoleRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.DeleteByID(ctx, &models.User{}, id)
}
