package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/pkg/enums"
)

// User is the application role record. Its ID matches the AuthIdentity it
// belongs to, but the two rows are written independently.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name      string         `gorm:"column:name;not null;default:''"`
	Phone     string         `gorm:"column:phone;not null;default:''"`
	Role      enums.UserRole `gorm:"column:role;type:user_role_enum;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// AuthIdentity holds login credentials.
type AuthIdentity struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string     `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	DisplayName  string     `gorm:"column:display_name;not null;default:''"`
	Disabled     bool       `gorm:"column:disabled;not null;default:false"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// ReconciliationTask records a half-finished cross-store write that a
// background job must retry.
type ReconciliationTask struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind      enums.ReconciliationKind   `gorm:"column:kind;not null"`
	SubjectID uuid.UUID                  `gorm:"column:subject_id;type:uuid;not null"`
	Status    enums.ReconciliationStatus `gorm:"column:status;not null;default:'pending'"`
	Attempts  int                        `gorm:"column:attempts;not null;default:0"`
	LastError *string                    `gorm:"column:last_error"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
