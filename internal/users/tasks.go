package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hilife/servicereport-backend/internal/repo"
	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
)

// TaskRepository persists reconciliation tasks left behind by partial user writes.
type TaskRepository struct {
	repo.Base
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{Base: repo.NewBase(db)}
}

// Enqueue records a pending task for subjectID.
func (r *TaskRepository) Enqueue(ctx context.Context, kind enums.ReconciliationKind, subjectID uuid.UUID, cause string) (*models.ReconciliationTask, error) {
	task := &models.ReconciliationTask{
		ID:        uuid.New(),
		Kind:      kind,
		SubjectID: subjectID,
		Status:    enums.ReconciliationPending,
	}
	if cause != "" {
		task.LastError = &cause
	}
	if err := r.DB(ctx).Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// ListPending returns the oldest pending tasks first.
func (r *TaskRepository) ListPending(ctx context.Context, limit int) ([]models.ReconciliationTask, error) {
	var tasks []models.ReconciliationTask
	q := r.DB(ctx).
		Where("status = ?", enums.ReconciliationPending).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkDone closes a task after its cleanup succeeded.
func (r *TaskRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.ReconciliationTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.ReconciliationDone,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": gorm.Expr("NULL"),
		}).Error
}

// RecordAttempt counts a failed retry; the task becomes failed once
// maxAttempts is reached.
func (r *TaskRepository) RecordAttempt(ctx context.Context, task models.ReconciliationTask, cause string, maxAttempts int) (enums.ReconciliationStatus, error) {
	status := enums.ReconciliationPending
	if maxAttempts > 0 && task.Attempts+1 >= maxAttempts {
		status = enums.ReconciliationFailed
	}
	err := r.DB(ctx).
		Model(&models.ReconciliationTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"status":     status,
			"attempts":   task.Attempts + 1,
			"last_error": cause,
		}).Error
	return status, err
}

// ErrUnknownTaskKind is returned for reconciliation tasks no executor handles.
var ErrUnknownTaskKind = errors.New("unknown reconciliation task kind")

// Executor applies reconciliation tasks against the user stores.
type Executor struct {
	identities deleter
	roles      deleter
}

type deleter interface {
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

func NewExecutor(identities, roles deleter) *Executor {
	return &Executor{identities: identities, roles: roles}
}

// Execute retries the cleanup a task describes. Already-gone rows count as done.
func (e *Executor) Execute(ctx context.Context, task models.ReconciliationTask) error {
	switch task.Kind {
	case enums.ReconcileDeleteIdentity:
		_, err := e.identities.Delete(ctx, task.SubjectID)
		return err
	case enums.ReconcileDeleteRole:
		_, err := e.roles.Delete(ctx, task.SubjectID)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTaskKind, task.Kind)
	}
}
