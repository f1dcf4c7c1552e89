package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	"github.com/hilife/servicereport-backend/pkg/logger"
)

const (
	defaultReconcileLimit       = 100
	defaultReconcileMaxAttempts = 5
)

type reconciliationTasks interface {
	ListPending(ctx context.Context, limit int) ([]models.ReconciliationTask, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	RecordAttempt(ctx context.Context, task models.ReconciliationTask, cause string, maxAttempts int) (enums.ReconciliationStatus, error)
}

type taskExecutor interface {
	Execute(ctx context.Context, task models.ReconciliationTask) error
}

// ReconcileJobParams configures the user cleanup reconciliation job.
type ReconcileJobParams struct {
	Logger      *logger.Logger
	Tasks       reconciliationTasks
	Executor    taskExecutor
	Limit       int
	MaxAttempts int
}

// NewReconcileJob builds the job that retries half-finished user deletions.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tasks == nil {
		return nil, fmt.Errorf("reconciliation task repository required")
	}
	if params.Executor == nil {
		return nil, fmt.Errorf("task executor required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultReconcileMaxAttempts
	}
	return &reconcileJob{
		logg:        params.Logger,
		tasks:       params.Tasks,
		executor:    params.Executor,
		limit:       limit,
		maxAttempts: maxAttempts,
	}, nil
}

type reconcileJob struct {
	logg        *logger.Logger
	tasks       reconciliationTasks
	executor    taskExecutor
	limit       int
	maxAttempts int
}

func (j *reconcileJob) Name() string { return "user-reconcile" }

func (j *reconcileJob) Run(ctx context.Context) (Tally, error) {
	pending, err := j.tasks.ListPending(ctx, j.limit)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation tasks: %w", err)
	}

	var errs error
	done, retrying, failed := 0, 0, 0
	for _, task := range pending {
		taskCtx := j.logg.WithFields(ctx, map[string]any{
			"task_id":    task.ID.String(),
			"kind":       task.Kind,
			"subject_id": task.SubjectID.String(),
			"attempt":    task.Attempts + 1,
		})
		execErr := j.executor.Execute(taskCtx, task)
		if execErr == nil {
			if err := j.tasks.MarkDone(taskCtx, task.ID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("mark task %s done: %w", task.ID, err))
				continue
			}
			done++
			continue
		}

		status, err := j.tasks.RecordAttempt(taskCtx, task, execErr.Error(), j.maxAttempts)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record attempt for task %s: %w", task.ID, err))
			continue
		}
		if status == enums.ReconciliationFailed {
			failed++
			j.logg.Error(taskCtx, "reconciliation task exhausted its attempts", execErr)
			errs = multierr.Append(errs, fmt.Errorf("task %s failed: %w", task.ID, execErr))
			continue
		}
		retrying++
		j.logg.Warn(j.logg.WithField(taskCtx, "error", execErr.Error()), "reconciliation task will retry")
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(pending),
		"done":       done,
		"retrying":   retrying,
		"failed":     failed,
	}), "user reconcile loop complete")
	return Tally{"done": int64(done), "retrying": int64(retrying), "failed": int64(failed)}, errs
}
