package reports

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/hilife/servicereport-backend/internal/repo"
	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
)

var editableColumns = []string{
	"engineer_name", "engineer_phone",
	"client_name", "client_phone", "client_email", "client_address",
	"order_number", "task_description", "service_details", "service_date",
	"outstanding_issues", "status", "signature", "updated_by",
}

// Repository persists service reports and the pipeline outcome fields.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	NextSequence(ctx context.Context, day string) (int64, error)
	Create(ctx context.Context, report *models.ServiceReport) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceReport, error)
	FindByReportNumber(ctx context.Context, number string) (*models.ServiceReport, error)
	List(ctx context.Context, q listQuery) ([]models.ServiceReport, error)
	SaveEdits(ctx context.Context, report *models.ServiceReport) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	Claim(ctx context.Context, id, runID uuid.UUID, now, leaseCutoff time.Time) (bool, error)
	RecordDocument(ctx context.Context, id, runID uuid.UUID, url string, at time.Time) (bool, error)
	RecordDelivery(ctx context.Context, id, runID uuid.UUID, recipients []string, at time.Time) error
	RecordFailure(ctx context.Context, id, runID uuid.UUID, message string) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a reports repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// NextSequence bumps and returns the counter for day.
func (r *repository) NextSequence(ctx context.Context, day string) (int64, error) {
	var value int64
	err := r.DB(ctx).Raw(`
INSERT INTO report_sequences (day, last_value) VALUES (?, 1)
ON CONFLICT (day) DO UPDATE SET last_value = report_sequences.last_value + 1
RETURNING last_value`, day).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repository) Create(ctx context.Context, report *models.ServiceReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	return r.DB(ctx).Create(report).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceReport, error) {
	var report models.ServiceReport
	if err := r.DB(ctx).Where("id = ?", id).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repository) FindByReportNumber(ctx context.Context, number string) (*models.ServiceReport, error) {
	var report models.ServiceReport
	if err := r.DB(ctx).Where("report_number = ?", number).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// List returns reports newest first without the signature payload.
func (r *repository) List(ctx context.Context, q listQuery) ([]models.ServiceReport, error) {
	query := r.DB(ctx).Model(&models.ServiceReport{}).Omit("signature")

	if q.ownerID != nil {
		query = query.Where("user_id = ?", *q.ownerID)
	}
	if term := strings.ToLower(strings.TrimSpace(q.search)); term != "" {
		like := "%" + escapeLike(term) + "%"
		query = query.Where(
			"(LOWER(engineer_name) LIKE ? ESCAPE '\\' OR LOWER(client_name) LIKE ? ESCAPE '\\' OR LOWER(order_number) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(report_number, '')) LIKE ? ESCAPE '\\')",
			like, like, like, like,
		)
	}
	if q.cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", q.cursor.CreatedAt, q.cursor.CreatedAt, q.cursor.ID)
	}

	var rows []models.ServiceReport
	if err := query.Order("created_at DESC").Order("id DESC").Limit(q.limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SaveEdits(ctx context.Context, report *models.ServiceReport) error {
	return r.DB(ctx).Model(report).Select(editableColumns).Updates(report).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.DeleteByID(ctx, &models.ServiceReport{}, id)
}

// Claim takes the pipeline lease on a completed report that has no document
// yet. It fails when another run holds an unexpired lease.
func (r *repository) Claim(ctx context.Context, id, runID uuid.UUID, now, leaseCutoff time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.ServiceReport{}).
		Where("id = ? AND status = ? AND pdf_url IS NULL", id, enums.ReportStatusCompleted).
		Where("(pipeline_run_id IS NULL OR pipeline_started_at IS NULL OR pipeline_started_at < ?)", leaseCutoff).
		Updates(map[string]any{
			"pipeline_run_id":     runID,
			"pipeline_started_at": now,
		})
	return repo.Touched(res)
}

// RecordDocument stores the artifact URL if runID still owns the claim.
func (r *repository) RecordDocument(ctx context.Context, id, runID uuid.UUID, url string, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.ServiceReport{}).
		Where("id = ? AND pipeline_run_id = ? AND pdf_url IS NULL", id, runID).
		Updates(map[string]any{
			"pdf_url":          url,
			"pdf_generated":    true,
			"pdf_generated_at": at,
			"pdf_error":        gorm.Expr("NULL"),
		})
	return repo.Touched(res)
}

// RecordDelivery marks the email sent and releases the claim.
func (r *repository) RecordDelivery(ctx context.Context, id, runID uuid.UUID, recipients []string, at time.Time) error {
	return r.DB(ctx).Model(&models.ServiceReport{}).
		Where("id = ? AND pipeline_run_id = ?", id, runID).
		Updates(map[string]any{
			"email_sent":          true,
			"email_sent_at":       at,
			"email_recipients":    pq.StringArray(recipients),
			"pipeline_run_id":     gorm.Expr("NULL"),
			"pipeline_started_at": gorm.Expr("NULL"),
		}).Error
}

// RecordFailure stores the stage-prefixed error and releases the claim.
func (r *repository) RecordFailure(ctx context.Context, id, runID uuid.UUID, message string) error {
	return r.DB(ctx).Model(&models.ServiceReport{}).
		Where("id = ? AND pipeline_run_id = ?", id, runID).
		Updates(map[string]any{
			"pdf_error":           message,
			"pipeline_run_id":     gorm.Expr("NULL"),
			"pipeline_started_at": gorm.Expr("NULL"),
		}).Error
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
