// Package completion turns a report reaching Completed into a stored PDF and
// a delivery email.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/internal/notify"
	"github.com/hilife/servicereport-backend/internal/reportrender"
	"github.com/hilife/servicereport-backend/internal/reports"
	"github.com/hilife/servicereport-backend/pkg/db"
	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/metrics"
	"github.com/hilife/servicereport-backend/pkg/outbox/payloads"
)

const (
	StageRender   = "render"
	StageGenerate = "generate"
	StageUpload   = "upload"
	StageRecord   = "record"
	StageNotify   = "notify"
	// StageDeliveryRecord fails after the email went out.
	StageDeliveryRecord = "delivery_record"
)

const (
	defaultTimeout  = 540 * time.Second
	defaultClaimTTL = 10 * time.Minute
)

// ReportChange is one observed write to a report.
type ReportChange struct {
	Kind     enums.OutboxEventType
	ReportID uuid.UUID
	Before   *payloads.ReportSnapshot
	After    payloads.ReportSnapshot
}

// ChangeFromEvent builds a ReportChange from a decoded outbox payload.
func ChangeFromEvent(kind enums.OutboxEventType, event *payloads.ReportChangedEvent) ReportChange {
	return ReportChange{
		Kind:     kind,
		ReportID: event.ReportID,
		Before:   event.Before,
		After:    event.After,
	}
}

// ShouldRun reports whether the change moved a report into Completed without
// a document yet.
func ShouldRun(change ReportChange) bool {
	switch change.Kind {
	case enums.EventReportCreated:
		return change.After.Status == enums.ReportStatusCompleted
	case enums.EventReportUpdated:
		if change.Before == nil {
			return false
		}
		return change.Before.Status != enums.ReportStatusCompleted &&
			change.After.Status == enums.ReportStatusCompleted &&
			change.After.PDFURL == ""
	default:
		return false
	}
}

// CanonicalReportID is the id used for the document name, the email and logs.
func CanonicalReportID(report models.ServiceReport) string {
	return reports.CanonicalID(report)
}

type reportStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceReport, error)
	Claim(ctx context.Context, id, runID uuid.UUID, now, leaseCutoff time.Time) (bool, error)
	RecordDocument(ctx context.Context, id, runID uuid.UUID, url string, at time.Time) (bool, error)
	RecordDelivery(ctx context.Context, id, runID uuid.UUID, recipients []string, at time.Time) error
	RecordFailure(ctx context.Context, id, runID uuid.UUID, message string) error
}

type renderer interface {
	Render(view reportrender.View) ([]byte, error)
}

type documentGenerator interface {
	Generate(ctx context.Context, html []byte) ([]byte, error)
}

type artifactSaver interface {
	Save(ctx context.Context, reportID string, pdf []byte) (string, error)
}

type reportNotifier interface {
	Notify(ctx context.Context, report notify.Report) ([]string, error)
}

type TriggerParams struct {
	Reports   reportStore
	Renderer  renderer
	Generator documentGenerator
	Artifacts artifactSaver
	Notifier  reportNotifier
	Company   reportrender.Company
	Location  *time.Location
	Timeout   time.Duration
	ClaimTTL  time.Duration
	Metrics   *metrics.PipelineMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Trigger runs the document pipeline for one report change.
type Trigger struct {
	reports   reportStore
	renderer  renderer
	generator documentGenerator
	artifacts artifactSaver
	notifier  reportNotifier
	company   reportrender.Company
	loc       *time.Location
	timeout   time.Duration
	claimTTL  time.Duration
	metrics   *metrics.PipelineMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewTrigger(p TriggerParams) (*Trigger, error) {
	switch {
	case p.Reports == nil:
		return nil, errors.New("reports repository required")
	case p.Renderer == nil:
		return nil, errors.New("renderer required")
	case p.Generator == nil:
		return nil, errors.New("document generator required")
	case p.Artifacts == nil:
		return nil, errors.New("artifact store required")
	case p.Notifier == nil:
		return nil, errors.New("notifier required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	t := &Trigger{
		reports:   p.Reports,
		renderer:  p.Renderer,
		generator: p.Generator,
		artifacts: p.Artifacts,
		notifier:  p.Notifier,
		company:   p.Company,
		loc:       p.Location,
		timeout:   p.Timeout,
		claimTTL:  p.ClaimTTL,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Now,
	}
	if t.loc == nil {
		t.loc = time.UTC
	}
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	if t.claimTTL <= 0 {
		t.claimTTL = defaultClaimTTL
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t, nil
}

// Handle runs the pipeline when the change qualifies. Pipeline failures are
// persisted on the report and never returned; an error means the report
// could not be loaded.
func (t *Trigger) Handle(ctx context.Context, change ReportChange) error {
	base := t.logg.WithField(ctx, "event_type", change.Kind)
	ctx = t.logg.WithField(base, "report_id", change.ReportID.String())
	if !ShouldRun(change) {
		t.logg.Debug(ctx, "report change does not trigger pipeline")
		t.metrics.IncRun(metrics.OutcomeSkipped)
		return nil
	}

	report, err := t.reports.FindByID(ctx, change.ReportID)
	if err != nil {
		if db.IsNotFound(err) {
			t.logg.Warn(ctx, "report no longer exists")
			t.metrics.IncRun(metrics.OutcomeSkipped)
			return nil
		}
		return fmt.Errorf("load report %s: %w", change.ReportID, err)
	}

	canonicalID := CanonicalReportID(*report)
	ctx = t.logg.WithReportID(base, report.ID.String(), canonicalID)

	runID := uuid.New()
	now := t.now()
	claimed, err := t.reports.Claim(ctx, report.ID, runID, now, now.Add(-t.claimTTL))
	if err != nil {
		return fmt.Errorf("claim report %s: %w", report.ID, err)
	}
	if !claimed {
		t.logg.Info(ctx, "report already claimed or documented")
		t.metrics.IncRun(metrics.OutcomeSkipped)
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	runCtx = t.logg.WithField(runCtx, "pipeline_run_id", runID.String())

	stage, err := t.run(runCtx, *report, canonicalID, runID)
	if err != nil {
		t.fail(ctx, report.ID, runID, stage, err)
		return nil
	}
	t.metrics.IncRun(metrics.OutcomeDelivered)
	t.logg.Info(runCtx, "service report delivered")
	return nil
}

func (t *Trigger) run(ctx context.Context, report models.ServiceReport, canonicalID string, runID uuid.UUID) (string, error) {
	view := reportrender.NewView(report, canonicalID, t.company, t.loc)

	var html []byte
	if err := t.stage(StageRender, func() (err error) {
		html, err = t.renderer.Render(view)
		return err
	}); err != nil {
		return StageRender, err
	}

	var pdf []byte
	if err := t.stage(StageGenerate, func() (err error) {
		pdf, err = t.generator.Generate(ctx, html)
		return err
	}); err != nil {
		return StageGenerate, err
	}

	var url string
	if err := t.stage(StageUpload, func() (err error) {
		url, err = t.artifacts.Save(ctx, canonicalID, pdf)
		return err
	}); err != nil {
		return StageUpload, err
	}

	if err := t.stage(StageRecord, func() error {
		ok, err := t.reports.RecordDocument(ctx, report.ID, runID, url, t.now())
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("pipeline claim lost before document was recorded")
		}
		return nil
	}); err != nil {
		return StageRecord, err
	}
	t.logg.Info(t.logg.WithField(ctx, "pdf_url", url), "service report document stored")

	var recipients []string
	if err := t.stage(StageNotify, func() (err error) {
		recipients, err = t.notifier.Notify(ctx, notify.Report{
			ReportID:     canonicalID,
			ClientName:   report.ClientName,
			ClientEmail:  report.ClientEmail,
			EngineerName: report.EngineerName,
			ServiceDate:  view.ServiceDate,
			Status:       string(report.Status),
			URL:          url,
			PDF:          pdf,
		})
		return err
	}); err != nil {
		return StageNotify, err
	}

	if err := t.stage(StageDeliveryRecord, func() error {
		return t.reports.RecordDelivery(ctx, report.ID, runID, recipients, t.now())
	}); err != nil {
		return StageDeliveryRecord, err
	}
	return "", nil
}

func (t *Trigger) stage(name string, fn func() error) error {
	started := time.Now()
	err := fn()
	t.metrics.ObserveStage(name, time.Since(started))
	if err != nil {
		t.metrics.IncStageFailure(name)
	}
	return err
}

func (t *Trigger) fail(ctx context.Context, reportID, runID uuid.UUID, stage string, cause error) {
	ctx = t.logg.WithField(ctx, "stage", stage)
	t.logg.Error(ctx, "service report pipeline failed", cause)
	t.metrics.IncRun(metrics.OutcomeFailed)

	// The run context may already be past its deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	message := fmt.Sprintf("%s: %s", stage, cause.Error())
	if err := t.reports.RecordFailure(writeCtx, reportID, runID, message); err != nil {
		t.logg.Error(ctx, "failed to record pipeline failure", err)
	}
}
