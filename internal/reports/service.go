package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	pkgerrors "github.com/hilife/servicereport-backend/pkg/errors"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/outbox"
	"github.com/hilife/servicereport-backend/pkg/outbox/payloads"
	pkgpagination "github.com/hilife/servicereport-backend/pkg/pagination"
	"github.com/hilife/servicereport-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ArtifactRemover deletes the stored document of a report.
type ArtifactRemover interface {
	Remove(ctx context.Context, canonicalID string) error
}

// Service exposes report CRUD for engineers and admins.
type Service interface {
	Create(ctx context.Context, actor Actor, input CreateInput) (*ReportDTO, error)
	Get(ctx context.Context, actor Actor, ref string) (*ReportDTO, error)
	List(ctx context.Context, actor Actor, params ListParams) (*ListResult, error)
	Update(ctx context.Context, actor Actor, ref string, input UpdateInput) (*ReportDTO, error)
	Delete(ctx context.Context, actor Actor, ref string) error
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Artifacts ArtifactRemover
	Location  *time.Location
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	artifacts ArtifactRemover
	loc       *time.Location
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		repo:      p.Repo,
		tx:        p.Tx,
		outbox:    p.Outbox,
		artifacts: p.Artifacts,
		loc:       p.Location,
		logg:      p.Logger,
		now:       p.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateInput) (*ReportDTO, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	status := enums.ReportStatusInProgress
	if strings.TrimSpace(input.Status) != "" {
		parsed, err := enums.ParseReportStatus(input.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		status = parsed
	}

	now := s.now().UTC()
	report := &models.ServiceReport{
		ID:                uuid.New(),
		UserID:            actor.UserID,
		UserEmail:         actor.Email,
		EngineerName:      strings.TrimSpace(input.EngineerName),
		EngineerPhone:     strings.TrimSpace(input.EngineerPhone),
		ClientName:        strings.TrimSpace(input.ClientName),
		ClientPhone:       strings.TrimSpace(input.ClientPhone),
		ClientEmail:       strings.TrimSpace(input.ClientEmail),
		ClientAddress:     strings.TrimSpace(input.ClientAddress),
		OrderNumber:       strings.TrimSpace(input.OrderNumber),
		TaskDescription:   strings.TrimSpace(input.TaskDescription),
		ServiceDetails:    strings.TrimSpace(input.ServiceDetails),
		ServiceDate:       strings.TrimSpace(input.ServiceDate),
		OutstandingIssues: strings.TrimSpace(input.OutstandingIssues),
		Status:            status,
		Signature:         strings.TrimSpace(input.Signature),
		SubmittedAt:       now,
		UpdatedBy:         &actor.UserID,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		day := DayKey(now, s.loc)
		seq, err := repo.NextSequence(ctx, day)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate report number")
		}
		number := FormatReportNumber(day, seq)
		report.ReportNumber = &number

		if err := repo.Create(ctx, report); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create report")
		}
		return s.emit(ctx, tx, actor, enums.EventReportCreated, nil, report)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithReportID(ctx, report.ID.String(), CanonicalID(*report)), "report created")
	}
	dto := toDTO(*report, true)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, actor Actor, ref string) (*ReportDTO, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	report, err := s.resolve(ctx, s.repo, ref)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, report) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "report belongs to another engineer")
	}
	dto := toDTO(*report, true)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor Actor, params ListParams) (*ListResult, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	query := listQuery{
		search: params.Query,
		limit:  pkgpagination.LimitWithBuffer(params.Limit),
	}
	if !actor.IsAdmin() {
		owner := actor.UserID
		query.ownerID = &owner
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reports")
	}

	rows, more := pkgpagination.Trim(rows, params.Limit)
	nextCursor := ""
	if more && len(rows) > 0 {
		last := rows[len(rows)-1]
		nextCursor = pkgpagination.EncodeCursor(pkgpagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	items := make([]ReportDTO, len(rows))
	for i, row := range rows {
		items[i] = toDTO(row, false)
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}

func (s *service) Update(ctx context.Context, actor Actor, ref string, input UpdateInput) (*ReportDTO, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	var updated *models.ServiceReport
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx.Clauses(clause.Locking{Strength: "UPDATE"}))
		report, err := s.resolve(ctx, repo, ref)
		if err != nil {
			return err
		}
		if !canAccess(actor, report) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "report belongs to another engineer")
		}

		before := snapshot(report)
		if err := applyUpdate(report, input); err != nil {
			return err
		}
		report.UpdatedBy = &actor.UserID

		repo = s.repo.WithTx(tx)
		if err := repo.SaveEdits(ctx, report); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update report")
		}
		updated = report
		return s.emit(ctx, tx, actor, enums.EventReportUpdated, &before, report)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithReportID(ctx, updated.ID.String(), CanonicalID(*updated))
		s.logg.Info(s.logg.WithField(logCtx, "status", updated.Status), "report updated")
	}
	dto := toDTO(*updated, true)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, actor Actor, ref string) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	report, err := s.resolve(ctx, s.repo, ref)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, report.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete report")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "report not found")
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithReportID(ctx, report.ID.String(), CanonicalID(*report))
		s.logg.Info(logCtx, "report deleted")
	}
	if s.artifacts != nil && report.PDFURL != nil {
		if err := s.artifacts.Remove(ctx, CanonicalID(*report)); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "report document not removed")
		}
	}
	return nil
}

func (s *service) resolve(ctx context.Context, repo Repository, ref string) (*models.ServiceReport, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report id required")
	}

	report, err := repo.FindByReportNumber(ctx, ref)
	if err == nil {
		return report, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load report")
	}

	id, parseErr := uuid.Parse(ref)
	if parseErr != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "report not found")
	}
	report, err = repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "report not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load report")
	}
	return report, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor Actor, eventType enums.OutboxEventType, before *payloads.ReportSnapshot, report *models.ServiceReport) error {
	number := ""
	if report.ReportNumber != nil {
		number = *report.ReportNumber
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateServiceReport,
		AggregateID:   report.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data: payloads.ReportChangedEvent{
			ReportID:     report.ID,
			ReportNumber: number,
			Before:       before,
			After:        snapshot(report),
		},
		OccurredAt: s.now().UTC(),
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit report event")
	}
	return nil
}

func snapshot(r *models.ServiceReport) payloads.ReportSnapshot {
	snap := payloads.ReportSnapshot{Status: r.Status}
	if r.PDFURL != nil {
		snap.PDFURL = *r.PDFURL
	}
	return snap
}

func canAccess(actor Actor, report *models.ServiceReport) bool {
	return actor.IsAdmin() || report.UserID == actor.UserID
}

func validateCreate(input CreateInput) error {
	details := map[string]string{}
	required := map[string]string{
		"engineerName":    input.EngineerName,
		"engineerPhone":   input.EngineerPhone,
		"clientName":      input.ClientName,
		"orderNumber":     input.OrderNumber,
		"taskDescription": input.TaskDescription,
		"serviceDetails":  input.ServiceDetails,
		"serviceDate":     input.ServiceDate,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			details[field] = "is required"
		}
	}
	checkOptional(details, input.EngineerPhone, input.ClientPhone, input.ServiceDate, input.Signature, true)
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

func checkOptional(details map[string]string, engineerPhone, clientPhone, serviceDate, signature string, signatureRequired bool) {
	if v := strings.TrimSpace(engineerPhone); v != "" && !types.ValidPhone(v) {
		details["engineerPhone"] = "must be a valid phone number"
	}
	if v := strings.TrimSpace(clientPhone); v != "" && !types.ValidPhone(v) {
		details["clientPhone"] = "must be a valid phone number"
	}
	if v := strings.TrimSpace(serviceDate); v != "" {
		if _, err := time.Parse("2006-01-02", v); err != nil {
			details["serviceDate"] = "must be YYYY-MM-DD"
		}
	}
	if signatureRequired || signature != "" {
		if _, err := types.ParseSignature(signature); err != nil {
			details["signature"] = err.Error()
		}
	}
}

func applyUpdate(r *models.ServiceReport, in UpdateInput) error {
	details := map[string]string{}
	set := func(dst *string, src *string, field string, required bool) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if required && v == "" {
			details[field] = "cannot be empty"
			return
		}
		*dst = v
	}
	set(&r.EngineerName, in.EngineerName, "engineerName", true)
	set(&r.EngineerPhone, in.EngineerPhone, "engineerPhone", true)
	set(&r.ClientName, in.ClientName, "clientName", true)
	set(&r.ClientPhone, in.ClientPhone, "clientPhone", false)
	set(&r.ClientEmail, in.ClientEmail, "clientEmail", false)
	set(&r.ClientAddress, in.ClientAddress, "clientAddress", false)
	set(&r.OrderNumber, in.OrderNumber, "orderNumber", true)
	set(&r.TaskDescription, in.TaskDescription, "taskDescription", true)
	set(&r.ServiceDetails, in.ServiceDetails, "serviceDetails", true)
	set(&r.ServiceDate, in.ServiceDate, "serviceDate", true)
	set(&r.OutstandingIssues, in.OutstandingIssues, "outstandingIssues", false)
	set(&r.Signature, in.Signature, "signature", true)

	if in.Status != nil {
		status, err := enums.ParseReportStatus(*in.Status)
		if err != nil {
			details["status"] = "must be one of In Progress, Completed, Incomplete"
		} else {
			r.Status = status
		}
	}

	sig := ""
	if in.Signature != nil {
		sig = r.Signature
	}
	checkOptional(details, r.EngineerPhone, r.ClientPhone, r.ServiceDate, sig, false)
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}
