package reports

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hilife/servicereport-backend/pkg/db"
	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	pkgerrors "github.com/hilife/servicereport-backend/pkg/errors"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/outbox"
	"github.com/hilife/servicereport-backend/pkg/outbox/payloads"
)

const testSignature = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type stubRemover struct {
	removed []string
	err     error
}

func (s *stubRemover) Remove(_ context.Context, id string) error {
	s.removed = append(s.removed, id)
	return s.err
}

type serviceFixture struct {
	db      *gorm.DB
	svc     Service
	remover *stubRemover
}

func newServiceFixture(t *testing.T, now time.Time) serviceFixture {
	t.Helper()
	conn := setupReportsTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	remover := &stubRemover{}
	loc, err := time.LoadLocation("Asia/Singapore")
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        db.NewWithConn(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Artifacts: remover,
		Location:  loc,
		Logger:    logg,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)
	return serviceFixture{db: conn, svc: svc, remover: remover}
}

func validCreateInput() CreateInput {
	return CreateInput{
		EngineerName:    "Tan Wei",
		EngineerPhone:   "+65 9123 4567",
		ClientName:      "Acme Pte Ltd",
		ClientEmail:     "it@acme.example",
		OrderNumber:     "WO-778",
		TaskDescription: "Replace switch",
		ServiceDetails:  "Swapped faulty unit",
		ServiceDate:     "2026-03-01",
		Signature:       testSignature,
	}
}

func loadEvents(t *testing.T, conn *gorm.DB) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, conn.Order("rowid").Find(&rows).Error)
	return rows
}

func decodeChange(t *testing.T, row models.OutboxEvent) payloads.ReportChangedEvent {
	t.Helper()
	var env outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	var change payloads.ReportChangedEvent
	require.NoError(t, json.Unmarshal(env.Data, &change))
	return change
}

func TestServiceCreateAssignsNumberAndEmitsEvent(t *testing.T) {
	// 23:30 UTC on 28 Feb is already 1 Mar in Singapore.
	now := time.Date(2026, 2, 28, 23, 30, 0, 0, time.UTC)
	f := newServiceFixture(t, now)
	actor := Actor{UserID: uuid.New(), Email: "tan@hilife.sg", Role: enums.UserRoleEngineer}

	first, err := f.svc.Create(context.Background(), actor, validCreateInput())
	require.NoError(t, err)
	second, err := f.svc.Create(context.Background(), actor, validCreateInput())
	require.NoError(t, err)

	assert.Equal(t, "26030100001", first.ReportID)
	assert.Equal(t, "26030100002", second.ReportID)
	assert.Equal(t, enums.ReportStatusInProgress, first.Status)
	assert.Equal(t, "tan@hilife.sg", first.UserEmail)

	events := loadEvents(t, f.db)
	require.Len(t, events, 2)
	assert.Equal(t, enums.EventReportCreated, events[0].EventType)
	change := decodeChange(t, events[0])
	assert.Nil(t, change.Before)
	assert.Equal(t, enums.ReportStatusInProgress, change.After.Status)
}

func TestServiceCreateValidates(t *testing.T) {
	f := newServiceFixture(t, time.Now())
	actor := Actor{UserID: uuid.New(), Role: enums.UserRoleEngineer}

	input := validCreateInput()
	input.ClientName = "  "
	input.EngineerPhone = "call me"
	input.Signature = "data:image/gif;base64,R0lGOD"
	_, err := f.svc.Create(context.Background(), actor, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var typed *pkgerrors.Error
	require.True(t, errors.As(err, &typed))
	details := typed.Details().(map[string]string)
	assert.Contains(t, details, "clientName")
	assert.Contains(t, details, "engineerPhone")
	assert.Contains(t, details, "signature")

	_, err = f.svc.Create(context.Background(), Actor{}, validCreateInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	assert.Empty(t, loadEvents(t, f.db))
}

func TestServiceUpdateEmitsBeforeAndAfter(t *testing.T) {
	f := newServiceFixture(t, time.Now())
	owner := Actor{UserID: uuid.New(), Role: enums.UserRoleEngineer}
	created, err := f.svc.Create(context.Background(), owner, validCreateInput())
	require.NoError(t, err)

	status := "completed"
	updated, err := f.svc.Update(context.Background(), owner, created.ReportID, UpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, enums.ReportStatusCompleted, updated.Status)

	events := loadEvents(t, f.db)
	require.Len(t, events, 2)
	assert.Equal(t, enums.EventReportUpdated, events[1].EventType)
	change := decodeChange(t, events[1])
	require.NotNil(t, change.Before)
	assert.Equal(t, enums.ReportStatusInProgress, change.Before.Status)
	assert.Equal(t, enums.ReportStatusCompleted, change.After.Status)
	assert.Equal(t, created.ReportID, change.ReportNumber)
}

func TestServiceUpdateRejectsOtherEngineer(t *testing.T) {
	f := newServiceFixture(t, time.Now())
	owner := Actor{UserID: uuid.New(), Role: enums.UserRoleEngineer}
	created, err := f.svc.Create(context.Background(), owner, validCreateInput())
	require.NoError(t, err)

	name := "Someone"
	other := Actor{UserID: uuid.New(), Role: enums.UserRoleEngineer}
	_, err = f.svc.Update(context.Background(), other, created.ReportID, UpdateInput{ClientName: &name})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	updated, err := f.svc.Update(context.Background(), admin, created.ID.String(), UpdateInput{ClientName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Someone", updated.ClientName)
}

func TestServiceUpdateInvalidStatus(t *testing.T) {
	f := newServiceFixture(t, time.Now())
	owner := Actor{UserID: uuid.New(), Role: enums.UserRoleEngineer}
	created, err := f.svc.Create(context.Background(), owner, validCreateInput())
	require.NoError(t, err)

	bad := "submitted"
	_, err = f.svc.Update(context.Background(), owner, created.ReportID, UpdateInput{Status: &bad})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Len(t, loadEvents(t, f.db), 1)
}

func TestServiceGetAndListRespectOwnership(t *testing.T) {
	f := newServiceFixture(t, time.Now())
	alice := Actor{UserID: uuid.New(), Role: enums.UserRoleEngineer}
	bob := Actor{UserID: uuid.New(), Role: enums.UserRoleEngineer}
	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	created, err := f.svc.Create(context.Background(), alice, validCreateInput())
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), bob, validCreateInput())
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), alice, created.ReportID)
	require.NoError(t, err)
	assert.Equal(t, testSignature, got.Signature)

	_, err = f.svc.Get(context.Background(), bob, created.ReportID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Get(context.Background(), admin, "99999999999")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	mine, err := f.svc.List(context.Background(), alice, ListParams{})
	require.NoError(t, err)
	assert.Len(t, mine.Items, 1)

	everyone, err := f.svc.List(context.Background(), admin, ListParams{})
	require.NoError(t, err)
	assert.Len(t, everyone.Items, 2)
	assert.Empty(t, everyone.Cursor)
}

func TestServiceDeleteIsAdminOnly(t *testing.T) {
	f := newServiceFixture(t, time.Now())
	owner := Actor{UserID: uuid.New(), Role: enums.UserRoleEngineer}
	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	created, err := f.svc.Create(context.Background(), owner, validCreateInput())
	require.NoError(t, err)

	err = f.svc.Delete(context.Background(), owner, created.ReportID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	url := "https://storage.googleapis.com/bucket/service_reports/" + created.ReportID + ".pdf"
	require.NoError(t, f.db.Model(&models.ServiceReport{}).Where("id = ?", created.ID).Update("pdf_url", url).Error)

	require.NoError(t, f.svc.Delete(context.Background(), admin, created.ReportID))
	assert.Equal(t, []string{created.ReportID}, f.remover.removed)

	err = f.svc.Delete(context.Background(), admin, created.ReportID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
