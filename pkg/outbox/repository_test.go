package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/outbox/payloads"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`).Error)
	return db
}

func TestServiceEmitWritesEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))

	reportID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: string(enums.UserRoleEngineer)}
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventReportCreated,
			AggregateType: enums.AggregateServiceReport,
			AggregateID:   reportID,
			Actor:         actor,
			Data: payloads.ReportChangedEvent{
				ReportID: reportID,
				After:    payloads.ReportSnapshot{Status: enums.ReportStatusCompleted},
			},
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, reportID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, CurrentVersion, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	require.Equal(t, actor.UserID, envelope.Actor.UserID)

	var data payloads.ReportChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, enums.ReportStatusCompleted, data.After.Status)
}

func TestServiceEmitRejectsUnknownEventType(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.OutboxEventType("report_archived"),
		AggregateType: enums.AggregateServiceReport,
		AggregateID:   uuid.New(),
	})
	require.Error(t, err)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestRepositoryAttemptLifecycle(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	failing := newEvent(time.Now().UTC())
	parked := newEvent(time.Now().UTC())
	require.NoError(t, repo.Insert(db, failing))
	require.NoError(t, repo.Insert(db, parked))

	require.NoError(t, repo.MarkFailedTx(db, failing.ID, errors.New("transient")))
	require.NoError(t, repo.MarkTerminalTx(db, parked.ID, errors.New("bad payload"), 3))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, failing.ID, rows[0].ID)
	require.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	require.Equal(t, "transient", *rows[0].LastError)

	require.NoError(t, repo.MarkPublishedTx(db, failing.ID))
	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	published := newEvent(old)
	pending := newEvent(old)
	recent := newEvent(time.Now().UTC())
	for _, ev := range []models.OutboxEvent{published, pending, recent} {
		require.NoError(t, repo.Insert(db, ev))
	}
	require.NoError(t, repo.MarkPublishedTx(db, published.ID))
	require.NoError(t, repo.MarkPublishedTx(db, recent.ID))

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	deleted, err := repo.DeletePublishedBefore(context.Background(), db, cutoff, 5)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	require.Equal(t, int64(2), remaining)
}

func newEvent(createdAt time.Time) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventReportUpdated,
		AggregateType: enums.AggregateServiceReport,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":{}}`),
		CreatedAt:     createdAt,
	}
}
