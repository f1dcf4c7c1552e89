package reports

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	pkgpagination "github.com/hilife/servicereport-backend/pkg/pagination"
)

func seedReport(t *testing.T, repo Repository, mutate func(r *models.ServiceReport)) *models.ServiceReport {
	t.Helper()
	report := &models.ServiceReport{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		UserEmail:       "eng@example.com",
		EngineerName:    "Tan Wei",
		EngineerPhone:   "+65 9123 4567",
		ClientName:      "Acme Pte Ltd",
		OrderNumber:     "WO-1",
		TaskDescription: "Install access point",
		ServiceDetails:  "Mounted and configured",
		ServiceDate:     "2026-03-01",
		Status:          enums.ReportStatusInProgress,
		Signature:       "data:image/png;base64,AAAA",
		SubmittedAt:     time.Now().UTC(),
	}
	if mutate != nil {
		mutate(report)
	}
	require.NoError(t, repo.Create(context.Background(), report))
	return report
}

func TestRepositoryNextSequenceIncrementsPerDay(t *testing.T) {
	db := setupReportsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first, err := repo.NextSequence(ctx, "260301")
	require.NoError(t, err)
	second, err := repo.NextSequence(ctx, "260301")
	require.NoError(t, err)
	other, err := repo.NextSequence(ctx, "260302")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, int64(1), other)
}

func TestRepositoryListScopesSearchesAndPages(t *testing.T) {
	db := setupReportsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	owner := uuid.New()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		i := i
		seedReport(t, repo, func(r *models.ServiceReport) {
			r.UserID = owner
			r.ClientName = "Acme"
			r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
	}
	seedReport(t, repo, func(r *models.ServiceReport) {
		r.ClientName = "Globex"
		r.CreatedAt = base.Add(time.Hour)
	})

	all, err := repo.List(ctx, listQuery{limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Globex", all[0].ClientName)
	assert.Empty(t, all[0].Signature)

	mine, err := repo.List(ctx, listQuery{ownerID: &owner, limit: 10})
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	found, err := repo.List(ctx, listQuery{search: "GLOB", limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)

	page, err := repo.List(ctx, listQuery{ownerID: &owner, limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	last := page[1]
	rest, err := repo.List(ctx, listQuery{
		ownerID: &owner,
		limit:   2,
		cursor:  &pkgpagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID},
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.True(t, rest[0].CreatedAt.Before(last.CreatedAt))
}

func TestRepositoryClaimIsExclusiveUntilLeaseExpires(t *testing.T) {
	db := setupReportsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	report := seedReport(t, repo, func(r *models.ServiceReport) { r.Status = enums.ReportStatusCompleted })
	now := time.Now().UTC()

	runA := uuid.New()
	ok, err := repo.Claim(ctx, report.ID, runA, now, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Claim(ctx, report.ID, uuid.New(), now, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "second claim inside lease must fail")

	runC := uuid.New()
	ok, err = repo.Claim(ctx, report.ID, runC, now.Add(time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")

	recorded, err := repo.RecordDocument(ctx, report.ID, runA, "https://storage.googleapis.com/b/x.pdf", now)
	require.NoError(t, err)
	assert.False(t, recorded, "stale run must not write the document")

	recorded, err = repo.RecordDocument(ctx, report.ID, runC, "https://storage.googleapis.com/b/x.pdf", now)
	require.NoError(t, err)
	assert.True(t, recorded)

	require.NoError(t, repo.RecordDelivery(ctx, report.ID, runC, []string{"ops@example.com", "c@example.com"}, now))

	stored, err := repo.FindByID(ctx, report.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PDFURL)
	assert.True(t, stored.PDFGenerated)
	assert.True(t, stored.EmailSent)
	assert.Equal(t, []string{"ops@example.com", "c@example.com"}, []string(stored.EmailRecipients))
	assert.Nil(t, stored.PipelineRunID)

	ok, err = repo.Claim(ctx, report.ID, uuid.New(), now.Add(2*time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "report with a document cannot be claimed")
}

func TestRepositoryClaimRequiresCompletedStatus(t *testing.T) {
	db := setupReportsTestDB(t)
	repo := NewRepository(db)
	report := seedReport(t, repo, nil)
	now := time.Now().UTC()

	ok, err := repo.Claim(context.Background(), report.ID, uuid.New(), now, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryRecordFailureReleasesClaim(t *testing.T) {
	db := setupReportsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	report := seedReport(t, repo, func(r *models.ServiceReport) { r.Status = enums.ReportStatusCompleted })
	now := time.Now().UTC()
	run := uuid.New()

	ok, err := repo.Claim(ctx, report.ID, run, now, now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.RecordFailure(ctx, report.ID, run, "generate: chromium crashed"))

	stored, err := repo.FindByID(ctx, report.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PDFError)
	assert.Equal(t, "generate: chromium crashed", *stored.PDFError)
	assert.False(t, stored.PDFGenerated)
	assert.Nil(t, stored.PipelineRunID)

	ok, err = repo.Claim(ctx, report.ID, uuid.New(), now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "released report can be claimed again")
}

func TestRepositoryDelete(t *testing.T) {
	db := setupReportsTestDB(t)
	repo := NewRepository(db)
	report := seedReport(t, repo, nil)

	deleted, err := repo.Delete(context.Background(), report.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(context.Background(), report.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
