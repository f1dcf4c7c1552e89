package reports

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupReportsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range []string{`
CREATE TABLE service_reports (
  id TEXT PRIMARY KEY,
  report_number TEXT UNIQUE,
  user_id TEXT NOT NULL,
  user_email TEXT NOT NULL,
  engineer_name TEXT NOT NULL,
  engineer_phone TEXT NOT NULL,
  client_name TEXT NOT NULL,
  client_phone TEXT NOT NULL DEFAULT '',
  client_email TEXT NOT NULL DEFAULT '',
  client_address TEXT NOT NULL DEFAULT '',
  order_number TEXT NOT NULL,
  task_description TEXT NOT NULL,
  service_details TEXT NOT NULL,
  service_date TEXT NOT NULL,
  outstanding_issues TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'In Progress',
  signature TEXT NOT NULL,
  submitted_at DATETIME NOT NULL,
  updated_by TEXT,
  pdf_url TEXT,
  pdf_generated INTEGER NOT NULL DEFAULT 0,
  pdf_generated_at DATETIME,
  pdf_error TEXT,
  email_sent INTEGER NOT NULL DEFAULT 0,
  email_sent_at DATETIME,
  email_recipients TEXT,
  pipeline_run_id TEXT,
  pipeline_started_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE report_sequences (
  day TEXT PRIMARY KEY,
  last_value INTEGER NOT NULL
);`, `
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
);`} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}
