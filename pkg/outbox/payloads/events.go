package payloads

import (
	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/pkg/enums"
)

// ReportSnapshot is the slice of a service report the completion guard needs.
type ReportSnapshot struct {
	Status enums.ReportStatus `json:"status"`
	PDFURL string             `json:"pdf_url,omitempty"`
}

// ReportChangedEvent carries before/after snapshots of a report write. Before
// is nil for report_created.
type ReportChangedEvent struct {
	ReportID     uuid.UUID       `json:"report_id"`
	ReportNumber string          `json:"report_number,omitempty"`
	Before       *ReportSnapshot `json:"before,omitempty"`
	After        ReportSnapshot  `json:"after"`
}
