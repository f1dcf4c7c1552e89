package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hilife/servicereport-backend/pkg/enums"
)

// ServiceReport is one submitted field-service visit together with the
// outcome of its document pipeline.
type ServiceReport struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReportNumber *string   `gorm:"column:report_number;uniqueIndex"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	UserEmail    string    `gorm:"column:user_email;not null"`

	EngineerName  string `gorm:"column:engineer_name;not null"`
	EngineerPhone string `gorm:"column:engineer_phone;not null"`
	ClientName    string `gorm:"column:client_name;not null"`
	ClientPhone   string `gorm:"column:client_phone;not null;default:''"`
	ClientEmail   string `gorm:"column:client_email;not null;default:''"`
	ClientAddress string `gorm:"column:client_address;not null;default:''"`

	OrderNumber       string             `gorm:"column:order_number;not null"`
	TaskDescription   string             `gorm:"column:task_description;not null"`
	ServiceDetails    string             `gorm:"column:service_details;not null"`
	ServiceDate       string             `gorm:"column:service_date;not null"`
	OutstandingIssues string             `gorm:"column:outstanding_issues;not null;default:''"`
	Status            enums.ReportStatus `gorm:"column:status;type:report_status_enum;not null;default:'In Progress'"`
	Signature         string             `gorm:"column:signature;not null"`
	SubmittedAt       time.Time          `gorm:"column:submitted_at;not null"`
	UpdatedBy         *uuid.UUID         `gorm:"column:updated_by;type:uuid"`

	PDFURL          *string        `gorm:"column:pdf_url"`
	PDFGenerated    bool           `gorm:"column:pdf_generated;not null;default:false"`
	PDFGeneratedAt  *time.Time     `gorm:"column:pdf_generated_at"`
	PDFError        *string        `gorm:"column:pdf_error"`
	EmailSent       bool           `gorm:"column:email_sent;not null;default:false"`
	EmailSentAt     *time.Time     `gorm:"column:email_sent_at"`
	EmailRecipients pq.StringArray `gorm:"column:email_recipients;type:text[]"`

	PipelineRunID     *uuid.UUID `gorm:"column:pipeline_run_id;type:uuid"`
	PipelineStartedAt *time.Time `gorm:"column:pipeline_started_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ReportSequence holds the per-day counter behind sequential report numbers.
type ReportSequence struct {
	Day       string `gorm:"column:day;primaryKey"`
	LastValue int64  `gorm:"column:last_value;not null"`
}
