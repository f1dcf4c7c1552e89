package reports

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	pkgpagination "github.com/hilife/servicereport-backend/pkg/pagination"
)

// Actor is the authenticated caller of a report operation.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// CreateInput carries the fields an engineer submits from the report form.
type CreateInput struct {
	EngineerName      string `json:"engineerName" validate:"required,max=200"`
	EngineerPhone     string `json:"engineerPhone" validate:"required,phone"`
	ClientName        string `json:"clientName" validate:"required,max=200"`
	ClientPhone       string `json:"clientPhone" validate:"omitempty,phone"`
	ClientEmail       string `json:"clientEmail" validate:"omitempty,email"`
	ClientAddress     string `json:"clientAddress" validate:"max=500"`
	OrderNumber       string `json:"orderNumber" validate:"required,max=100"`
	TaskDescription   string `json:"taskDescription" validate:"required"`
	ServiceDetails    string `json:"serviceDetails" validate:"required"`
	ServiceDate       string `json:"serviceDate" validate:"required,datetime=2006-01-02"`
	OutstandingIssues string `json:"outstandingIssues"`
	Status            string `json:"status" validate:"omitempty,report_status"`
	Signature         string `json:"signature" validate:"required,signature"`
}

// UpdateInput is a partial edit; nil fields are left untouched.
type UpdateInput struct {
	EngineerName      *string `json:"engineerName" validate:"omitempty,min=1,max=200"`
	EngineerPhone     *string `json:"engineerPhone" validate:"omitempty,phone"`
	ClientName        *string `json:"clientName" validate:"omitempty,min=1,max=200"`
	ClientPhone       *string `json:"clientPhone" validate:"omitempty,phone"`
	ClientEmail       *string `json:"clientEmail" validate:"omitempty,email"`
	ClientAddress     *string `json:"clientAddress" validate:"omitempty,max=500"`
	OrderNumber       *string `json:"orderNumber" validate:"omitempty,min=1,max=100"`
	TaskDescription   *string `json:"taskDescription" validate:"omitempty,min=1"`
	ServiceDetails    *string `json:"serviceDetails" validate:"omitempty,min=1"`
	ServiceDate       *string `json:"serviceDate" validate:"omitempty,datetime=2006-01-02"`
	OutstandingIssues *string `json:"outstandingIssues"`
	Status            *string `json:"status" validate:"omitempty,report_status"`
	Signature         *string `json:"signature" validate:"omitempty,signature"`
}

// ListParams filters the history listing.
type ListParams struct {
	Query string
	pkgpagination.Params
}

type ListResult struct {
	Items  []ReportDTO `json:"items"`
	Cursor string      `json:"cursor"`
}

type listQuery struct {
	ownerID *uuid.UUID
	search  string
	limit   int
	cursor  *pkgpagination.Cursor
}

// ReportDTO is the API view of a report. Signature is included only on detail reads.
type ReportDTO struct {
	ID                uuid.UUID          `json:"id"`
	ReportID          string             `json:"reportId"`
	UserID            uuid.UUID          `json:"userId"`
	UserEmail         string             `json:"userEmail"`
	EngineerName      string             `json:"engineerName"`
	EngineerPhone     string             `json:"engineerPhone"`
	ClientName        string             `json:"clientName"`
	ClientPhone       string             `json:"clientPhone"`
	ClientEmail       string             `json:"clientEmail"`
	ClientAddress     string             `json:"clientAddress"`
	OrderNumber       string             `json:"orderNumber"`
	TaskDescription   string             `json:"taskDescription"`
	ServiceDetails    string             `json:"serviceDetails"`
	ServiceDate       string             `json:"serviceDate"`
	OutstandingIssues string             `json:"outstandingIssues"`
	Status            enums.ReportStatus `json:"status"`
	Signature         string             `json:"signature,omitempty"`
	SubmittedAt       time.Time          `json:"submittedAt"`
	PDFURL            *string            `json:"pdfUrl,omitempty"`
	PDFGenerated      bool               `json:"pdfGenerated"`
	PDFGeneratedAt    *time.Time         `json:"pdfGeneratedAt,omitempty"`
	PDFError          *string            `json:"pdfError,omitempty"`
	EmailSent         bool               `json:"emailSent"`
	EmailSentAt       *time.Time         `json:"emailSentAt,omitempty"`
	EmailRecipients   []string           `json:"emailRecipients,omitempty"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// CanonicalID is the human-facing identifier: the trimmed report number when
// present, otherwise the record id.
func CanonicalID(r models.ServiceReport) string {
	if r.ReportNumber != nil {
		if n := strings.TrimSpace(*r.ReportNumber); n != "" {
			return n
		}
	}
	return r.ID.String()
}

func toDTO(r models.ServiceReport, withSignature bool) ReportDTO {
	dto := ReportDTO{
		ID:                r.ID,
		ReportID:          CanonicalID(r),
		UserID:            r.UserID,
		UserEmail:         r.UserEmail,
		EngineerName:      r.EngineerName,
		EngineerPhone:     r.EngineerPhone,
		ClientName:        r.ClientName,
		ClientPhone:       r.ClientPhone,
		ClientEmail:       r.ClientEmail,
		ClientAddress:     r.ClientAddress,
		OrderNumber:       r.OrderNumber,
		TaskDescription:   r.TaskDescription,
		ServiceDetails:    r.ServiceDetails,
		ServiceDate:       r.ServiceDate,
		OutstandingIssues: r.OutstandingIssues,
		Status:            r.Status,
		SubmittedAt:       r.SubmittedAt,
		PDFURL:            r.PDFURL,
		PDFGenerated:      r.PDFGenerated,
		PDFGeneratedAt:    r.PDFGeneratedAt,
		PDFError:          r.PDFError,
		EmailSent:         r.EmailSent,
		EmailSentAt:       r.EmailSentAt,
		EmailRecipients:   []string(r.EmailRecipients),
		UpdatedAt:         r.UpdatedAt,
	}
	if withSignature {
		dto.Signature = r.Signature
	}
	return dto
}
