// Package reportrender turns a service report into the printable HTML document.
package reportrender

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/types"
)

// Placeholder is shown for any empty field.
const Placeholder = "N/A"

const (
	serviceDateLayout = "02 Jan 2006"
	submittedLayout   = "02 Jan 2006, 15:04:05"
	signDateLayout    = "2 Jan 2006"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

// Company is the letterhead printed on every report.
type Company struct {
	Name    string
	Address string
	Tel     string
	Email   string
	LogoURL string
}

func CompanyFromConfig(cfg config.CompanyConfig) Company {
	return Company{
		Name:    cfg.Name,
		Address: cfg.Address,
		Tel:     cfg.Tel,
		Email:   cfg.Email,
		LogoURL: cfg.LogoURL,
	}
}

// View is the fully resolved template input. Every string is non-empty.
type View struct {
	ReportID          string
	EngineerName      string
	EngineerPhone     string
	ClientName        string
	ClientPhone       string
	ClientEmail       string
	ClientAddress     string
	OrderNumber       string
	TaskDescription   string
	ServiceDetails    string
	ServiceDate       string
	OutstandingIssues string
	Status            string
	SubmittedAt       string
	SignDate          string
	Signature         template.URL
	Company           Company
}

// NewView resolves fallbacks and formats dates in loc.
func NewView(report models.ServiceReport, canonicalID string, company Company, loc *time.Location) View {
	if loc == nil {
		loc = time.UTC
	}
	v := View{
		ReportID:          orNA(canonicalID),
		EngineerName:      orNA(report.EngineerName),
		EngineerPhone:     orNA(report.EngineerPhone),
		ClientName:        orNA(report.ClientName),
		ClientPhone:       orNA(report.ClientPhone),
		ClientEmail:       orNA(report.ClientEmail),
		ClientAddress:     orNA(report.ClientAddress),
		OrderNumber:       orNA(report.OrderNumber),
		TaskDescription:   orNA(report.TaskDescription),
		ServiceDetails:    orNA(report.ServiceDetails),
		ServiceDate:       formatServiceDate(report.ServiceDate),
		OutstandingIssues: orNA(report.OutstandingIssues),
		Status:            orNA(string(report.Status)),
		SubmittedAt:       Placeholder,
		SignDate:          Placeholder,
		Company: Company{
			Name:    orNA(company.Name),
			Address: orNA(company.Address),
			Tel:     orNA(company.Tel),
			Email:   orNA(company.Email),
			LogoURL: strings.TrimSpace(company.LogoURL),
		},
	}
	if !report.SubmittedAt.IsZero() {
		// Stored precision is seconds.
		ts := time.Unix(report.SubmittedAt.Unix(), 0).In(loc)
		v.SubmittedAt = ts.Format(submittedLayout)
		v.SignDate = ts.Format(signDateLayout)
	}
	if types.IsValidSignature(report.Signature) {
		v.Signature = template.URL(strings.TrimSpace(report.Signature))
	}
	return v
}

// Renderer executes the embedded report template.
type Renderer struct {
	tmpl *template.Template
}

func New() (*Renderer, error) {
	tmpl, err := template.New("report.html.tmpl").Option("missingkey=error").ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the HTML document. Identical views render byte-identical output.
func (r *Renderer) Render(view View) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("rendering report template: %w", err)
	}
	return buf.Bytes(), nil
}

func orNA(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Placeholder
	}
	return s
}

func formatServiceDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Placeholder
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.Format(serviceDateLayout)
	}
	return raw
}
