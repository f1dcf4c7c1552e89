// Package notify emails the finished report to the ops mailbox and the customer.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/hilife/servicereport-backend/pkg/mailer"
)

var bodyTemplate = template.Must(template.New("report-ready").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222;">
<p>Dear Customer,</p>
<p>The service report for your recent visit is ready.</p>
<table cellpadding="4" style="border-collapse:collapse;">
<tr><td><strong>Report No.</strong></td><td>{{.ReportID}}</td></tr>
<tr><td><strong>Customer</strong></td><td>{{.ClientName}}</td></tr>
<tr><td><strong>Engineer</strong></td><td>{{.EngineerName}}</td></tr>
<tr><td><strong>Service Date</strong></td><td>{{.ServiceDate}}</td></tr>
<tr><td><strong>Status</strong></td><td>{{.Status}}</td></tr>
</table>
<p style="margin:24px 0;">
<a href="{{.URL}}" style="background:#0b5394;color:#fff;padding:12px 24px;border-radius:4px;text-decoration:none;font-weight:bold;">Download Service Report</a>
</p>
<p style="font-size:12px;color:#666;">If the button does not work, open this link: {{.URL}}</p>
</body></html>`))

// Report is what the email needs to know about a finished report.
type Report struct {
	ReportID     string
	ClientName   string
	ClientEmail  string
	EngineerName string
	ServiceDate  string
	Status       string
	URL          string
	PDF          []byte
}

// Notifier composes and dispatches the report-ready email.
type Notifier struct {
	sender     mailer.Sender
	opsMailbox string
}

func NewNotifier(sender mailer.Sender, opsMailbox string) (*Notifier, error) {
	if sender == nil {
		return nil, errors.New("mail sender required")
	}
	if strings.TrimSpace(opsMailbox) == "" {
		return nil, errors.New("ops mailbox required")
	}
	return &Notifier{sender: sender, opsMailbox: strings.TrimSpace(opsMailbox)}, nil
}

// Recipients always includes the ops mailbox and adds the customer when set.
func Recipients(opsMailbox, customerEmail string) []string {
	out := []string{strings.TrimSpace(opsMailbox)}
	customer := strings.TrimSpace(customerEmail)
	if customer != "" && !strings.EqualFold(customer, out[0]) {
		out = append(out, customer)
	}
	return out
}

// Subject is the email subject for a report.
func Subject(reportID string) string {
	return "Service Report #" + reportID
}

// Notify sends the email and returns the recipients used. Send failures are returned as is.
func (n *Notifier) Notify(ctx context.Context, r Report) ([]string, error) {
	if strings.TrimSpace(r.URL) == "" {
		return nil, errors.New("document url required")
	}
	html, err := renderBody(r)
	if err != nil {
		return nil, err
	}
	recipients := Recipients(n.opsMailbox, r.ClientEmail)
	msg := mailer.Message{
		To:       recipients,
		Subject:  Subject(r.ReportID),
		HTMLBody: html,
		TextBody: textBody(r),
	}
	if len(r.PDF) > 0 {
		msg.Attachments = []mailer.Attachment{{
			Name:        fmt.Sprintf("ServiceReport-%s.pdf", r.ReportID),
			ContentType: "application/pdf",
			Data:        r.PDF,
		}}
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return nil, err
	}
	return recipients, nil
}

func renderBody(r Report) (string, error) {
	view := struct {
		ReportID, ClientName, EngineerName, ServiceDate, Status string
		URL                                                     template.URL
	}{
		ReportID:     orNA(r.ReportID),
		ClientName:   orNA(r.ClientName),
		EngineerName: orNA(r.EngineerName),
		ServiceDate:  orNA(r.ServiceDate),
		Status:       orNA(r.Status),
		URL:          template.URL(r.URL),
	}
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("rendering email body: %w", err)
	}
	return buf.String(), nil
}

func textBody(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service Report #%s\n\n", r.ReportID)
	fmt.Fprintf(&b, "Customer: %s\n", orNA(r.ClientName))
	fmt.Fprintf(&b, "Engineer: %s\n", orNA(r.EngineerName))
	fmt.Fprintf(&b, "Service Date: %s\n", orNA(r.ServiceDate))
	fmt.Fprintf(&b, "Status: %s\n\n", orNA(r.Status))
	fmt.Fprintf(&b, "Download: %s\n", r.URL)
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
