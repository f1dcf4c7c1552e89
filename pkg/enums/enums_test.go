package enums

import "testing"

func TestParseReportStatus(t *testing.T) {
	cases := map[string]ReportStatus{
		"Completed":    ReportStatusCompleted,
		"completed":    ReportStatusCompleted,
		" In Progress": ReportStatusInProgress,
		"INCOMPLETE":   ReportStatusIncomplete,
	}
	for raw, want := range cases {
		got, err := ParseReportStatus(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %q got %q", raw, want, got)
		}
	}
	if _, err := ParseReportStatus("Done"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestParseUserRole(t *testing.T) {
	role, err := ParseUserRole(" Admin ")
	if err != nil || role != UserRoleAdmin {
		t.Fatalf("expected admin, got %q err=%v", role, err)
	}
	if _, err := ParseUserRole("owner"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestOutboxEnums(t *testing.T) {
	if !EventReportUpdated.IsValid() || OutboxEventType("order_created").IsValid() {
		t.Fatalf("unexpected event type validity")
	}
	if _, err := ParseOutboxAggregateType("service_report"); err != nil {
		t.Fatalf("unexpected aggregate parse error: %v", err)
	}
	if !OutboxDLQReasonMaxAttempts.IsValid() {
		t.Fatalf("max attempts reason should be valid")
	}
}
