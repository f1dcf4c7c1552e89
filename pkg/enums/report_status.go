package enums

import (
	"fmt"
	"strings"
)

// ReportStatus tracks where a service visit is in its approval workflow.
type ReportStatus string

const (
	ReportStatusInProgress ReportStatus = "In Progress"
	ReportStatusCompleted  ReportStatus = "Completed"
	ReportStatusIncomplete ReportStatus = "Incomplete"
)

var validReportStatuses = []ReportStatus{
	ReportStatusInProgress,
	ReportStatusCompleted,
	ReportStatusIncomplete,
}

// String implements fmt.Stringer.
func (s ReportStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReportStatus.
func (s ReportStatus) IsValid() bool {
	for _, candidate := range validReportStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReportStatus accepts the display value in any letter case.
func ParseReportStatus(value string) (ReportStatus, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validReportStatuses {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid report status %q", value)
}
