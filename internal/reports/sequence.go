package reports

import (
	"fmt"
	"time"
)

const sequenceWidth = 5

// DayKey is the report_sequences key for t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("060102")
}

// FormatReportNumber renders YYMMDD followed by the zero-padded daily counter.
func FormatReportNumber(day string, seq int64) string {
	return fmt.Sprintf("%s%0*d", day, sequenceWidth, seq)
}
