package registry

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/pkg/enums"
	"github.com/hilife/servicereport-backend/pkg/outbox/payloads"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventReportUpdated, 2, func(payload json.RawMessage) (any, error) {
		var decoded map[string]string
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	output, err := reg.Decode(enums.EventReportUpdated, 2, json.RawMessage(`{"status":"Completed"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outMap, ok := output.(map[string]string); !ok || outMap["status"] != "Completed" {
		t.Fatalf("unexpected output %+v", output)
	}

	if _, err := reg.Decode(enums.EventReportUpdated, 1, nil); err == nil {
		t.Fatalf("expected error for unregistered version")
	}
}

func TestReportDecoderRegistry(t *testing.T) {
	reg := NewReportDecoderRegistry()
	id := uuid.New()
	raw := json.RawMessage(`{"report_id":"` + id.String() + `","before":{"status":"In Progress"},"after":{"status":"Completed"}}`)

	out, err := reg.Decode(enums.EventReportUpdated, 1, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	event, ok := out.(*payloads.ReportChangedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", out)
	}
	if event.ReportID != id || event.Before == nil || event.Before.Status != enums.ReportStatusInProgress {
		t.Fatalf("unexpected decoded event %+v", event)
	}
	if event.After.Status != enums.ReportStatusCompleted {
		t.Fatalf("unexpected after status %q", event.After.Status)
	}

	if _, err := reg.Decode(enums.EventReportCreated, 1, json.RawMessage(`{"after":{"status":"Completed"}}`)); err == nil {
		t.Fatalf("expected error for missing report id")
	}
}
