package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/pkg/enums"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/outbox"
	"github.com/hilife/servicereport-backend/pkg/outbox/payloads"
	"github.com/hilife/servicereport-backend/pkg/outbox/registry"
)

func TestProcessDispatchesReportUpdated(t *testing.T) {
	handler := &stubHandler{}
	manager := &stubManager{}
	c := newTestConsumer(handler, manager)

	reportID := uuid.New()
	msg := buildReportMessage(t, enums.EventReportUpdated, payloads.ReportChangedEvent{
		ReportID: reportID,
		Before:   &payloads.ReportSnapshot{Status: enums.ReportStatusInProgress},
		After:    payloads.ReportSnapshot{Status: enums.ReportStatusCompleted},
	})

	if res := c.process(context.Background(), msg); res.nack {
		t.Fatal("expected ack")
	}
	if len(handler.changes) != 1 {
		t.Fatalf("expected one change, got %d", len(handler.changes))
	}
	got := handler.changes[0]
	if got.Kind != enums.EventReportUpdated || got.ReportID != reportID || got.Before == nil {
		t.Fatalf("unexpected change %+v", got)
	}
	if !ShouldRun(got) {
		t.Fatal("decoded change should trigger")
	}
}

func TestProcessAlreadyProcessed(t *testing.T) {
	handler := &stubHandler{}
	manager := &stubManager{checkResult: true}
	c := newTestConsumer(handler, manager)

	msg := buildReportMessage(t, enums.EventReportCreated, payloads.ReportChangedEvent{ReportID: uuid.New()})
	if res := c.process(context.Background(), msg); res.nack {
		t.Fatal("expected ack for duplicate")
	}
	if len(handler.changes) != 0 {
		t.Fatal("handler should not run for a duplicate")
	}
}

func TestProcessHandlerErrorNacksAndReleases(t *testing.T) {
	handler := &stubHandler{err: errors.New("db down")}
	manager := &stubManager{}
	c := newTestConsumer(handler, manager)

	msg := buildReportMessage(t, enums.EventReportCreated, payloads.ReportChangedEvent{ReportID: uuid.New()})
	if res := c.process(context.Background(), msg); !res.nack {
		t.Fatal("expected nack on handler error")
	}
	if len(manager.deleted) != 1 {
		t.Fatal("expected idempotency key released")
	}
}

func TestProcessIdempotencyErrorNacks(t *testing.T) {
	handler := &stubHandler{}
	manager := &stubManager{checkErr: errors.New("redis timeout")}
	c := newTestConsumer(handler, manager)

	msg := buildReportMessage(t, enums.EventReportCreated, payloads.ReportChangedEvent{ReportID: uuid.New()})
	if res := c.process(context.Background(), msg); !res.nack {
		t.Fatal("expected nack when idempotency check fails")
	}
}

func TestProcessIgnoresOtherEvents(t *testing.T) {
	handler := &stubHandler{}
	manager := &stubManager{}
	c := newTestConsumer(handler, manager)

	msg := buildReportMessage(t, "user_deleted", payloads.ReportChangedEvent{ReportID: uuid.New()})
	if res := c.process(context.Background(), msg); res.nack {
		t.Fatal("unrelated events should be acked")
	}
	if len(manager.checked) != 0 || len(handler.changes) != 0 {
		t.Fatal("unrelated events should not be processed")
	}
}

func TestProcessInvalidPayloadAcks(t *testing.T) {
	handler := &stubHandler{}
	manager := &stubManager{}
	c := newTestConsumer(handler, manager)

	msg := &gcppubsub.Message{
		ID:         "msg-1",
		Data:       []byte("not json"),
		Attributes: map[string]string{"event_type": string(enums.EventReportCreated)},
	}
	if res := c.process(context.Background(), msg); res.nack {
		t.Fatal("poison messages should be acked")
	}

	missingID := buildReportMessage(t, enums.EventReportCreated, payloads.ReportChangedEvent{})
	if res := c.process(context.Background(), missingID); res.nack {
		t.Fatal("payload without report id should be acked")
	}
	if len(handler.changes) != 0 || len(manager.checked) != 0 {
		t.Fatal("invalid messages should not reach the handler")
	}
}

func buildReportMessage(t *testing.T, eventType enums.OutboxEventType, event payloads.ReportChangedEvent) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &gcppubsub.Message{
		ID:   "msg-1",
		Data: body,
		Attributes: map[string]string{
			"event_id":   envelope.EventID,
			"event_type": string(eventType),
		},
	}
}

func newTestConsumer(handler changeHandler, manager *stubManager) *Consumer {
	return &Consumer{
		handler: handler,
		manager: manager,
		decoder: registry.NewReportDecoderRegistry(),
		logg:    logger.New(logger.Options{ServiceName: "completion-test", Output: io.Discard}),
	}
}

type stubHandler struct {
	changes []ReportChange
	err     error
}

func (h *stubHandler) Handle(_ context.Context, change ReportChange) error {
	h.changes = append(h.changes, change)
	return h.err
}

type stubManager struct {
	checkResult bool
	checkErr    error
	checked     []uuid.UUID
	deleted     []uuid.UUID
}

func (s *stubManager) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	s.checked = append(s.checked, eventID)
	return s.checkResult, s.checkErr
}

func (s *stubManager) Delete(_ context.Context, _ string, eventID uuid.UUID) error {
	s.deleted = append(s.deleted, eventID)
	return nil
}
