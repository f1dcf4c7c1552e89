package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/pkg/enums"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/outbox"
	"github.com/hilife/servicereport-backend/pkg/outbox/payloads"
)

const consumerName = "report-completion"

type changeHandler interface {
	Handle(ctx context.Context, change ReportChange) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

// Consumer receives report change events from Pub/Sub and feeds the trigger.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	handler      changeHandler
	manager      idempotencyChecker
	decoder      payloadDecoder
	logg         *logger.Logger
}

func NewConsumer(subscription *gcppubsub.Subscriber, handler changeHandler, manager idempotencyChecker, decoder payloadDecoder, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("reports subscription is required")
	}
	if handler == nil {
		return nil, errors.New("completion handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if decoder == nil {
		return nil, errors.New("payload decoder is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		handler:      handler,
		manager:      manager,
		decoder:      decoder,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run receives messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	eventType := enums.OutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != enums.EventReportCreated && eventType != enums.EventReportUpdated {
		c.logg.Debug(logCtx, "event not handled by completion consumer")
		return processResult{}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "invalid report event envelope")
		return processResult{}
	}

	rawID := strings.TrimSpace(envelope.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	logCtx = c.logg.WithField(logCtx, "event_id", rawID)
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		c.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	change, err := c.decode(eventType, envelope)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "undecodable report event")
		return processResult{}
	}

	already, err := c.manager.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := c.handler.Handle(logCtx, change); err != nil {
		c.logg.Error(logCtx, "completion handler error", err)
		if delErr := c.manager.Delete(logCtx, consumerName, eventID); delErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency key", delErr)
		}
		return processResult{nack: true}
	}
	return processResult{}
}

func (c *Consumer) decode(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (ReportChange, error) {
	version := envelope.Version
	if version == 0 {
		version = 1
	}
	decoded, err := c.decoder.Decode(eventType, version, envelope.Data)
	if err != nil {
		return ReportChange{}, err
	}
	event, ok := decoded.(*payloads.ReportChangedEvent)
	if !ok {
		return ReportChange{}, fmt.Errorf("unexpected payload %T", decoded)
	}
	return ChangeFromEvent(eventType, event), nil
}
