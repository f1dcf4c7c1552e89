package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/db/models"
	"github.com/hilife/servicereport-backend/pkg/enums"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/outbox/payloads"
	"github.com/hilife/servicereport-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	sendTimeout        = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
	backoffJitter      = 250 * time.Millisecond
)

// Attributes set on every report change message. The completion consumer
// routes on event_type and falls back to event_id.
const (
	attrEventID      = "event_id"
	attrEventType    = "event_type"
	attrReportID     = "report_id"
	attrReportNumber = "report_number"
	attrStatus       = "status"
	attrOccurredAt   = "occurred_at"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// RelayParams wire the report change relay.
type RelayParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
}

// Relay moves report change rows from the outbox table onto the reports
// topic. A row is marked published only after Pub/Sub acknowledged it, and
// rows that cannot be delivered are copied to the dead letter table.
type Relay struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	dlq          dlqRepository
	publisherFor publisherFactory
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return wrapPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	return &Relay{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		publisherFor: factory,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (r *Relay) checkDependencies(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	return nil
}

// backoff doubles the wait after each failed drain up to maxIdleBackoff.
func (r *Relay) backoff() retry.Backoff {
	b := retry.NewExponential(r.pollInterval)
	b = retry.WithCappedDuration(maxIdleBackoff, b)
	return retry.WithJitter(backoffJitter, b)
}

// Run drains the outbox until ctx is canceled. Full batches are drained back
// to back. An empty batch waits one poll interval.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.checkDependencies(ctx); err != nil {
		return err
	}

	idle := retry.WithJitter(backoffJitter, retry.NewConstant(r.pollInterval))
	failing := r.backoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		drained, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.drain_failed", err)
			wait, _ = failing.Next()
		case drained > 0:
			failing = r.backoff()
			continue
		default:
			failing = r.backoff()
			wait, _ = idle.Next()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// drain publishes one batch in a single transaction and returns how many
// rows it looked at.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var seen int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		seen = len(rows)
		for _, row := range rows {
			if err := r.relay(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return seen, err
}

// relay handles one row. It returns an error only when the outbox or dead
// letter tables could not be updated.
func (r *Relay) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, rowFields(row, nil))
	}
	fields := rowFields(row, resolved)

	sendErr := r.send(ctx, row, resolved)
	if sendErr == nil {
		if err := r.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox.published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(sendErr, &nonRetry) {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, sendErr, fields)
	}
	attempt := row.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= r.maxAttempts {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", attempt, sendErr), fields)
	}

	fields["error"] = sendErr.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.publish_retrying")
	if err := r.repo.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["dlq_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.dead_lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	result := pub.Publish(sendCtx, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: messageAttributes(row, resolved),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(sendCtx)
	return err
}

// messageAttributes carries the report identity and the post-write status so
// subscribers can route without decoding the payload.
func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		attrEventID:   resolved.Envelope.EventID,
		attrEventType: string(row.EventType),
		attrReportID:  row.AggregateID.String(),
	}
	if !resolved.Envelope.OccurredAt.IsZero() {
		attrs[attrOccurredAt] = resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	if change, ok := resolved.Payload.(*payloads.ReportChangedEvent); ok && change != nil {
		if change.ReportNumber != "" {
			attrs[attrReportNumber] = change.ReportNumber
		}
		if change.After.Status != "" {
			attrs[attrStatus] = string(change.After.Status)
		}
	}
	return attrs
}

func rowFields(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"report_id":     row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if change, ok := resolved.Payload.(*payloads.ReportChangedEvent); ok && change != nil && change.ReportNumber != "" {
			fields["report_number"] = change.ReportNumber
		}
	}
	return fields
}

func wrapPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{p}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
