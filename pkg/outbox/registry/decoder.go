package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/pkg/enums"
	"github.com/hilife/servicereport-backend/pkg/outbox/payloads"
)

// DecoderFunc turns an envelope's data field into a typed payload.
type DecoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]DecoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]DecoderFunc)}
}

// NewReportDecoderRegistry registers the v1 decoders for report change events.
func NewReportDecoderRegistry() *DecoderRegistry {
	reg := NewDecoderRegistry()
	decodeReportChanged := func(payload json.RawMessage) (any, error) {
		var event payloads.ReportChangedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		if event.ReportID == uuid.Nil {
			return nil, fmt.Errorf("report_id missing")
		}
		return &event, nil
	}
	reg.Register(enums.EventReportCreated, 1, decodeReportChanged)
	reg.Register(enums.EventReportUpdated, 1, decodeReportChanged)
	return reg
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}
