// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads for the relay.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/lensdist-backend/pkg/config"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type to its topic and payload shape.
type EventDescriptor struct {
	EventType  enums.OutboxEventType
	Topic      string
	newPayload func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks failures that will never succeed on retry; the
// relay dead-letters the row immediately.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes ledger postings and order confirmations to the
// ledger topic; consumers filter on the event_type attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.LedgerTopic)
	if topic == "" {
		return nil, errors.New("ledger topic is required")
	}
	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	reg.add(EventDescriptor{
		EventType:  enums.EventLedgerTransactionPosted,
		Topic:      topic,
		newPayload: func() any { return &payloads.LedgerTransactionPostedEvent{} },
	})
	reg.add(EventDescriptor{
		EventType:  enums.EventOrderConfirmed,
		Topic:      topic,
		newPayload: func() any { return &payloads.OrderConfirmedEvent{} },
	})
	return reg, nil
}

func (r *EventRegistry) add(desc EventDescriptor) {
	r.entries[desc.EventType] = desc
}

// Topics lists each distinct topic once, sorted.
func (r *EventRegistry) Topics() []string {
	var topics []string
	for _, desc := range r.entries {
		if !slices.Contains(topics, desc.Topic) {
			topics = append(topics, desc.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve checks the row against its event type and decodes the payload.
// Every error it returns is a NonRetryableError.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	if !ok {
		return nil, nonRetryable("unsupported event type %q", row.EventType)
	}
	if want := row.EventType.Aggregate(); want != row.AggregateType {
		return nil, nonRetryable("%s must carry a %s aggregate, got %q", row.EventType, want, row.AggregateType)
	}
	if row.AggregateID == uuid.Nil {
		return nil, nonRetryable("%s row %s has no aggregate id", row.EventType, row.ID)
	}

	envelope, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, NonRetryableError{Err: err}
	}
	payload := desc.newPayload()
	if err := envelope.DecodeData(payload); err != nil {
		return nil, NonRetryableError{Err: err}
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
