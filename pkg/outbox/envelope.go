package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is bumped when the envelope shape changes incompatibly.
const EnvelopeVersion = 1

// ActorRef names the operator behind the write, from the X-Actor header.
type ActorRef struct {
	ProcessedBy string `json:"processedBy"`
}

// NewActor returns nil for a blank operator so the field is omitted.
func NewActor(processedBy string) *ActorRef {
	processedBy = strings.TrimSpace(processedBy)
	if processedBy == "" {
		return nil
	}
	return &ActorRef{ProcessedBy: processedBy}
}

// PayloadEnvelope wraps every event body. It is stored in outbox_events.payload
// and published verbatim as the Pub/Sub message data. EventID is what
// consumers de-duplicate on.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    uuid.UUID       `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var errEmptyData = errors.New("envelope data is empty")

// DecodeEnvelope parses raw and rejects envelopes consumers cannot act on.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > EnvelopeVersion {
		return PayloadEnvelope{}, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if env.EventID == uuid.Nil {
		return PayloadEnvelope{}, errors.New("envelope event id missing")
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, errEmptyData
	}
	return env, nil
}

// DecodeData unmarshals the envelope body into dest.
func (e PayloadEnvelope) DecodeData(dest any) error {
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	return nil
}
