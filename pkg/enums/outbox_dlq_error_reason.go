package enums

// OutboxDLQErrorReason records why the relay stopped trying an outbox row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: Pub/Sub kept failing until the attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: Pub/Sub rejected the message outright.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonInvalidEvent: the row itself could not be decoded or routed.
	OutboxDLQReasonInvalidEvent OutboxDLQErrorReason = "invalid_event"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonInvalidEvent:
		return true
	}
	return false
}
