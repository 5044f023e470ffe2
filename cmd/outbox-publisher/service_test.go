package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/config"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/db/dbtest"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/metrics"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox/registry"
)

const ledgerTopic = "ld-ledger-events"

type relayFixture struct {
	conn    *gorm.DB
	emitter *outbox.Service
	dlq     *outbox.DLQRepository
	pub     *scriptedPublisher
	svc     *Service
}

func newRelayFixture(t *testing.T, maxAttempts int) *relayFixture {
	t.Helper()
	conn := dbtest.Open(t)
	reg, err := registry.NewEventRegistry(config.PubSubConfig{LedgerTopic: ledgerTopic})
	require.NoError(t, err)

	f := &relayFixture{
		conn:    conn,
		emitter: outbox.NewService(outbox.NewRepository(conn), nil),
		dlq:     outbox.NewDLQRepository(conn),
		pub:     &scriptedPublisher{},
	}
	f.svc, err = NewService(ServiceParams{
		Outbox:     config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: maxAttempts},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:         db.NewFromConn(conn),
		PubSub:     stubPubSub{},
		Repository: outbox.NewRepository(conn),
		DLQ:        f.dlq,
		Registry:   reg,
		Metrics:    metrics.NewOutboxMetrics(prometheus.NewRegistry()),
		Clock:      clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		Publishers: func(topic string) publisher {
			if topic != ledgerTopic {
				return nil
			}
			return f.pub
		},
	})
	require.NoError(t, err)
	return f
}

func (f *relayFixture) emit(t *testing.T, event outbox.DomainEvent) uuid.UUID {
	t.Helper()
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		return f.emitter.Emit(context.Background(), tx, event)
	}))
	var row models.OutboxEvent
	require.NoError(t, f.conn.Take(&row, "aggregate_id = ?", event.AggregateID).Error)
	return row.ID
}

func (f *relayFixture) row(t *testing.T, id uuid.UUID) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, f.conn.Take(&row, "id = ?", id).Error)
	return row
}

func postedEvent() outbox.DomainEvent {
	storeID := uuid.New()
	return outbox.DomainEvent{
		EventType:     enums.EventLedgerTransactionPosted,
		AggregateType: enums.AggregateStore,
		AggregateID:   storeID,
		Data: payloads.LedgerTransactionPostedEvent{
			TransactionID: uuid.New(),
			StoreID:       storeID,
			Sequence:      1,
			Type:          enums.LedgerTransactionSale,
			Amount:        50_000,
			Delta:         50_000,
			BalanceAfter:  50_000,
		},
	}
}

func TestProcessBatchPublishesAndMarksRows(t *testing.T) {
	f := newRelayFixture(t, 5)
	id := f.emit(t, postedEvent())

	handled, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	require.Len(t, f.pub.sent, 1)
	msg := f.pub.sent[0]
	assert.Equal(t, string(enums.EventLedgerTransactionPosted), msg.Attributes["event_type"])
	assert.Equal(t, string(enums.AggregateStore), msg.Attributes["aggregate_type"])
	assert.NotEmpty(t, msg.Attributes["event_id"])

	row := f.row(t, id)
	assert.NotNil(t, row.PublishedAt)
	assert.Nil(t, row.LastError)

	handled, err = f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, handled)
}

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	f := newRelayFixture(t, 5)
	firstEvent := postedEvent()
	first := f.emit(t, firstEvent)
	second := f.emit(t, postedEvent())
	f.pub.fail(firstEvent.AggregateID, errors.New("unavailable"))

	handled, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, handled)

	failed := f.row(t, first)
	assert.Nil(t, failed.PublishedAt)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "unavailable", *failed.LastError)

	assert.NotNil(t, f.row(t, second).PublishedAt)
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	f := newRelayFixture(t, 2)
	event := postedEvent()
	id := f.emit(t, event)
	f.pub.fail(event.AggregateID, errors.New("timeout"), errors.New("timeout"))

	_, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	_, err = f.svc.processBatch(context.Background())
	require.NoError(t, err)

	entry, err := f.dlq.FindByEventID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	assert.Equal(t, 2, entry.AttemptCount)

	row := f.row(t, id)
	assert.NotNil(t, row.PublishedAt)
	assert.Equal(t, 2, row.AttemptCount)
}

func TestProcessBatchDeadLettersUndecodableRows(t *testing.T) {
	f := newRelayFixture(t, 5)
	bad := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1,"eventId":"x","data":null}`),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.conn.Create(&bad).Error)

	handled, err := f.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.Empty(t, f.pub.sent)

	entry, err := f.dlq.FindByEventID(context.Background(), bad.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonInvalidEvent, entry.ErrorReason)
	assert.JSONEq(t, string(bad.Payload), string(entry.Payload))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

type stubPubSub struct{}

func (stubPubSub) Ping(context.Context) error { return nil }

func (stubPubSub) Publisher(string) *gcppubsub.Publisher { return nil }

// scriptedPublisher fails messages for an aggregate with queued errors, then
// accepts them.
type scriptedPublisher struct {
	errs map[string][]error
	sent []*gcppubsub.Message
}

func (p *scriptedPublisher) fail(aggregateID uuid.UUID, errs ...error) {
	if p.errs == nil {
		p.errs = map[string][]error{}
	}
	p.errs[aggregateID.String()] = append(p.errs[aggregateID.String()], errs...)
}

func (p *scriptedPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	var err error
	key := msg.Attributes["aggregate_id"]
	if queued := p.errs[key]; len(queued) > 0 {
		err, p.errs[key] = queued[0], queued[1:]
	}
	if err == nil {
		p.sent = append(p.sent, msg)
	}
	return scriptedResult{err: err}
}

type scriptedResult struct {
	err error
}

func (r scriptedResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}
