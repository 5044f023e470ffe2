package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox/payloads"
)

const creditAlertConsumer = "credit-alerts"

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type storeFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type claimGuard interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns ledger postings that push a store past its credit limit
// into notifications. Only the posting that crosses the limit alerts; later
// sales while already over do not.
type Consumer struct {
	repo         Repository
	stores       storeFinder
	subscription subscriber
	guard        claimGuard
	logg         *logger.Logger
}

func NewConsumer(repo Repository, stores storeFinder, subscription subscriber, guard claimGuard, logg *logger.Logger) (*Consumer, error) {
	switch {
	case repo == nil:
		return nil, fmt.Errorf("notifications repository required")
	case stores == nil:
		return nil, fmt.Errorf("store finder required")
	case subscription == nil:
		return nil, fmt.Errorf("ledger subscription required")
	case guard == nil:
		return nil, fmt.Errorf("idempotency guard required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{repo: repo, stores: stores, subscription: subscription, guard: guard, logg: logg}, nil
}

// Run receives until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns false when the message should be redelivered.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
		"consumer":   creditAlertConsumer,
	})
	if eventType != string(enums.EventLedgerTransactionPosted) {
		return true
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	eventID := envelope.EventID
	var posted payloads.LedgerTransactionPostedEvent
	if err := envelope.DecodeData(&posted); err != nil {
		c.logg.Error(logCtx, "failed to decode ledger payload", err)
		return true
	}
	if posted.Delta <= 0 {
		return true
	}

	first, err := c.guard.Claim(ctx, creditAlertConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return false
	}
	if !first {
		c.logg.Info(logCtx, "event already processed")
		return true
	}

	logCtx = c.logg.WithStoreID(logCtx, posted.StoreID.String())
	if err := c.alertIfCrossed(ctx, posted); err != nil {
		c.logg.Error(logCtx, "credit alert failed", err)
		if releaseErr := c.guard.Release(ctx, creditAlertConsumer, eventID); releaseErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency claim", releaseErr)
		}
		return false
	}
	return true
}

func (c *Consumer) alertIfCrossed(ctx context.Context, posted payloads.LedgerTransactionPostedEvent) error {
	store, err := c.stores.FindByID(ctx, posted.StoreID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	before := posted.BalanceAfter - posted.Delta
	if posted.BalanceAfter <= store.CreditLimit || before > store.CreditLimit {
		return nil
	}

	link := fmt.Sprintf("/stores/%s/receivable", store.ID)
	return c.repo.Create(ctx, &models.Notification{
		ID:      uuid.New(),
		StoreID: store.ID,
		Type:    enums.NotificationTypeCreditLimit,
		Title:   "Credit limit exceeded",
		Message: fmt.Sprintf("%s (%s) owes %d KRW against a limit of %d KRW after %s #%d.",
			store.Name, store.Code, posted.BalanceAfter, store.CreditLimit, posted.Type, posted.Sequence),
		Link: &link,
	})
}
