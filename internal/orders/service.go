package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/internal/ledger"
	"github.com/angelmondragon/lensdist-backend/internal/pricing"
	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/lensdist-backend/pkg/pagination"
)

const maxOrderNoLength = 64

// Service confirms orders against the ledger and records returns.
type Service interface {
	Confirm(ctx context.Context, input ConfirmInput) (*OrderDTO, error)
	Return(ctx context.Context, orderID uuid.UUID, input ReturnInput) (*ReturnResult, error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*OrderList, error)
}

type storeFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type quoter interface {
	Quote(ctx context.Context, storeID uuid.UUID, lines []pricing.QuoteLine) (*pricing.Quote, error)
}

type poster interface {
	PostTransaction(ctx context.Context, input ledger.PostInput) (*models.LedgerTransaction, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Repo    Repository
	Stores  storeFinder
	Pricing quoter
	Ledger  poster
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Clock   clock.Clock
}

type service struct {
	repo    Repository
	stores  storeFinder
	pricing quoter
	ledger  poster
	outbox  outboxPublisher
	logg    *logger.Logger
	clock   clock.Clock
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Stores == nil:
		return nil, fmt.Errorf("store finder required")
	case params.Pricing == nil:
		return nil, fmt.Errorf("pricing service required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	}
	svc := &service{
		repo:    params.Repo,
		stores:  params.Stores,
		pricing: params.Pricing,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		logg:    params.Logger,
		clock:   params.Clock,
	}
	if svc.clock == nil {
		svc.clock = clock.Real()
	}
	return svc, nil
}

// Confirm prices every line, then posts one sale for the total. The order and
// its lines are written inside the posting transaction, so a failure on
// either side leaves nothing behind.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*OrderDTO, error) {
	orderNo := strings.TrimSpace(input.OrderNo)
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if orderNo == "" || len(orderNo) > maxOrderNoLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required and must be at most 64 characters")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}

	store, err := s.stores.FindByID(ctx, input.StoreID)
	if err != nil {
		return nil, mapError(err, "load store")
	}
	if !store.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "store is inactive")
	}

	lines := make([]pricing.QuoteLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		lines = append(lines, pricing.QuoteLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	quote, err := s.pricing.Quote(ctx, input.StoreID, lines)
	if err != nil {
		return nil, err
	}
	if quote.Total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be greater than zero")
	}

	now := s.clock.Now().UTC()
	order := &models.Order{
		ID:          uuid.New(),
		OrderNo:     orderNo,
		StoreID:     input.StoreID,
		Status:      enums.OrderStatusConfirmed,
		TotalAmount: quote.Total,
		ConfirmedBy: optionalString(input.ProcessedBy),
		CreatedAt:   now,
		UpdatedAt:   now,
		Lines:       make([]models.OrderLine, 0, len(quote.Lines)),
	}
	for _, res := range quote.Lines {
		order.Lines = append(order.Lines, models.OrderLine{
			ID:           uuid.New(),
			ProductID:    res.ProductID,
			Quantity:     res.Quantity,
			ListPrice:    res.ListPrice,
			UnitPrice:    res.UnitPrice,
			LineTotal:    res.LineTotal,
			PricingTier:  res.Tier,
			DiscountRate: res.Rate,
			CreatedAt:    now,
		})
	}

	_, err = s.ledger.PostTransaction(ctx, ledger.PostInput{
		StoreID:     input.StoreID,
		Type:        enums.LedgerTransactionSale,
		Amount:      quote.Total,
		OrderID:     &order.ID,
		OrderNo:     orderNo,
		ProcessedBy: input.ProcessedBy,
		Metadata:    map[string]any{"lineCount": len(order.Lines)},
		WithinTx: func(tx *gorm.DB, posted *models.LedgerTransaction) error {
			order.SaleTransactionID = posted.ID
			if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number already exists")
				}
				return err
			}
			if s.outbox == nil {
				return nil
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderConfirmed,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         outbox.NewActor(input.ProcessedBy),
				Data: payloads.OrderConfirmedEvent{
					OrderID:           order.ID,
					OrderNo:           order.OrderNo,
					StoreID:           order.StoreID,
					TotalAmount:       order.TotalAmount,
					LineCount:         len(order.Lines),
					SaleTransactionID: posted.ID,
				},
			})
		},
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"order_no": order.OrderNo,
			"store_id": order.StoreID.String(),
			"total":    order.TotalAmount,
		})
		s.logg.Info(logCtx, "order confirmed")
	}
	dto := FromModel(order)
	return &dto, nil
}

func (s *service) Return(ctx context.Context, orderID uuid.UUID, input ReturnInput) (*ReturnResult, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapError(err, "load order")
	}

	remaining := order.TotalAmount - order.ReturnedAmount
	if remaining <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has already been fully returned")
	}
	amount := remaining
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return amount exceeds the unreturned total").
			WithDetails(map[string]any{"remaining": remaining, "requested": amount})
	}

	posted, err := s.ledger.PostTransaction(ctx, ledger.PostInput{
		StoreID:     order.StoreID,
		Type:        enums.LedgerTransactionReturn,
		Amount:      amount,
		OrderID:     &order.ID,
		OrderNo:     order.OrderNo,
		Memo:        input.Memo,
		ProcessedBy: input.ProcessedBy,
		WithinTx: func(tx *gorm.DB, _ *models.LedgerTransaction) error {
			repo := s.repo.WithTx(tx)
			locked, err := repo.LockByID(ctx, order.ID)
			if err != nil {
				return err
			}
			// Another return may have committed since the read above.
			if locked.ReturnedAmount+amount > locked.TotalAmount {
				return pkgerrors.New(pkgerrors.CodeValidation, "return amount exceeds the unreturned total")
			}
			returned := locked.ReturnedAmount + amount
			status := enums.OrderStatusPartiallyReturned
			if returned == locked.TotalAmount {
				status = enums.OrderStatusReturned
			}
			if err := repo.UpdateReturned(ctx, order.ID, returned, status); err != nil {
				return err
			}
			order.ReturnedAmount = returned
			order.Status = status
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	return &ReturnResult{Order: FromModel(order), Transaction: ledger.FromModel(*posted)}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapError(err, "load order")
	}
	dto := FromModel(order)
	return &dto, nil
}

func (s *service) ListByStore(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByStore(ctx, storeID, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, mapError(err, "list orders")
	}

	rows, next := pagination.Trim(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{At: o.CreatedAt, ID: o.ID}
	})
	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		list.Orders = append(list.Orders, FromModel(&rows[i]))
	}
	return list, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func mapError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "resource not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
