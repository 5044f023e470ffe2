package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/lensdist-backend/internal/discounts"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/metrics"
)

// QuoteLine is one requested product and quantity.
type QuoteLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// Quote is the priced basket for a store.
type Quote struct {
	StoreID uuid.UUID    `json:"store_id"`
	Lines   []Resolution `json:"lines"`
	Total   int64        `json:"total"`
}

// Service prices products for stores using the current rule set.
type Service interface {
	ResolvePrice(ctx context.Context, storeID, productID uuid.UUID, quantity int) (*Resolution, error)
	Quote(ctx context.Context, storeID uuid.UUID, lines []QuoteLine) (*Quote, error)
}

type ruleSource interface {
	GetApplicableRules(ctx context.Context, storeID uuid.UUID) (*discounts.RuleSet, error)
}

type productLoader interface {
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type ServiceParams struct {
	Rules    ruleSource
	Products productLoader
	Logger   *logger.Logger
	Metrics  *metrics.PricingMetrics
}

type service struct {
	rules    ruleSource
	products productLoader
	logg     *logger.Logger
	metrics  *metrics.PricingMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Rules == nil {
		return nil, fmt.Errorf("rule source required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{
		rules:    params.Rules,
		products: params.Products,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

func (s *service) ResolvePrice(ctx context.Context, storeID, productID uuid.UUID, quantity int) (*Resolution, error) {
	quote, err := s.Quote(ctx, storeID, []QuoteLine{{ProductID: productID, Quantity: quantity}})
	if err != nil {
		return nil, err
	}
	res := quote.Lines[0]
	return &res, nil
}

// Quote loads the rule set once and prices every line against it. Any line
// that cannot be priced fails the whole quote.
func (s *service) Quote(ctx context.Context, storeID uuid.UUID, lines []QuoteLine) (*Quote, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	for i, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: product id is required", i))
		}
		if line.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: quantity must be at least 1", i))
		}
	}

	rules, err := s.rules.GetApplicableRules(ctx, storeID)
	if err != nil {
		return nil, err
	}
	products, err := s.loadProducts(ctx, lines)
	if err != nil {
		return nil, err
	}

	quote := &Quote{StoreID: storeID, Lines: make([]Resolution, 0, len(lines))}
	for _, line := range lines {
		product := products[line.ProductID]
		res, err := Resolve(rules, product, line.Quantity)
		if err != nil {
			return nil, err
		}
		if res.Clamped {
			s.warnClamped(ctx, storeID, res)
		}
		s.metrics.ObserveResolution(res.Tier.String(), res.Clamped)
		quote.Lines = append(quote.Lines, res)
		quote.Total += res.LineTotal
	}
	return quote, nil
}

func (s *service) loadProducts(ctx context.Context, lines []QuoteLine) (map[uuid.UUID]ProductInfo, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	rows, err := s.products.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	out := make(map[uuid.UUID]ProductInfo, len(rows))
	for _, row := range rows {
		out[row.ID] = ProductInfo{
			ID:          row.ID,
			BrandID:     row.BrandID,
			ProductType: row.ProductType,
			ListPrice:   row.ListPrice,
		}
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": id})
		}
	}
	return out, nil
}

func (s *service) warnClamped(ctx context.Context, storeID uuid.UUID, res Resolution) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"code":       string(pkgerrors.CodeDataIntegrity),
		"store_id":   storeID.String(),
		"product_id": res.ProductID.String(),
		"tier":       res.Tier.String(),
		"list_price": res.ListPrice,
	})
	s.logg.Warn(logCtx, "computed price was negative; clamped to zero")
}
