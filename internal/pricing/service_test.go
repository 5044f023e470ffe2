package pricing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lensdist-backend/internal/discounts"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/metrics"
)

type fakeRules struct {
	set   *discounts.RuleSet
	err   error
	calls int
}

func (f *fakeRules) GetApplicableRules(ctx context.Context, storeID uuid.UUID) (*discounts.RuleSet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

type fakeProducts struct {
	rows []models.Product
	err  error
}

func (f *fakeProducts) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	wanted := map[uuid.UUID]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Product
	for _, row := range f.rows {
		if wanted[row.ID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func newTestService(t *testing.T, rules *fakeRules, products *fakeProducts, buf *bytes.Buffer) Service {
	t.Helper()
	var logg *logger.Logger
	if buf != nil {
		logg = logger.New(logger.Options{ServiceName: "test", Output: buf})
	}
	svc, err := NewService(ServiceParams{
		Rules:    rules,
		Products: products,
		Logger:   logg,
		Metrics:  metrics.NewPricingMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Products: &fakeProducts{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Rules: &fakeRules{}})
	require.Error(t, err)
}

func TestQuotePricesEveryLineWithOneRuleLoad(t *testing.T) {
	brand := uuid.New()
	lensA := models.Product{ID: uuid.New(), BrandID: brand, ProductType: enums.ProductTypeRx, ListPrice: price(100_000)}
	lensB := models.Product{ID: uuid.New(), BrandID: uuid.New(), ProductType: enums.ProductTypeSpare, ListPrice: price(20_000)}
	set := emptyRules("5")
	set.BrandRates[brand] = decimal.NewFromInt(15)

	rules := &fakeRules{set: set}
	svc := newTestService(t, rules, &fakeProducts{rows: []models.Product{lensA, lensB}}, nil)

	quote, err := svc.Quote(context.Background(), set.StoreID, []QuoteLine{
		{ProductID: lensA.ID, Quantity: 2},
		{ProductID: lensB.ID, Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, quote.Lines, 2)
	assert.Equal(t, 1, rules.calls)
	assert.Equal(t, int64(170_000), quote.Lines[0].LineTotal)
	assert.Equal(t, int64(57_000), quote.Lines[1].LineTotal)
	assert.Equal(t, int64(227_000), quote.Total)
}

func TestQuoteRejectsUnpricedProduct(t *testing.T) {
	priced := models.Product{ID: uuid.New(), BrandID: uuid.New(), ListPrice: price(1_000)}
	unpriced := models.Product{ID: uuid.New(), BrandID: uuid.New()}
	svc := newTestService(t, &fakeRules{set: emptyRules("0")}, &fakeProducts{rows: []models.Product{priced, unpriced}}, nil)

	_, err := svc.Quote(context.Background(), uuid.New(), []QuoteLine{
		{ProductID: priced.ID, Quantity: 1},
		{ProductID: unpriced.ID, Quantity: 1},
	})
	assert.Equal(t, pkgerrors.CodeInvalidProduct, pkgerrors.As(err).Code())
}

func TestQuoteValidation(t *testing.T) {
	svc := newTestService(t, &fakeRules{set: emptyRules("0")}, &fakeProducts{}, nil)

	_, err := svc.Quote(context.Background(), uuid.New(), nil)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.Quote(context.Background(), uuid.New(), []QuoteLine{{ProductID: uuid.New(), Quantity: 0}})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.ResolvePrice(context.Background(), uuid.New(), uuid.New(), 1)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestQuotePropagatesRuleErrors(t *testing.T) {
	notFound := pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	svc := newTestService(t, &fakeRules{err: notFound}, &fakeProducts{}, nil)

	_, err := svc.ResolvePrice(context.Background(), uuid.New(), uuid.New(), 1)
	assert.True(t, errors.Is(err, notFound))

	svc = newTestService(t, &fakeRules{set: emptyRules("0")}, &fakeProducts{err: errors.New("db down")}, nil)
	_, err = svc.ResolvePrice(context.Background(), uuid.New(), uuid.New(), 1)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestResolvePriceLogsClampedPrice(t *testing.T) {
	product := models.Product{ID: uuid.New(), BrandID: uuid.New(), ListPrice: price(10_000)}
	var buf bytes.Buffer
	svc := newTestService(t, &fakeRules{set: emptyRules("150")}, &fakeProducts{rows: []models.Product{product}}, &buf)

	res, err := svc.ResolvePrice(context.Background(), uuid.New(), product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.UnitPrice)
	assert.True(t, res.Clamped)
	assert.True(t, strings.Contains(buf.String(), "DATA_INTEGRITY_WARNING"), buf.String())
}
