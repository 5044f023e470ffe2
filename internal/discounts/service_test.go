package discounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/db/dbtest"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
)

type fixture struct {
	conn    *gorm.DB
	svc     Service
	group   models.StoreGroup
	store   models.Store
	brand   models.Brand
	product models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(), Tx: db.NewFromConn(conn)})
	require.NoError(t, err)

	f := &fixture{conn: conn, svc: svc}
	f.group = models.StoreGroup{ID: uuid.New(), Name: "Metro"}
	require.NoError(t, conn.Create(&f.group).Error)
	f.store = models.Store{ID: uuid.New(), Code: "S-1", Name: "Store", GroupID: &f.group.ID, BaseDiscountRate: decimal.NewFromInt(5), PaymentTermDays: 30, IsActive: true}
	require.NoError(t, conn.Create(&f.store).Error)
	f.brand = models.Brand{ID: uuid.New(), Code: "B-1", Name: "Brand", IsActive: true}
	require.NoError(t, conn.Create(&f.brand).Error)
	price := int64(10_000)
	f.product = models.Product{ID: uuid.New(), BrandID: f.brand.ID, Code: "P-1", Name: "Lens", ProductType: enums.ProductTypeRx, ListPrice: &price, IsActive: true}
	require.NoError(t, conn.Create(&f.product).Error)
	return f
}

func codeOf(err error) pkgerrors.Code {
	return pkgerrors.As(err).Code()
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Tx: db.NewFromConn(nil)})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository()})
	require.Error(t, err)
}

func TestGetApplicableRulesCollectsEveryTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetBrandDiscount(ctx, f.store.ID, f.brand.ID, decimal.NewFromInt(10)))
	require.NoError(t, f.svc.SetProductDiscount(ctx, f.store.ID, f.product.ID, decimal.NewFromInt(20)))
	rule, err := f.svc.CreateGroupDiscount(ctx, f.group.ID, GroupRuleInput{Rate: decimal.NewFromInt(15), MinQuantity: 3})
	require.NoError(t, err)

	set, err := f.svc.GetApplicableRules(ctx, f.store.ID)
	require.NoError(t, err)
	assert.True(t, set.BaseRate.Equal(decimal.NewFromInt(5)))
	require.NotNil(t, set.GroupID)
	assert.Equal(t, f.group.ID, *set.GroupID)
	assert.True(t, set.BrandRates[f.brand.ID].Equal(decimal.NewFromInt(10)))
	assert.True(t, set.ProductRates[f.product.ID].Equal(decimal.NewFromInt(20)))
	assert.Empty(t, set.SpecialPrices)
	require.Len(t, set.GroupRules, 1)
	assert.Equal(t, rule.ID, set.GroupRules[0].ID)
	assert.Equal(t, enums.GroupProductScopeAll, set.GroupRules[0].ProductScope)
}

func TestGetApplicableRulesUnknownStore(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetApplicableRules(context.Background(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
}

func TestSetBrandDiscountOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetBrandDiscount(ctx, f.store.ID, f.brand.ID, decimal.NewFromInt(10)))
	require.NoError(t, f.svc.SetBrandDiscount(ctx, f.store.ID, f.brand.ID, decimal.RequireFromString("12.5")))

	var rows []models.BrandDiscount
	require.NoError(t, f.conn.Where("store_id = ?", f.store.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].DiscountRate.Equal(decimal.RequireFromString("12.5")))
}

func TestRateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SetBrandDiscount(ctx, f.store.ID, f.brand.ID, decimal.NewFromInt(101))
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))
	err = f.svc.SetProductDiscount(ctx, f.store.ID, f.product.ID, decimal.NewFromInt(-5))
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))
	err = f.svc.SetSpecialPrice(ctx, f.store.ID, f.product.ID, -1)
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))
}

func TestReferencesMustExist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SetBrandDiscount(ctx, uuid.New(), f.brand.ID, decimal.NewFromInt(10))
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
	err = f.svc.SetBrandDiscount(ctx, f.store.ID, uuid.New(), decimal.NewFromInt(10))
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
	err = f.svc.SetSpecialPrice(ctx, f.store.ID, uuid.New(), 100)
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
}

func TestProductDiscountAndSpecialPriceAreExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetSpecialPrice(ctx, f.store.ID, f.product.ID, 7_000))
	err := f.svc.SetProductDiscount(ctx, f.store.ID, f.product.ID, decimal.NewFromInt(20))
	assert.Equal(t, pkgerrors.CodeConflictingRule, codeOf(err))

	require.NoError(t, f.svc.RemoveSpecialPrice(ctx, f.store.ID, f.product.ID))
	require.NoError(t, f.svc.SetProductDiscount(ctx, f.store.ID, f.product.ID, decimal.NewFromInt(20)))

	err = f.svc.SetSpecialPrice(ctx, f.store.ID, f.product.ID, 7_000)
	assert.Equal(t, pkgerrors.CodeConflictingRule, codeOf(err))

	set, err := f.svc.GetApplicableRules(ctx, f.store.ID)
	require.NoError(t, err)
	assert.Len(t, set.ProductRates, 1)
	assert.Empty(t, set.SpecialPrices)
}

func TestSpecialPriceCanBeUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetSpecialPrice(ctx, f.store.ID, f.product.ID, 7_000))
	require.NoError(t, f.svc.SetSpecialPrice(ctx, f.store.ID, f.product.ID, 6_500))

	set, err := f.svc.GetApplicableRules(ctx, f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6_500), set.SpecialPrices[f.product.ID])
}

func TestRemoveMissingRuleIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.svc.RemoveBrandDiscount(ctx, f.store.ID, uuid.New()))
	assert.NoError(t, f.svc.RemoveProductDiscount(ctx, f.store.ID, uuid.New()))
	assert.NoError(t, f.svc.RemoveSpecialPrice(ctx, f.store.ID, uuid.New()))
	assert.NoError(t, f.svc.RemoveGroupDiscount(ctx, f.group.ID, uuid.New()))
}

func TestGroupDiscountLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateGroupDiscount(ctx, f.group.ID, GroupRuleInput{Rate: decimal.NewFromInt(10), MinQuantity: -1})
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))
	_, err = f.svc.CreateGroupDiscount(ctx, f.group.ID, GroupRuleInput{Rate: decimal.NewFromInt(10), ProductScope: "frames"})
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))
	_, err = f.svc.CreateGroupDiscount(ctx, uuid.New(), GroupRuleInput{Rate: decimal.NewFromInt(10)})
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))

	rule, err := f.svc.CreateGroupDiscount(ctx, f.group.ID, GroupRuleInput{
		BrandID:      &f.brand.ID,
		ProductScope: enums.GroupProductScopeRx,
		Rate:         decimal.NewFromInt(12),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rule.MinQuantity)

	updated, err := f.svc.UpdateGroupDiscount(ctx, f.group.ID, rule.ID, GroupRuleInput{Rate: decimal.NewFromInt(18), MinQuantity: 5})
	require.NoError(t, err)
	assert.Nil(t, updated.BrandID)
	assert.Equal(t, enums.GroupProductScopeAll, updated.ProductScope)
	assert.True(t, updated.Rate.Equal(decimal.NewFromInt(18)))

	_, err = f.svc.UpdateGroupDiscount(ctx, f.group.ID, uuid.New(), GroupRuleInput{Rate: decimal.NewFromInt(1)})
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))

	rules, err := f.svc.ListGroupDiscounts(ctx, f.group.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 5, rules[0].MinQuantity)

	require.NoError(t, f.svc.RemoveGroupDiscount(ctx, f.group.ID, rule.ID))
	rules, err = f.svc.ListGroupDiscounts(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
