package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lensdist-backend/internal/discounts"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
)

type testDiscountService struct {
	discounts.Service

	rates    map[uuid.UUID]decimal.Decimal
	specials map[uuid.UUID]int64
	removed  []uuid.UUID
	created  *discounts.GroupRuleInput
	err      error
}

func newTestDiscountService() *testDiscountService {
	return &testDiscountService{rates: map[uuid.UUID]decimal.Decimal{}, specials: map[uuid.UUID]int64{}}
}

func (s *testDiscountService) SetBrandDiscount(_ context.Context, _, brandID uuid.UUID, rate decimal.Decimal) error {
	if s.err != nil {
		return s.err
	}
	s.rates[brandID] = rate
	return nil
}

func (s *testDiscountService) SetSpecialPrice(_ context.Context, _, productID uuid.UUID, price int64) error {
	s.specials[productID] = price
	return nil
}

func (s *testDiscountService) RemoveProductDiscount(_ context.Context, _, productID uuid.UUID) error {
	s.removed = append(s.removed, productID)
	return nil
}

func (s *testDiscountService) GetApplicableRules(_ context.Context, storeID uuid.UUID) (*discounts.RuleSet, error) {
	return &discounts.RuleSet{StoreID: storeID, BaseRate: decimal.RequireFromString("0.10")}, nil
}

func (s *testDiscountService) CreateGroupDiscount(_ context.Context, groupID uuid.UUID, input discounts.GroupRuleInput) (*discounts.GroupRule, error) {
	s.created = &input
	return &discounts.GroupRule{ID: uuid.New(), GroupID: groupID, ProductScope: input.ProductScope, Rate: input.Rate, MinQuantity: input.MinQuantity}, nil
}

func TestSetBrandDiscountAcceptsStringRate(t *testing.T) {
	svc := newTestDiscountService()
	brandID := uuid.New()
	params := map[string]string{"storeId": uuid.NewString(), "brandId": brandID.String()}

	rec := serve(SetBrandDiscount(svc, testLogger()), newRequest(http.MethodPut, "/", `{"discount_rate":"0.15"}`, params))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.rates[brandID].Equal(decimal.RequireFromString("0.15")))
}

func TestSetBrandDiscountRejectsOutOfRange(t *testing.T) {
	svc := newTestDiscountService()
	svc.err = pkgerrors.New(pkgerrors.CodeValidation, "discount rate must be between 0 and 1")
	params := map[string]string{"storeId": uuid.NewString(), "brandId": uuid.NewString()}

	rec := serve(SetBrandDiscount(svc, testLogger()), newRequest(http.MethodPut, "/", `{"discount_rate":1.5}`, params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetSpecialPriceAndRemoveProductDiscount(t *testing.T) {
	svc := newTestDiscountService()
	productID := uuid.New()
	params := map[string]string{"storeId": uuid.NewString(), "productId": productID.String()}

	rec := serve(SetSpecialPrice(svc, testLogger()), newRequest(http.MethodPut, "/", `{"special_price":120000}`, params))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(120_000), svc.specials[productID])

	rec = serve(SetSpecialPrice(svc, testLogger()), newRequest(http.MethodPut, "/", `{"special_price":-1}`, params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(RemoveProductDiscount(svc, testLogger()), newRequest(http.MethodDelete, "/", "", params))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uuid.UUID{productID}, svc.removed)
}

func TestStoreDiscountsReturnsRuleSet(t *testing.T) {
	storeID := uuid.New()
	rec := serve(StoreDiscounts(newTestDiscountService(), testLogger()), newRequest(http.MethodGet, "/", "", map[string]string{"storeId": storeID.String()}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storeID, decodeData[discounts.RuleSet](t, rec).StoreID)
}

func TestCreateGroupDiscountParsesScope(t *testing.T) {
	svc := newTestDiscountService()
	params := map[string]string{"groupId": uuid.NewString()}

	rec := serve(CreateGroupDiscount(svc, testLogger()), newRequest(http.MethodPost, "/", `{"product_scope":"rx","discount_rate":"0.2","min_quantity":10}`, params))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, enums.GroupProductScopeRx, svc.created.ProductScope)
	assert.Equal(t, 10, svc.created.MinQuantity)

	rec = serve(CreateGroupDiscount(svc, testLogger()), newRequest(http.MethodPost, "/", `{"product_scope":"frames","discount_rate":"0.2"}`, params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
