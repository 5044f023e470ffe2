package discounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/types"
)

// Service owns the per-store and per-group discount rules.
type Service interface {
	GetApplicableRules(ctx context.Context, storeID uuid.UUID) (*RuleSet, error)

	SetBrandDiscount(ctx context.Context, storeID, brandID uuid.UUID, rate decimal.Decimal) error
	RemoveBrandDiscount(ctx context.Context, storeID, brandID uuid.UUID) error
	SetProductDiscount(ctx context.Context, storeID, productID uuid.UUID, rate decimal.Decimal) error
	RemoveProductDiscount(ctx context.Context, storeID, productID uuid.UUID) error
	SetSpecialPrice(ctx context.Context, storeID, productID uuid.UUID, price int64) error
	RemoveSpecialPrice(ctx context.Context, storeID, productID uuid.UUID) error

	CreateGroupDiscount(ctx context.Context, groupID uuid.UUID, input GroupRuleInput) (*GroupRule, error)
	UpdateGroupDiscount(ctx context.Context, groupID, ruleID uuid.UUID, input GroupRuleInput) (*GroupRule, error)
	RemoveGroupDiscount(ctx context.Context, groupID, ruleID uuid.UUID) error
	ListGroupDiscounts(ctx context.Context, groupID uuid.UUID) ([]GroupRule, error)
}

type ruleRepository interface {
	LockStore(tx *gorm.DB, storeID uuid.UUID) (*models.Store, error)
	FindStore(tx *gorm.DB, storeID uuid.UUID) (*models.Store, error)
	BrandExists(tx *gorm.DB, brandID uuid.UUID) (bool, error)
	ProductExists(tx *gorm.DB, productID uuid.UUID) (bool, error)
	GroupExists(tx *gorm.DB, groupID uuid.UUID) (bool, error)
	HasProductDiscount(tx *gorm.DB, storeID, productID uuid.UUID) (bool, error)
	HasSpecialPrice(tx *gorm.DB, storeID, productID uuid.UUID) (bool, error)
	BrandDiscounts(tx *gorm.DB, storeID uuid.UUID) ([]models.BrandDiscount, error)
	ProductDiscounts(tx *gorm.DB, storeID uuid.UUID) ([]models.ProductDiscount, error)
	SpecialPrices(tx *gorm.DB, storeID uuid.UUID) ([]models.ProductSpecialPrice, error)
	GroupDiscounts(tx *gorm.DB, groupID uuid.UUID) ([]models.GroupDiscount, error)
	FindGroupDiscount(tx *gorm.DB, groupID, ruleID uuid.UUID) (*models.GroupDiscount, error)
	UpsertBrandDiscount(tx *gorm.DB, storeID, brandID uuid.UUID, rate decimal.Decimal) error
	UpsertProductDiscount(tx *gorm.DB, storeID, productID uuid.UUID, rate decimal.Decimal) error
	UpsertSpecialPrice(tx *gorm.DB, storeID, productID uuid.UUID, price int64) error
	DeleteBrandDiscount(tx *gorm.DB, storeID, brandID uuid.UUID) error
	DeleteProductDiscount(tx *gorm.DB, storeID, productID uuid.UUID) error
	DeleteSpecialPrice(tx *gorm.DB, storeID, productID uuid.UUID) error
	CreateGroupDiscount(tx *gorm.DB, row *models.GroupDiscount) error
	SaveGroupDiscount(tx *gorm.DB, row *models.GroupDiscount) error
	DeleteGroupDiscount(tx *gorm.DB, groupID, ruleID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the discount service.
type ServiceParams struct {
	Repo   ruleRepository
	Tx     txRunner
	Logger *logger.Logger
}

type service struct {
	repo ruleRepository
	tx   txRunner
	logg *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("discount repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: params.Repo, tx: params.Tx, logg: params.Logger}, nil
}

func (s *service) GetApplicableRules(ctx context.Context, storeID uuid.UUID) (*RuleSet, error) {
	var set *RuleSet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store, err := s.repo.FindStore(tx, storeID)
		if err != nil {
			return err
		}
		set = newRuleSet(store)

		brandRows, err := s.repo.BrandDiscounts(tx, storeID)
		if err != nil {
			return err
		}
		for _, row := range brandRows {
			set.BrandRates[row.BrandID] = row.DiscountRate
		}

		productRows, err := s.repo.ProductDiscounts(tx, storeID)
		if err != nil {
			return err
		}
		for _, row := range productRows {
			set.ProductRates[row.ProductID] = row.DiscountRate
		}

		priceRows, err := s.repo.SpecialPrices(tx, storeID)
		if err != nil {
			return err
		}
		for _, row := range priceRows {
			set.SpecialPrices[row.ProductID] = row.SpecialPrice
		}

		if store.GroupID == nil {
			return nil
		}
		groupRows, err := s.repo.GroupDiscounts(tx, *store.GroupID)
		if err != nil {
			return err
		}
		for i := range groupRows {
			set.GroupRules = append(set.GroupRules, groupRuleFromModel(&groupRows[i]))
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, "load discount rules")
	}
	return set, nil
}

func (s *service) SetBrandDiscount(ctx context.Context, storeID, brandID uuid.UUID, rate decimal.Decimal) error {
	if err := validateRate(rate); err != nil {
		return err
	}
	return s.withStoreLock(ctx, storeID, "set brand discount", func(tx *gorm.DB) error {
		if err := s.requireExists(s.repo.BrandExists(tx, brandID)); err != nil {
			return err
		}
		return s.repo.UpsertBrandDiscount(tx, storeID, brandID, rate)
	})
}

func (s *service) RemoveBrandDiscount(ctx context.Context, storeID, brandID uuid.UUID) error {
	return s.withStoreLock(ctx, storeID, "remove brand discount", func(tx *gorm.DB) error {
		return s.repo.DeleteBrandDiscount(tx, storeID, brandID)
	})
}

func (s *service) SetProductDiscount(ctx context.Context, storeID, productID uuid.UUID, rate decimal.Decimal) error {
	if err := validateRate(rate); err != nil {
		return err
	}
	return s.withStoreLock(ctx, storeID, "set product discount", func(tx *gorm.DB) error {
		if err := s.requireExists(s.repo.ProductExists(tx, productID)); err != nil {
			return err
		}
		conflict, err := s.repo.HasSpecialPrice(tx, storeID, productID)
		if err != nil {
			return err
		}
		if conflict {
			return pkgerrors.New(pkgerrors.CodeConflictingRule, "product already has a special price for this store").
				WithDetails(map[string]any{"store_id": storeID, "product_id": productID, "existing": "special_price"})
		}
		return s.repo.UpsertProductDiscount(tx, storeID, productID, rate)
	})
}

func (s *service) RemoveProductDiscount(ctx context.Context, storeID, productID uuid.UUID) error {
	return s.withStoreLock(ctx, storeID, "remove product discount", func(tx *gorm.DB) error {
		return s.repo.DeleteProductDiscount(tx, storeID, productID)
	})
}

func (s *service) SetSpecialPrice(ctx context.Context, storeID, productID uuid.UUID, price int64) error {
	if price < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "special price must be non-negative")
	}
	return s.withStoreLock(ctx, storeID, "set special price", func(tx *gorm.DB) error {
		if err := s.requireExists(s.repo.ProductExists(tx, productID)); err != nil {
			return err
		}
		conflict, err := s.repo.HasProductDiscount(tx, storeID, productID)
		if err != nil {
			return err
		}
		if conflict {
			return pkgerrors.New(pkgerrors.CodeConflictingRule, "product already has a discount rate for this store").
				WithDetails(map[string]any{"store_id": storeID, "product_id": productID, "existing": "product_discount"})
		}
		return s.repo.UpsertSpecialPrice(tx, storeID, productID, price)
	})
}

func (s *service) RemoveSpecialPrice(ctx context.Context, storeID, productID uuid.UUID) error {
	return s.withStoreLock(ctx, storeID, "remove special price", func(tx *gorm.DB) error {
		return s.repo.DeleteSpecialPrice(tx, storeID, productID)
	})
}

func (s *service) CreateGroupDiscount(ctx context.Context, groupID uuid.UUID, input GroupRuleInput) (*GroupRule, error) {
	input, err := normalizeGroupInput(input)
	if err != nil {
		return nil, err
	}
	var created *GroupRule
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.requireGroupRefs(tx, groupID, input.BrandID); err != nil {
			return err
		}
		row := &models.GroupDiscount{
			ID:           uuid.New(),
			GroupID:      groupID,
			BrandID:      input.BrandID,
			ProductScope: input.ProductScope,
			DiscountRate: input.Rate,
			MinQuantity:  input.MinQuantity,
		}
		if err := s.repo.CreateGroupDiscount(tx, row); err != nil {
			return err
		}
		rule := groupRuleFromModel(row)
		created = &rule
		return nil
	})
	if err != nil {
		return nil, mapError(err, "create group discount")
	}
	return created, nil
}

func (s *service) UpdateGroupDiscount(ctx context.Context, groupID, ruleID uuid.UUID, input GroupRuleInput) (*GroupRule, error) {
	input, err := normalizeGroupInput(input)
	if err != nil {
		return nil, err
	}
	var updated *GroupRule
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.requireGroupRefs(tx, groupID, input.BrandID); err != nil {
			return err
		}
		row, err := s.repo.FindGroupDiscount(tx, groupID, ruleID)
		if err != nil {
			return err
		}
		row.BrandID = input.BrandID
		row.ProductScope = input.ProductScope
		row.DiscountRate = input.Rate
		row.MinQuantity = input.MinQuantity
		if err := s.repo.SaveGroupDiscount(tx, row); err != nil {
			return err
		}
		rule := groupRuleFromModel(row)
		updated = &rule
		return nil
	})
	if err != nil {
		return nil, mapError(err, "update group discount")
	}
	return updated, nil
}

func (s *service) RemoveGroupDiscount(ctx context.Context, groupID, ruleID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.DeleteGroupDiscount(tx, groupID, ruleID)
	})
	if err != nil {
		return mapError(err, "remove group discount")
	}
	return nil
}

func (s *service) ListGroupDiscounts(ctx context.Context, groupID uuid.UUID) ([]GroupRule, error) {
	var rules []GroupRule
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.requireExists(s.repo.GroupExists(tx, groupID)); err != nil {
			return err
		}
		rows, err := s.repo.GroupDiscounts(tx, groupID)
		if err != nil {
			return err
		}
		rules = make([]GroupRule, 0, len(rows))
		for i := range rows {
			rules = append(rules, groupRuleFromModel(&rows[i]))
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err, "list group discounts")
	}
	return rules, nil
}

// withStoreLock runs fn in a transaction holding the store row lock so that
// concurrent writers of the same store's rules are serialized.
func (s *service) withStoreLock(ctx context.Context, storeID uuid.UUID, op string, fn func(tx *gorm.DB) error) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.LockStore(tx, storeID); err != nil {
			return err
		}
		return fn(tx)
	})
	if err != nil {
		if s.logg != nil && pkgerrors.IsCode(err, pkgerrors.CodeConflictingRule) {
			logCtx := s.logg.WithFields(ctx, map[string]any{"store_id": storeID.String(), "op": op})
			s.logg.Warn(logCtx, "discount rule rejected: conflicting rule")
		}
		return mapError(err, op)
	}
	return nil
}

func (s *service) requireExists(found bool, err error) error {
	if err != nil {
		return err
	}
	if !found {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *service) requireGroupRefs(tx *gorm.DB, groupID uuid.UUID, brandID *uuid.UUID) error {
	if err := s.requireExists(s.repo.GroupExists(tx, groupID)); err != nil {
		return err
	}
	if brandID != nil {
		return s.requireExists(s.repo.BrandExists(tx, *brandID))
	}
	return nil
}

func validateRate(rate decimal.Decimal) error {
	if err := types.ValidateDiscountRate(rate); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	return nil
}

func normalizeGroupInput(input GroupRuleInput) (GroupRuleInput, error) {
	if err := validateRate(input.Rate); err != nil {
		return input, err
	}
	if input.ProductScope == "" {
		input.ProductScope = enums.GroupProductScopeAll
	}
	if !input.ProductScope.IsValid() {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "product scope must be all, rx or spare")
	}
	if input.MinQuantity == 0 {
		input.MinQuantity = 1
	}
	if input.MinQuantity < 1 {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "min quantity must be at least 1")
	}
	return input, nil
}

func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "referenced record not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
