package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/types"
)

// Service exposes the store registry and store group operations.
type Service interface {
	Create(ctx context.Context, input CreateStoreInput) (*StoreDTO, error)
	GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error)
	List(ctx context.Context, filter ListFilter) ([]StoreDTO, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, input UpdateSettingsInput) (*StoreDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CreateGroup(ctx context.Context, input CreateGroupInput) (*GroupDTO, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*GroupDTO, error)
	ListGroups(ctx context.Context) ([]GroupDTO, error)
}

type storeRepository interface {
	Create(ctx context.Context, store *models.Store) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	List(ctx context.Context, filter ListFilter) ([]models.Store, error)
	Update(ctx context.Context, store *models.Store) error
	DeleteWithTx(tx *gorm.DB, id uuid.UUID) error
	CreateGroup(ctx context.Context, group *models.StoreGroup) error
	FindGroupByID(ctx context.Context, id uuid.UUID) (*models.StoreGroup, error)
	ListGroups(ctx context.Context) ([]models.StoreGroup, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo            storeRepository
	tx              txRunner
	defaultTermDays int
}

// NewService builds a store service backed by the provided repository.
func NewService(repo storeRepository, tx txRunner, defaultTermDays int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if defaultTermDays < 0 {
		return nil, fmt.Errorf("default payment term days must be non-negative")
	}
	return &service{repo: repo, tx: tx, defaultTermDays: defaultTermDays}, nil
}

func (s *service) Create(ctx context.Context, input CreateStoreInput) (*StoreDTO, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := types.ValidateDiscountRate(input.BaseDiscountRate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid base discount rate")
	}
	if input.CreditLimit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit limit must be non-negative")
	}
	termDays := s.defaultTermDays
	if input.PaymentTermDays != nil {
		termDays = *input.PaymentTermDays
	}
	if termDays < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment term days must be non-negative")
	}
	if input.GroupID != nil {
		if _, err := s.GetGroup(ctx, *input.GroupID); err != nil {
			return nil, err
		}
	}

	store := &models.Store{
		ID:               uuid.New(),
		Code:             code,
		Name:             name,
		GroupID:          input.GroupID,
		BaseDiscountRate: input.BaseDiscountRate,
		CreditLimit:      input.CreditLimit,
		PaymentTermDays:  termDays,
		IsActive:         true,
	}
	if err := s.repo.Create(ctx, store); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "store code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create store")
	}
	return FromModel(store), nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error) {
	store, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(store), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]StoreDTO, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stores")
	}
	out := make([]StoreDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) UpdateSettings(ctx context.Context, id uuid.UUID, input UpdateSettingsInput) (*StoreDTO, error) {
	store, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		store.Name = name
	}
	if input.BaseDiscountRate != nil {
		if err := types.ValidateDiscountRate(*input.BaseDiscountRate); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid base discount rate")
		}
		store.BaseDiscountRate = *input.BaseDiscountRate
	}
	if input.CreditLimit != nil {
		if *input.CreditLimit < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit limit must be non-negative")
		}
		store.CreditLimit = *input.CreditLimit
	}
	if input.PaymentTermDays != nil {
		if *input.PaymentTermDays < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment term days must be non-negative")
		}
		store.PaymentTermDays = *input.PaymentTermDays
	}
	switch {
	case input.ClearGroup:
		store.GroupID = nil
	case input.GroupID != nil:
		if _, err := s.GetGroup(ctx, *input.GroupID); err != nil {
			return nil, err
		}
		groupID := *input.GroupID
		store.GroupID = &groupID
	}
	if input.IsActive != nil {
		store.IsActive = *input.IsActive
	}

	if err := s.repo.Update(ctx, store); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update store settings")
	}
	return FromModel(store), nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.DeleteWithTx(tx, id)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	case errors.Is(err, ErrHasLedgerHistory):
		return pkgerrors.New(pkgerrors.CodeStateConflict, "store has ledger history; deactivate it instead")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete store")
	}
}

func (s *service) CreateGroup(ctx context.Context, input CreateGroupInput) (*GroupDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	group := &models.StoreGroup{
		ID:          uuid.New(),
		Name:        name,
		Description: input.Description,
	}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "group name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create store group")
	}
	return GroupFromModel(group), nil
}

func (s *service) GetGroup(ctx context.Context, id uuid.UUID) (*GroupDTO, error) {
	group, err := s.repo.FindGroupByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store group")
	}
	return GroupFromModel(group), nil
}

func (s *service) ListGroups(ctx context.Context) ([]GroupDTO, error) {
	rows, err := s.repo.ListGroups(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list store groups")
	}
	out := make([]GroupDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *GroupFromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	store, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return store, nil
}
