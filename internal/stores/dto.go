package stores

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
)

// StoreDTO exposes store settings in API responses.
type StoreDTO struct {
	ID               uuid.UUID       `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	GroupID          *uuid.UUID      `json:"group_id,omitempty"`
	BaseDiscountRate decimal.Decimal `json:"base_discount_rate"`
	CreditLimit      int64           `json:"credit_limit"`
	PaymentTermDays  int             `json:"payment_term_days"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// GroupDTO exposes a store group.
type GroupDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateStoreInput holds registration-time data for a new store.
type CreateStoreInput struct {
	Code             string
	Name             string
	GroupID          *uuid.UUID
	BaseDiscountRate decimal.Decimal
	CreditLimit      int64
	PaymentTermDays  *int
}

// UpdateSettingsInput captures the store fields that settings updates may change.
// ClearGroup detaches the store from its group and wins over GroupID.
type UpdateSettingsInput struct {
	Name             *string
	BaseDiscountRate *decimal.Decimal
	CreditLimit      *int64
	PaymentTermDays  *int
	GroupID          *uuid.UUID
	ClearGroup       bool
	IsActive         *bool
}

// ListFilter narrows store listings.
type ListFilter struct {
	GroupID    *uuid.UUID
	ActiveOnly bool
	Search     string
}

// CreateGroupInput holds the data for a new store group.
type CreateGroupInput struct {
	Name        string
	Description *string
}

// FromModel maps the persisted store into a DTO.
func FromModel(m *models.Store) *StoreDTO {
	if m == nil {
		return nil
	}
	dto := &StoreDTO{
		ID:               m.ID,
		Code:             m.Code,
		Name:             m.Name,
		BaseDiscountRate: m.BaseDiscountRate,
		CreditLimit:      m.CreditLimit,
		PaymentTermDays:  m.PaymentTermDays,
		IsActive:         m.IsActive,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.GroupID != nil {
		id := *m.GroupID
		dto.GroupID = &id
	}
	return dto
}

// GroupFromModel maps the persisted group into a DTO.
func GroupFromModel(m *models.StoreGroup) *GroupDTO {
	if m == nil {
		return nil
	}
	return &GroupDTO{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}
