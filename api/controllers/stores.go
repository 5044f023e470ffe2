package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lensdist-backend/api/responses"
	"github.com/angelmondragon/lensdist-backend/api/validators"
	"github.com/angelmondragon/lensdist-backend/internal/stores"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

type storeCreateRequest struct {
	Code             string          `json:"code" validate:"required,max=32"`
	Name             string          `json:"name" validate:"required,max=200"`
	GroupID          *uuid.UUID      `json:"group_id,omitempty"`
	BaseDiscountRate decimal.Decimal `json:"base_discount_rate"`
	CreditLimit      int64           `json:"credit_limit" validate:"gte=0"`
	PaymentTermDays  *int            `json:"payment_term_days,omitempty" validate:"omitempty,gte=0,max=365"`
}

// CreateStore registers a new store account.
func CreateStore(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		var payload storeCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store, err := svc.Create(r.Context(), stores.CreateStoreInput{
			Code:             validators.SanitizeString(payload.Code, 32),
			Name:             validators.SanitizeString(payload.Name, 200),
			GroupID:          payload.GroupID,
			BaseDiscountRate: payload.BaseDiscountRate,
			CreditLimit:      payload.CreditLimit,
			PaymentTermDays:  payload.PaymentTermDays,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, store)
	}
}

// ListStores supports groupId, active and q filters.
func ListStores(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		groupID, err := validators.ParseQueryUUID(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		activeOnly, err := validators.ParseQueryBool(r, "active")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), stores.ListFilter{
			GroupID:    groupID,
			ActiveOnly: activeOnly,
			Search:     validators.SanitizeString(r.URL.Query().Get("q"), 100),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetStore(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store, err := svc.GetByID(r.Context(), storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store)
	}
}

// DeleteStore removes a store that has never posted to the ledger.
func DeleteStore(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), storeID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type storeSettingsRequest struct {
	Name             *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	BaseDiscountRate *decimal.Decimal `json:"base_discount_rate,omitempty"`
	CreditLimit      *int64           `json:"credit_limit,omitempty" validate:"omitempty,gte=0"`
	PaymentTermDays  *int             `json:"payment_term_days,omitempty" validate:"omitempty,gte=0,max=365"`
	GroupID          *uuid.UUID       `json:"group_id,omitempty"`
	ClearGroup       bool             `json:"clear_group,omitempty"`
	IsActive         *bool            `json:"is_active,omitempty"`
}

func (p storeSettingsRequest) toInput() stores.UpdateSettingsInput {
	input := stores.UpdateSettingsInput{
		BaseDiscountRate: p.BaseDiscountRate,
		CreditLimit:      p.CreditLimit,
		PaymentTermDays:  p.PaymentTermDays,
		GroupID:          p.GroupID,
		ClearGroup:       p.ClearGroup,
		IsActive:         p.IsActive,
	}
	if p.Name != nil {
		name := validators.SanitizeString(*p.Name, 200)
		input.Name = &name
	}
	return input
}

// UpdateStoreSettings patches discount, credit and grouping settings.
func UpdateStoreSettings(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload storeSettingsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store, err := svc.UpdateSettings(r.Context(), storeID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store)
	}
}

type storeGroupCreateRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

func CreateStoreGroup(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		var payload storeGroupCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.CreateGroup(r.Context(), stores.CreateGroupInput{
			Name:        validators.SanitizeString(payload.Name, 100),
			Description: payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, group)
	}
}

func ListStoreGroups(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		groups, err := svc.ListGroups(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, groups)
	}
}
