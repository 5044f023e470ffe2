package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lensdist-backend/api/middleware"
	"github.com/angelmondragon/lensdist-backend/api/responses"
	"github.com/angelmondragon/lensdist-backend/api/validators"
	"github.com/angelmondragon/lensdist-backend/internal/ledger"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/pagination"
)

type depositRequest struct {
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,payment_method"`
	Depositor     string `json:"depositor" validate:"max=100"`
	BankName      string `json:"bank_name" validate:"max=100"`
	Memo          string `json:"memo" validate:"max=500"`
}

// PostDeposit records money received from a store. The amount is positive;
// the ledger lowers the balance.
func PostDeposit(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload depositRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := ledger.PostInput{
			StoreID:     storeID,
			Type:        enums.LedgerTransactionDeposit,
			Amount:      payload.Amount,
			Depositor:   validators.SanitizeString(payload.Depositor, 100),
			BankName:    validators.SanitizeString(payload.BankName, 100),
			Memo:        validators.SanitizeString(payload.Memo, 500),
			ProcessedBy: middleware.ActorFromContext(r.Context()),
		}
		if payload.PaymentMethod != "" {
			method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method"))
				return
			}
			input.PaymentMethod = method
		}

		tx, err := svc.PostTransaction(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ledger.FromModel(*tx))
	}
}

type adjustmentRequest struct {
	Amount    int64  `json:"amount"`
	Direction string `json:"direction" validate:"required,adjustment_direction"`
	Memo      string `json:"memo" validate:"required,max=500"`
}

// PostAdjustment corrects a balance by hand. A memo is mandatory.
func PostAdjustment(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		direction, err := enums.ParseAdjustmentDirection(payload.Direction)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction"))
			return
		}

		tx, err := svc.PostTransaction(r.Context(), ledger.PostInput{
			StoreID:     storeID,
			Type:        enums.LedgerTransactionAdjustment,
			Amount:      payload.Amount,
			Direction:   direction,
			Memo:        validators.SanitizeString(payload.Memo, 500),
			ProcessedBy: middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ledger.FromModel(*tx))
	}
}

type balanceResponse struct {
	StoreID uuid.UUID `json:"store_id"`
	Balance int64     `json:"balance"`
}

func StoreBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.CurrentBalance(r.Context(), storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{StoreID: storeID, Balance: balance})
	}
}

// StoreStatement returns one calendar month; ?month=YYYY-MM defaults to the current month.
func StoreStatement(svc ledger.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		month, err := validators.ParseQueryMonth(r, "month", loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var at time.Time
		if month != nil {
			at = *month
		}

		statement, err := svc.Statement(r.Context(), storeID, at)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statement)
	}
}

// ListLedgerTransactions pages through postings, newest first.
func ListLedgerTransactions(svc ledger.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var filter ledger.ListFilter
		storeID, err := validators.ParseQueryUUID(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.StoreID = storeID

		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			txType, err := enums.ParseLedgerTransactionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type"))
				return
			}
			filter.Type = &txType
		}
		if filter.From, err = validators.ParseQueryDate(r, "from", loc); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.To, err = validators.ParseQueryDate(r, "to", loc); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListTransactions(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
