package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/lensdist-backend/api/responses"
	"github.com/angelmondragon/lensdist-backend/api/validators"
	"github.com/angelmondragon/lensdist-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

type quoteRequest struct {
	StoreID uuid.UUID `json:"store_id" validate:"required"`
	Lines   []struct {
		ProductID uuid.UUID `json:"product_id" validate:"required"`
		Quantity  int       `json:"quantity" validate:"required,min=1"`
	} `json:"lines" validate:"required,min=1,max=200,dive"`
}

// PricingQuote prices a basket for a store without posting anything.
func PricingQuote(svc pricing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]pricing.QuoteLine, 0, len(payload.Lines))
		for _, line := range payload.Lines {
			lines = append(lines, pricing.QuoteLine{ProductID: line.ProductID, Quantity: line.Quantity})
		}

		quote, err := svc.Quote(r.Context(), payload.StoreID, lines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
