package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/lensdist-backend/api/responses"
	"github.com/angelmondragon/lensdist-backend/api/validators"
	"github.com/angelmondragon/lensdist-backend/internal/receivables"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

// ListReceivables returns one row per store. hasDebt, overLimit and overdue
// only narrow the result; inactive stores are included unless active=true.
func ListReceivables(svc receivables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receivables service unavailable"))
			return
		}

		var (
			filter receivables.ListFilter
			err    error
		)
		for key, dest := range map[string]*bool{
			"hasDebt":   &filter.HasDebt,
			"overLimit": &filter.OverLimit,
			"overdue":   &filter.Overdue,
			"active":    &filter.ActiveOnly,
		} {
			if *dest, err = validators.ParseQueryBool(r, key); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if filter.GroupID, err = validators.ParseQueryUUID(r, "groupId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// ReceivablesSummary aggregates the listed stores, or every active store when
// storeIds is absent. from/to bound the deposit window and default to this month.
func ReceivablesSummary(svc receivables.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receivables service unavailable"))
			return
		}

		storeIDs, err := validators.ParseQueryUUIDList(r, "storeIds")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryDate(r, "from", loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryDate(r, "to", loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if (from == nil) != (to == nil) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be given together"))
			return
		}

		var period receivables.Period
		if from != nil {
			if !to.After(*from) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "to must be after from"))
				return
			}
			period = receivables.Period{From: *from, To: *to}
		}

		summary, err := svc.Summarize(r.Context(), storeIDs, period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func StoreReceivable(svc receivables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receivables service unavailable"))
			return
		}

		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.StoreStatus(r.Context(), storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
