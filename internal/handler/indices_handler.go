package handler

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/port"
)

var refMonthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

type indexRateResponse struct {
	Index string          `json:"index"`
	Month string          `json:"month"`
	Rate  decimal.Decimal `json:"rate"`
}

// indexRateHandler exposes the resolved monthly rate of a correction or
// benchmark index, mostly for frontend date pickers and debugging.
// GET /v1/indices/{index}?month=YYYY-MM
func indexRateHandler(rates port.RateHistoryProvider, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index := chi.URLParam(r, "index")
		month := r.URL.Query().Get("month")
		if !refMonthPattern.MatchString(month) {
			handleServiceError(w, &domain.ErrValidation{Field: "month", Message: "must be YYYY-MM"}, logger)
			return
		}

		rate, err := rates.Rate(r.Context(), index, month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, indexRateResponse{Index: index, Month: month, Rate: rate})
	}
}
