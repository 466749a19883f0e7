package handler

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/calculojuridico/revisional-go/internal/domain"
	"github.com/calculojuridico/revisional-go/internal/service"
)

// calculationRequest is the wire form of a calculation. The loan-type
// payload arrives as a tagged union: loan_type names the variant and
// exactly one of the payload objects must be present.
type calculationRequest struct {
	domain.CalculationInput
	LoanType   string                     `json:"loan_type"`
	Consumer   *domain.ConsumerLoanData   `json:"consumer,omitempty"`
	RealEstate *domain.RealEstateLoanData `json:"real_estate,omitempty"`
	CreditCard *domain.CreditCardData     `json:"credit_card,omitempty"`
}

// input resolves the tagged union into the normalized input record.
func (r *calculationRequest) input() (*domain.CalculationInput, error) {
	in := r.CalculationInput
	switch r.LoanType {
	case "consumer":
		if r.Consumer == nil {
			return nil, &domain.ErrValidation{Field: "consumer", Message: "payload missing for loan_type consumer"}
		}
		in.LoanData = r.Consumer
	case "real_estate":
		if r.RealEstate == nil {
			return nil, &domain.ErrValidation{Field: "real_estate", Message: "payload missing for loan_type real_estate"}
		}
		in.LoanData = r.RealEstate
	case "credit_card":
		if r.CreditCard == nil {
			return nil, &domain.ErrValidation{Field: "credit_card", Message: "payload missing for loan_type credit_card"}
		}
		in.LoanData = r.CreditCard
	case "":
		return nil, &domain.ErrValidation{Field: "loan_type", Message: "is required"}
	default:
		return nil, &domain.ErrUnknownLoanType{Kind: domain.LoanKind(r.LoanType)}
	}
	return &in, nil
}

func decodeCalculation(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*domain.CalculationInput, bool) {
	var req calculationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	in, err := req.input()
	if err != nil {
		handleServiceError(w, err, logger)
		return nil, false
	}
	return in, true
}

// previewHandler runs the lightweight viability check.
// POST /v1/calculations/preview
func previewHandler(svc *service.CalculationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.preview")
		defer span.End()

		in, ok := decodeCalculation(w, r, logger)
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("loan.kind", string(in.LoanData.Kind())))

		result, err := svc.Preview(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// calculateHandler runs the full calculation with every scenario table.
// POST /v1/calculations/full
func calculateHandler(svc *service.CalculationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.calculate")
		defer span.End()

		in, ok := decodeCalculation(w, r, logger)
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("loan.kind", string(in.LoanData.Kind())))

		result, err := svc.Calculate(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// appendixRequest extends the calculation body with the manual per-line
// corrections of the detailed report.
type appendixRequest struct {
	calculationRequest
	Overrides []service.AppendixOverride `json:"overrides,omitempty"`
}

// appendicesHandler runs the long-form expert-report calculation.
// POST /v1/calculations/appendices
func appendicesHandler(svc *service.CalculationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "handler.appendices")
		defer span.End()

		var req appendixRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		in, err := req.input()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("loan.kind", string(in.LoanData.Kind())),
			attribute.Int("overrides", len(req.Overrides)),
		)

		result, err := svc.CalculateDetailed(ctx, in, req.Overrides)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
