package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-bakery-orders/internal/orders"
	"go.uber.org/zap"
)

type errorResp struct {
	Error     string            `json:"error"`
	Message   string            `json:"message,omitempty"`
	Conflicts []orders.Conflict `json:"conflicts,omitempty"`
}

// writeError maps the engine's error taxonomy to HTTP. transitionCode differs
// per endpoint: confirm-payment answers 409, the rest 400.
func writeError(w http.ResponseWriter, r *http.Request, err error, transitionCode int) {
	var sc *orders.StockConflictError
	switch {
	case errors.As(err, &sc):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "insufficient_stock", Conflicts: sc.Conflicts})
	case errors.Is(err, orders.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "validation_error", Message: err.Error()})
	case errors.Is(err, orders.ErrInvalidCoupon):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid_coupon", Message: err.Error()})
	case errors.Is(err, orders.ErrExpiredCoupon):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "expired_coupon", Message: err.Error()})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: "not_found"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, transitionCode, errorResp{Error: "invalid_transition", Message: err.Error()})
	default:
		// detail internal hanya ke log
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal_error"})
	}
}
