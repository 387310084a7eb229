package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"scalex/domain/orderbook"
)

// statusFor maps the matching error taxonomy onto HTTP statuses.
// Validation failures are 400, policy rejections 422, authorization 403,
// lookups 404, funding 402, paused pools 503.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orderbook.ErrInvalidPrice),
		errors.Is(err, orderbook.ErrInvalidQuantity),
		errors.Is(err, orderbook.ErrInvalidPriceIncrement),
		errors.Is(err, orderbook.ErrInvalidQuantityIncrement),
		errors.Is(err, orderbook.ErrOrderTooSmall),
		errors.Is(err, orderbook.ErrOrderTooLarge),
		errors.Is(err, orderbook.ErrIdenticalCurrencies):
		return http.StatusBadRequest

	case errors.Is(err, orderbook.ErrFillOrKillNotFulfilled),
		errors.Is(err, orderbook.ErrPostOnlyWouldTake),
		errors.Is(err, orderbook.ErrSlippageExceeded):
		return http.StatusUnprocessableEntity

	case errors.Is(err, orderbook.ErrTradingPaused):
		return http.StatusServiceUnavailable

	case errors.Is(err, orderbook.ErrUnauthorizedCancellation),
		errors.Is(err, orderbook.ErrUnauthorizedOperator):
		return http.StatusForbidden

	case errors.Is(err, orderbook.ErrPoolNotFound),
		errors.Is(err, orderbook.ErrOrderNotFound),
		errors.Is(err, orderbook.ErrQueueEmpty):
		return http.StatusNotFound

	case errors.Is(err, orderbook.ErrOrderIsNotOpen):
		return http.StatusConflict

	case errors.Is(err, orderbook.ErrInsufficientBalance),
		errors.Is(err, orderbook.ErrInsufficientHealthFactor),
		errors.Is(err, orderbook.ErrBorrowFailed),
		errors.Is(err, orderbook.ErrRepayFailed):
		return http.StatusPaymentRequired

	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
