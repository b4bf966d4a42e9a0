package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/qrorder/internal/auth"
	"github.com/fjod/qrorder/internal/backend"
	"github.com/fjod/qrorder/internal/cart"
	"github.com/fjod/qrorder/internal/checkout"
	"github.com/fjod/qrorder/internal/gateway"
	"github.com/fjod/qrorder/internal/repository"
	"github.com/fjod/qrorder/pkg/logger"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log := logger.FromContext(context.Background())
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps component errors onto HTTP statuses. Every failure leaves
// the client with a retryable message.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		httpStatus int
		code       string
		message    = err.Error()
		details    string
	)

	var failure *checkout.Failure
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &failure):
		httpStatus, code, message, details = http.StatusBadGateway, "checkout_failed", failure.Reason, string(failure.Stage)
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrTableNumberRequired),
		errors.Is(err, checkout.ErrCustomerNameRequired):
		httpStatus, code = http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, checkout.ErrCheckoutInProgress), errors.Is(err, checkout.ErrAttemptAbandoned):
		httpStatus, code = http.StatusConflict, "checkout_conflict"
	case errors.Is(err, cart.ErrCartHeld):
		httpStatus, code = http.StatusConflict, "cart_locked"
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidItem),
		errors.Is(err, backend.ErrInvalidMenuItem):
		httpStatus, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, cart.ErrItemNotFound), errors.Is(err, backend.ErrNotFound),
		errors.Is(err, repository.ErrReceiptNotFound):
		httpStatus, code = http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired), errors.Is(err, backend.ErrUnauthorized):
		httpStatus, code, message = http.StatusUnauthorized, "unauthenticated", "session expired, please log in again"
	case errors.Is(err, backend.ErrRejected):
		httpStatus, code = http.StatusBadRequest, "rejected"
	case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
		httpStatus, code = http.StatusBadRequest, "rejected"
	case errors.Is(err, gateway.ErrWidgetNotOpen), errors.Is(err, gateway.ErrOrderMismatch):
		httpStatus, code = http.StatusConflict, "no_pending_payment"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code, message = http.StatusGatewayTimeout, "timeout", "request timed out, please try again"
	case errors.Is(err, backend.ErrUnavailable), errors.Is(err, gateway.ErrScriptUnavailable):
		httpStatus, code, message = http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable, please try again"
	case errors.Is(err, backend.ErrMalformedResponse):
		httpStatus, code, message = http.StatusBadGateway, "bad_gateway", "unexpected response from server, please try again"
	default:
		httpStatus, code, message = http.StatusInternalServerError, "internal_error", "internal server error"
	}
	if errors.As(err, &apiErr) && apiErr.Message != "" && httpStatus < http.StatusInternalServerError {
		message = apiErr.Message
	}

	log := logger.FromContext(r.Context())
	if httpStatus >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", httpStatus).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", httpStatus).Msg("request rejected")
	}
	respondJSON(w, httpStatus, ErrorResponse{Error: message, Code: code, Details: details})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
