package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/qrorder/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ReceiptReader interface {
	GetReceipt(ctx context.Context, paymentID string) (*domain.Receipt, error)
}

type OrdersHandler struct {
	receipts     ReceiptReader
	contactEmail string
	timeout      time.Duration
}

func NewOrdersHandler(receipts ReceiptReader, contactEmail string, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		receipts:     receipts,
		contactEmail: contactEmail,
		timeout:      timeout,
	}
}

// GET /api/v1/orders/{paymentId}
func (h *OrdersHandler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	paymentID := chi.URLParam(r, "paymentId")
	if paymentID == "" {
		respondError(w, http.StatusBadRequest, "invalid_payment_id", "payment id is required")
		return
	}

	receipt, err := h.receipts.GetReceipt(ctx, paymentID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ReceiptResponseDTO{
		Receipt:      *receipt,
		OrderToken:   receipt.PaymentID,
		ContactEmail: h.contactEmail,
	})
}
