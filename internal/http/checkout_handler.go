package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/qrorder/internal/checkout"
	"github.com/fjod/qrorder/internal/domain"
	"github.com/fjod/qrorder/internal/gateway"
)

// PaymentWidget receives the outcome the browser reports from the hosted
// payment window.
type PaymentWidget interface {
	Complete(orderID string, completion domain.PaymentCompletion) error
	Dismiss(orderID string) error
}

type CheckoutHandler struct {
	widget       PaymentWidget
	contactEmail string
	timeout      time.Duration
}

func NewCheckoutHandler(widget PaymentWidget, contactEmail string, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		widget:       widget,
		contactEmail: contactEmail,
		timeout:      timeout,
	}
}

type StartCheckoutResponseDTO struct {
	State   domain.CheckoutState `json:"state"`
	Attempt uint64               `json:"attempt"`
	Options gateway.Options      `json:"options"`
}

type ReceiptResponseDTO struct {
	domain.Receipt
	OrderToken   string `json:"orderToken"`
	ContactEmail string `json:"contactEmail,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req checkout.Details
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	flow := sessionFromContext(r.Context()).Checkout
	opts, err := flow.Start(ctx, req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, StartCheckoutResponseDTO{
		State:   flow.State(),
		Attempt: flow.Status().Attempt,
		Options: opts,
	})
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	flow := sessionFromContext(r.Context()).Checkout
	respondJSON(w, http.StatusOK, flow.Status())
}

// POST /api/v1/checkout/complete
//
// Hands the widget's payment result to the flow and waits for server-side
// verification. The response is 200 once the attempt has settled and 202 if
// verification is still running when the request times out.
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req domain.PaymentCompletion
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.GatewayPaymentID == "" || req.GatewaySignature == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "gatewayPaymentId and gatewaySignature are required")
		return
	}

	flow := sessionFromContext(r.Context()).Checkout
	session, ok := flow.Session()
	if !ok || flow.State() != domain.CheckoutStateAwaitingPayment {
		handleError(w, r, gateway.ErrWidgetNotOpen)
		return
	}
	if err := h.widget.Complete(session.GatewayOrderID, req); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondSettled(ctx, w, flow)
}

// POST /api/v1/checkout/dismiss
func (h *CheckoutHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	flow := sessionFromContext(r.Context()).Checkout
	session, ok := flow.Session()
	if !ok || flow.State() != domain.CheckoutStateAwaitingPayment {
		handleError(w, r, gateway.ErrWidgetNotOpen)
		return
	}
	if err := h.widget.Dismiss(session.GatewayOrderID); err != nil {
		handleError(w, r, err)
		return
	}
	h.respondSettled(ctx, w, flow)
}

// DELETE /api/v1/checkout
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	flow := sessionFromContext(r.Context()).Checkout
	flow.Cancel()
	respondJSON(w, http.StatusOK, flow.Status())
}

func (h *CheckoutHandler) respondSettled(ctx context.Context, w http.ResponseWriter, flow *checkout.Flow) {
	status, err := flow.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		respondJSON(w, http.StatusAccepted, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GET /api/v1/checkout/receipt
func (h *CheckoutHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	receipt, ok := sessionFromContext(r.Context()).Checkout.Receipt()
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "no confirmed order in this session")
		return
	}
	respondJSON(w, http.StatusOK, ReceiptResponseDTO{
		Receipt:      receipt,
		OrderToken:   receipt.PaymentID,
		ContactEmail: h.contactEmail,
	})
}

// GET /api/v1/checkout/receipt/invoice
func (h *CheckoutHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	receipt, ok := sessionFromContext(r.Context()).Checkout.Receipt()
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "no confirmed order in this session")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=invoice_%s.txt", receipt.PaymentID))
	if err := writeInvoice(w, receipt, h.contactEmail); err != nil {
		handleError(w, r, err)
	}
}
