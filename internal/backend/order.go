package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/qrorder/internal/domain"
)

type orderItemDTO struct {
	MenuItem string  `json:"menuItem"`
	Quantity int     `json:"quantity"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"imageUrl"`
}

type createOrderRequestDTO struct {
	CustomerName string         `json:"customerName"`
	TableNumber  string         `json:"tableNumber"`
	Items        []orderItemDTO `json:"items"`
	TotalPrice   float64        `json:"totalPrice"`
}

type createOrderResponseDTO struct {
	RazorpayOrderID string      `json:"razorpayOrderId"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	OrderDBID       string      `json:"orderDBId"`
}

// CreateOrder submits the draft and returns the gateway session the hosted
// widget needs. Responses missing any session field are ErrMalformedResponse.
func (c *Client) CreateOrder(ctx context.Context, draft domain.OrderDraft) (domain.PaymentSession, error) {
	req := createOrderRequestDTO{
		CustomerName: draft.CustomerName,
		TableNumber:  draft.TableNumber,
		Items:        make([]orderItemDTO, len(draft.Items)),
		TotalPrice:   draft.TotalPrice.InexactFloat64(),
	}
	for i, item := range draft.Items {
		req.Items[i] = orderItemDTO{
			MenuItem: item.ID,
			Quantity: item.Quantity,
			Name:     item.Name,
			Price:    item.UnitPrice.InexactFloat64(),
			ImageURL: item.ImageURL,
		}
	}

	var resp createOrderResponseDTO
	if err := c.doJSON(ctx, http.MethodPost, "/api/order/create-order", "", req, &resp); err != nil {
		return domain.PaymentSession{}, fmt.Errorf("create order: %w", err)
	}

	session, err := resp.session()
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("create order: %w", err)
	}
	return session, nil
}

func (r createOrderResponseDTO) session() (domain.PaymentSession, error) {
	if r.RazorpayOrderID == "" || r.OrderDBID == "" || r.Currency == "" {
		return domain.PaymentSession{}, fmt.Errorf("%w: incomplete gateway session", ErrMalformedResponse)
	}
	amount, err := r.Amount.Int64()
	if err != nil || amount <= 0 {
		return domain.PaymentSession{}, fmt.Errorf("%w: invalid amount %q", ErrMalformedResponse, r.Amount)
	}
	return domain.PaymentSession{
		GatewayOrderID: r.RazorpayOrderID,
		Amount:         amount,
		Currency:       r.Currency,
		LocalOrderID:   r.OrderDBID,
	}, nil
}

type verifyPaymentRequestDTO struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	OrderDBID         string `json:"orderDBId"`
}

type verifyPaymentResponseDTO struct {
	Success  bool `json:"success"`
	Verified bool `json:"verified"`
}

// VerifyPayment asks the backend to check the gateway signature. A 400 answer
// is a rejection, not a transport failure.
func (c *Client) VerifyPayment(ctx context.Context, session domain.PaymentSession, completion domain.PaymentCompletion) (bool, error) {
	req := verifyPaymentRequestDTO{
		RazorpayOrderID:   session.GatewayOrderID,
		RazorpayPaymentID: completion.GatewayPaymentID,
		RazorpaySignature: completion.GatewaySignature,
		OrderDBID:         session.LocalOrderID,
	}

	var resp verifyPaymentResponseDTO
	err := c.doJSON(ctx, http.MethodPost, "/api/order/verify-payment", "", req, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verify payment: %w", err)
	}
	return resp.Success || resp.Verified, nil
}
