package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderDraft is submitted once to the backend to obtain a pending order.
// A retried checkout builds a new draft.
type OrderDraft struct {
	CustomerName string          `json:"customerName"`
	TableNumber  string          `json:"tableNumber"`
	Items        []CartItem      `json:"items"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
}

func NewOrderDraft(customerName, tableNumber string, items []CartItem) OrderDraft {
	snapshot := make([]CartItem, len(items))
	copy(snapshot, items)
	return OrderDraft{
		CustomerName: customerName,
		TableNumber:  tableNumber,
		Items:        snapshot,
		TotalPrice:   TotalOf(snapshot),
	}
}

// PaymentSession is the gateway handle for one hosted payment widget interaction.
// Amount is in the currency's smallest unit.
type PaymentSession struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	LocalOrderID   string `json:"localOrderId"`
}

// Charges reports whether the session amount equals total in minor units.
func (s PaymentSession) Charges(total decimal.Decimal) bool {
	return decimal.NewFromInt(s.Amount).Equal(total.Shift(2))
}

// PaymentCompletion is what the hosted widget reports when the customer pays.
// It is untrusted until the backend verifies the signature.
type PaymentCompletion struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	GatewaySignature string `json:"gatewaySignature"`
}

// Receipt is the confirmation record of a verified payment.
type Receipt struct {
	PaymentID      string          `json:"paymentId"`
	GatewayOrderID string          `json:"gatewayOrderId"`
	LocalOrderID   string          `json:"localOrderId"`
	CustomerName   string          `json:"customerName"`
	TableNumber    string          `json:"tableNumber"`
	Items          []CartItem      `json:"items"`
	Total          decimal.Decimal `json:"total"`
	PaidAt         time.Time       `json:"paidAt"`
}
