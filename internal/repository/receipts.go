package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/qrorder/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EventOrderConfirmed = "OrderConfirmed"

// OrderConfirmedEvent is the outbox payload published for every verified payment.
type OrderConfirmedEvent struct {
	EventID      string            `json:"event_id"`
	PaymentID    string            `json:"payment_id"`
	LocalOrderID string            `json:"local_order_id"`
	CustomerName string            `json:"customer_name"`
	TableNumber  string            `json:"table_number"`
	Items        []domain.CartItem `json:"items"`
	Total        decimal.Decimal   `json:"total"`
	PaidAt       string            `json:"paid_at"`
}

// SaveReceipt stores the receipt and its OrderConfirmed outbox event in one
// transaction. A second receipt for the same payment is ErrDuplicateReceipt.
func (r *Repository) SaveReceipt(ctx context.Context, receipt domain.Receipt) error {
	itemsJSON, err := json.Marshal(receipt.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt items: %w", err)
	}
	payload, err := json.Marshal(OrderConfirmedEvent{
		EventID:      uuid.NewString(),
		PaymentID:    receipt.PaymentID,
		LocalOrderID: receipt.LocalOrderID,
		CustomerName: receipt.CustomerName,
		TableNumber:  receipt.TableNumber,
		Items:        receipt.Items,
		Total:        receipt.Total,
		PaidAt:       receipt.PaidAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, r.rebind(
		`INSERT INTO receipts (payment_id, gateway_order_id, local_order_id, customer_name, table_number, items, total, paid_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (payment_id) DO NOTHING`),
		receipt.PaymentID,
		receipt.GatewayOrderID,
		receipt.LocalOrderID,
		receipt.CustomerName,
		receipt.TableNumber,
		string(itemsJSON),
		receipt.Total,
		r.timeArg(receipt.PaidAt),
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateReceipt
	}

	_, err = tx.ExecContext(ctx, r.rebind(
		`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`),
		receipt.PaymentID,
		EventOrderConfirmed,
		string(payload),
		r.timeArg(r.now()),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit receipt: %w", err)
	}
	return nil
}

func (r *Repository) GetReceipt(ctx context.Context, paymentID string) (*domain.Receipt, error) {
	query := r.rebind(`SELECT payment_id, gateway_order_id, local_order_id, customer_name, table_number, items, total, paid_at
	          FROM receipts WHERE payment_id = ?`)

	var receipt domain.Receipt
	var itemsJSON []byte
	var paidAt dbTime
	err := r.db.QueryRowContext(ctx, query, paymentID).Scan(
		&receipt.PaymentID,
		&receipt.GatewayOrderID,
		&receipt.LocalOrderID,
		&receipt.CustomerName,
		&receipt.TableNumber,
		&itemsJSON,
		&receipt.Total,
		&paidAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query receipt by payment id: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &receipt.Items); err != nil {
		return nil, fmt.Errorf("unmarshal receipt items: %w", err)
	}
	receipt.PaidAt = paidAt.Time
	return &receipt, nil
}
