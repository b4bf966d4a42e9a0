package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/qrorder/internal/domain"
	"github.com/rs/zerolog"
)

var (
	ErrWidgetNotOpen = errors.New("no payment widget open for this order")
	ErrOrderMismatch = errors.New("payment completion is for a different order")
)

const (
	DefaultStoreName   = "BhojanQR Order"
	DefaultDescription = "Order Payment"
	DefaultThemeColor  = "#f97316"
)

// Config holds the merchant-level widget settings.
type Config struct {
	Key         string
	ScriptURL   string
	StoreName   string
	Description string
	ThemeColor  string
}

// Options is everything the browser needs to open the hosted checkout.
type Options struct {
	Key          string `json:"key"`
	ScriptURL    string `json:"scriptUrl"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	OrderID      string `json:"orderId"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	PrefillName  string `json:"prefillName"`
	ThemeColor   string `json:"themeColor"`
	LocalOrderID string `json:"localOrderId"`
}

func NewOptions(cfg Config, session domain.PaymentSession, customerName string) Options {
	opts := Options{
		Key:          cfg.Key,
		ScriptURL:    cfg.ScriptURL,
		Amount:       session.Amount,
		Currency:     session.Currency,
		OrderID:      session.GatewayOrderID,
		Name:         cfg.StoreName,
		Description:  cfg.Description,
		PrefillName:  customerName,
		ThemeColor:   cfg.ThemeColor,
		LocalOrderID: session.LocalOrderID,
	}
	if opts.Name == "" {
		opts.Name = DefaultStoreName
	}
	if opts.Description == "" {
		opts.Description = DefaultDescription
	}
	if opts.ThemeColor == "" {
		opts.ThemeColor = DefaultThemeColor
	}
	return opts
}

type EventKind int

const (
	EventCompleted EventKind = iota + 1
	EventDismissed
)

func (k EventKind) String() string {
	switch k {
	case EventCompleted:
		return "completed"
	case EventDismissed:
		return "dismissed"
	}
	return "unknown"
}

// Event is the single outcome of an open widget. Completion is only set for
// EventCompleted and is untrusted until verified by the backend.
type Event struct {
	Kind       EventKind
	Completion domain.PaymentCompletion
}

// Widget opens hosted checkouts. Every channel returned by Open receives at
// most one Event.
type Widget interface {
	Open(ctx context.Context, opts Options) (<-chan Event, error)
	Close(orderID string)
}

// HostedWidget brokers widget outcomes reported by the browser back to the
// checkout that opened the widget, keyed by gateway order id.
type HostedWidget struct {
	mu      sync.Mutex
	pending map[string]chan Event
	logger  zerolog.Logger
}

func NewHostedWidget(logger zerolog.Logger) *HostedWidget {
	return &HostedWidget{
		pending: make(map[string]chan Event),
		logger:  logger,
	}
}

func (w *HostedWidget) Open(_ context.Context, opts Options) (<-chan Event, error) {
	if opts.OrderID == "" {
		return nil, fmt.Errorf("open widget: missing order id")
	}
	ch := make(chan Event, 1)

	w.mu.Lock()
	old, exists := w.pending[opts.OrderID]
	w.pending[opts.OrderID] = ch
	w.mu.Unlock()

	if exists {
		old <- Event{Kind: EventDismissed}
	}
	w.logger.Debug().Str("gateway_order_id", opts.OrderID).Msg("payment widget opened")
	return ch, nil
}

// Complete delivers the widget's success callback.
func (w *HostedWidget) Complete(orderID string, completion domain.PaymentCompletion) error {
	if completion.GatewayOrderID == "" {
		completion.GatewayOrderID = orderID
	}
	if completion.GatewayOrderID != orderID {
		return ErrOrderMismatch
	}
	return w.deliver(orderID, Event{Kind: EventCompleted, Completion: completion})
}

// Dismiss reports that the customer closed the widget without paying.
func (w *HostedWidget) Dismiss(orderID string) error {
	return w.deliver(orderID, Event{Kind: EventDismissed})
}

func (w *HostedWidget) Close(orderID string) {
	w.mu.Lock()
	delete(w.pending, orderID)
	w.mu.Unlock()
}

func (w *HostedWidget) IsOpen(orderID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.pending[orderID]
	return ok
}

func (w *HostedWidget) deliver(orderID string, ev Event) error {
	w.mu.Lock()
	ch, ok := w.pending[orderID]
	if ok {
		delete(w.pending, orderID)
	}
	w.mu.Unlock()

	if !ok {
		return ErrWidgetNotOpen
	}
	ch <- ev
	w.logger.Debug().Str("gateway_order_id", orderID).Stringer("event", ev.Kind).Msg("payment widget event")
	return nil
}
