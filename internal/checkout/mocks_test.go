package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/qrorder/internal/cart"
	"github.com/fjod/qrorder/internal/domain"
	"github.com/fjod/qrorder/internal/gateway"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MockBackend implements Backend for testing
type MockBackend struct {
	mu        sync.Mutex
	Session   domain.PaymentSession
	CreateErr error
	Verified  bool
	VerifyErr error
	// VerifyGate, when set, holds VerifyPayment until closed.
	VerifyGate    chan struct{}
	VerifyStarted chan struct{}

	drafts      []domain.OrderDraft
	completions []domain.PaymentCompletion
}

func (m *MockBackend) CreateOrder(_ context.Context, draft domain.OrderDraft) (domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts = append(m.drafts, draft)
	if m.CreateErr != nil {
		return domain.PaymentSession{}, m.CreateErr
	}
	return m.Session, nil
}

func (m *MockBackend) VerifyPayment(_ context.Context, _ domain.PaymentSession, c domain.PaymentCompletion) (bool, error) {
	m.mu.Lock()
	m.completions = append(m.completions, c)
	gate, started := m.VerifyGate, m.VerifyStarted
	verified, err := m.Verified, m.VerifyErr
	m.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	return verified, err
}

func (m *MockBackend) Drafts() []domain.OrderDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderDraft(nil), m.drafts...)
}

func (m *MockBackend) Completions() []domain.PaymentCompletion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PaymentCompletion(nil), m.completions...)
}

// MockLoader implements gateway.ScriptLoader for testing
type MockLoader struct {
	mu    sync.Mutex
	Err   error
	calls int
}

func (m *MockLoader) Load(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.Err
}

func (m *MockLoader) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// MockReceiptStore implements ReceiptStore for testing
type MockReceiptStore struct {
	Saved chan domain.Receipt
	Err   error
}

func (m *MockReceiptStore) SaveReceipt(_ context.Context, r domain.Receipt) error {
	m.Saved <- r
	return m.Err
}

var fixedNow = time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)

type fixture struct {
	cart     *cart.Store
	backend  *MockBackend
	loader   *MockLoader
	widget   *gateway.HostedWidget
	receipts *MockReceiptStore
	flow     *Flow
}

// newFixture wires a Flow over the 250 scenario cart: A 100x2, B 50x1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		cart: cart.New(
			domain.CartItem{ID: "A", Name: "Thali", UnitPrice: decimal.NewFromInt(100), Quantity: 2},
			domain.CartItem{ID: "B", Name: "Chai", UnitPrice: decimal.NewFromInt(50), Quantity: 1},
		),
		backend: &MockBackend{
			Session: domain.PaymentSession{
				GatewayOrderID: "order_1",
				Amount:         25000,
				Currency:       "INR",
				LocalOrderID:   "db-1",
			},
			Verified: true,
		},
		loader:   &MockLoader{},
		widget:   gateway.NewHostedWidget(zerolog.Nop()),
		receipts: &MockReceiptStore{Saved: make(chan domain.Receipt, 4)},
	}
	fx.flow = NewFlow(fx.cart, fx.backend, fx.loader, fx.widget,
		WithReceiptStore(fx.receipts),
		WithWidgetConfig(gateway.Config{Key: "rzp_test_key"}),
		WithClock(func() time.Time { return fixedNow }),
	)
	t.Cleanup(fx.flow.Cancel)
	return fx
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
