package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fjod/qrorder/internal/auth"
	"github.com/fjod/qrorder/internal/backend"
	"github.com/fjod/qrorder/internal/cache"
	"github.com/fjod/qrorder/internal/cart"
	"github.com/fjod/qrorder/internal/checkout"
	"github.com/fjod/qrorder/internal/domain"
	"github.com/fjod/qrorder/internal/gateway"
	"github.com/fjod/qrorder/internal/repository"
	"github.com/fjod/qrorder/internal/session"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "admin-token"

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// MockBackend implements AdminBackend and checkout.Backend for testing
type MockBackend struct {
	mu sync.Mutex

	Menu      []domain.MenuItem
	ListErr   error
	Session   domain.PaymentSession
	CreateErr error
	Verified  bool
	VerifyErr error
	AdminProfile  domain.AdminProfile
	LoginErr  error
	MutateErr error

	created      []backend.MenuItemInput
	updated      map[string]backend.MenuItemInput
	deleted      []string
	availability map[string]bool
	emailChanges []string
	otps         []string
	tokens       []string
}

func (m *MockBackend) ListMenu(context.Context) ([]domain.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]domain.MenuItem(nil), m.Menu...), nil
}

func (m *MockBackend) GetMenuItem(_ context.Context, id string) (*domain.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.Menu {
		if item.ID == id {
			item := item
			return &item, nil
		}
	}
	return nil, backend.ErrNotFound
}

func (m *MockBackend) CreateMenuItem(_ context.Context, token string, in backend.MenuItemInput) (*domain.MenuItem, error) {
	if err := in.Validate(true); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	if m.MutateErr != nil {
		return nil, m.MutateErr
	}
	m.created = append(m.created, in)
	item := domain.MenuItem{ID: "new", Name: in.Name, Price: in.Price, Category: in.Category, Available: in.Available}
	m.Menu = append(m.Menu, item)
	return &item, nil
}

func (m *MockBackend) UpdateMenuItem(_ context.Context, token, id string, in backend.MenuItemInput) error {
	if err := in.Validate(false); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	if m.MutateErr != nil {
		return m.MutateErr
	}
	if m.updated == nil {
		m.updated = make(map[string]backend.MenuItemInput)
	}
	m.updated[id] = in
	return nil
}

func (m *MockBackend) DeleteMenuItem(_ context.Context, token, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	if m.MutateErr != nil {
		return m.MutateErr
	}
	m.deleted = append(m.deleted, id)
	for i, item := range m.Menu {
		if item.ID == id {
			m.Menu = append(m.Menu[:i], m.Menu[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockBackend) SetAvailability(_ context.Context, token, id string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	if m.availability == nil {
		m.availability = make(map[string]bool)
	}
	m.availability[id] = available
	for i := range m.Menu {
		if m.Menu[i].ID == id {
			m.Menu[i].Available = available
		}
	}
	return nil
}

func (m *MockBackend) Login(_ context.Context, email, password string) (string, error) {
	if m.LoginErr != nil {
		return "", m.LoginErr
	}
	if email != "admin@example.com" || password != "secret" {
		return "", &backend.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	}
	return testAdminToken, nil
}

func (m *MockBackend) Profile(_ context.Context, token string) (domain.AdminProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	return m.AdminProfile, nil
}

func (m *MockBackend) UpdateProfile(_ context.Context, token string, in backend.ProfileInput) (domain.AdminProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, token)
	m.AdminProfile.Name = in.Name
	m.AdminProfile.Mobile = in.Mobile
	if in.Image != nil {
		m.AdminProfile.Image = "/uploads/" + in.Image.Filename
	}
	return m.AdminProfile, nil
}

func (m *MockBackend) RequestEmailChange(_ context.Context, token, newEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailChanges = append(m.emailChanges, newEmail)
	return nil
}

func (m *MockBackend) VerifyEmailChange(_ context.Context, token, otp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if otp != "123456" {
		return backend.ErrRejected
	}
	m.otps = append(m.otps, otp)
	if n := len(m.emailChanges); n > 0 {
		m.AdminProfile.Email = m.emailChanges[n-1]
	}
	return nil
}

func (m *MockBackend) CreateOrder(context.Context, domain.OrderDraft) (domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return domain.PaymentSession{}, m.CreateErr
	}
	return m.Session, nil
}

func (m *MockBackend) VerifyPayment(context.Context, domain.PaymentSession, domain.PaymentCompletion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Verified, m.VerifyErr
}

func (m *MockBackend) set(f func(m *MockBackend)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(m)
}

type MockLoader struct{}

func (MockLoader) Load(context.Context) error { return nil }

// MockReceipts implements checkout.ReceiptStore and ReceiptReader for testing
type MockReceipts struct {
	mu       sync.Mutex
	receipts map[string]domain.Receipt
}

func (m *MockReceipts) SaveReceipt(_ context.Context, r domain.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.receipts == nil {
		m.receipts = make(map[string]domain.Receipt)
	}
	m.receipts[r.PaymentID] = r
	return nil
}

func (m *MockReceipts) GetReceipt(_ context.Context, paymentID string) (*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[paymentID]
	if !ok {
		return nil, repository.ErrReceiptNotFound
	}
	return &r, nil
}

type MockGate struct{}

func (MockGate) Check(_ context.Context, token string) (auth.Claims, error) {
	if token != testAdminToken {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return auth.Claims{AdminID: "admin-1"}, nil
}

type testServer struct {
	t        *testing.T
	backend  *MockBackend
	receipts *MockReceipts
	widget   *gateway.HostedWidget
	sessions *session.Registry
	handler  http.Handler
	cookie   *http.Cookie
}

func testMenu() []domain.MenuItem {
	return []domain.MenuItem{
		{ID: "paneer", Name: "Paneer Tikka", Price: decimal.NewFromInt(100), Category: "Starter", Available: true},
		{ID: "naan", Name: "Garlic Naan", Price: decimal.NewFromInt(50), Category: "Main Course", Available: true},
		{ID: "kulfi", Name: "Kulfi", Price: decimal.NewFromInt(80), Category: "Dessert", Available: false},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mb := &MockBackend{
		Menu: testMenu(),
		Session: domain.PaymentSession{
			GatewayOrderID: "order_1",
			Amount:         25000,
			Currency:       "INR",
			LocalOrderID:   "db-1",
		},
		Verified: true,
		AdminProfile: domain.AdminProfile{Name: "Owner", Mobile: "9999999999", Email: "admin@example.com"},
	}
	receipts := &MockReceipts{}
	widget := gateway.NewHostedWidget(zerolog.Nop())
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	registry := session.NewRegistry(cache.Nop{}, func(store *cart.Store) *checkout.Flow {
		return checkout.NewFlow(store, mb, MockLoader{}, widget,
			checkout.WithReceiptStore(receipts),
			checkout.WithWidgetConfig(gateway.Config{Key: "rzp_test_key"}),
			checkout.WithClock(now),
		)
	})

	ts := &testServer{
		t:        t,
		backend:  mb,
		receipts: receipts,
		widget:   widget,
		sessions: registry,
	}
	ts.handler = NewRouter(Deps{
		Sessions:      registry,
		Backend:       mb,
		Widget:        widget,
		Receipts:      receipts,
		Gate:          MockGate{},
		Logger:        zerolog.Nop(),
		ContactEmail:  "help@bhojanqr.test",
		Timeout:       2 * time.Second,
		MaxUploadSize: 1 << 20,
	})
	return ts
}

// do sends a JSON request, carrying the session cookie issued by earlier calls.
func (ts *testServer) do(method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	ts.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return ts.serve(req)
}

func (ts *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	if ts.cookie != nil {
		req.AddCookie(ts.cookie)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookie {
			ts.cookie = c
		}
	}
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
