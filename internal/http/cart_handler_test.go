package http

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/qrorder/internal/cart"
	"github.com/fjod/qrorder/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItem_UsesMenuPrice(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "paneer", Quantity: 2})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decodeBody[CartResponseDTO](t, rr)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Paneer Tikka", resp.Items[0].Name)
	assert.True(t, decimal.NewFromInt(100).Equal(resp.Items[0].UnitPrice))
	assert.Equal(t, 1, resp.Count)
	assert.True(t, decimal.NewFromInt(200).Equal(resp.Total))
}

func TestAddItem_DefaultsToOne(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan"})

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 1, decodeBody[CartResponseDTO](t, rr).Items[0].Quantity)
}

func TestAddItem_SameItemMerges(t *testing.T) {
	ts := newTestServer(t)

	ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan", Quantity: 1})
	rr := ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan", Quantity: 2})

	resp := decodeBody[CartResponseDTO](t, rr)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 3, resp.Items[0].Quantity)
}

func TestAddItem_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{"unavailable item", AddItemRequestDTO{MenuItemID: "kulfi", Quantity: 1}, http.StatusConflict, "item_unavailable"},
		{"unknown item", AddItemRequestDTO{MenuItemID: "nope", Quantity: 1}, http.StatusNotFound, "not_found"},
		{"missing id", AddItemRequestDTO{Quantity: 1}, http.StatusBadRequest, "invalid_menu_item_id"},
		{"negative quantity", AddItemRequestDTO{MenuItemID: "naan", Quantity: -1}, http.StatusBadRequest, "invalid_argument"},
		{"unknown field", map[string]interface{}{"menuItemId": "naan", "price": 1}, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rr := ts.do(http.MethodPost, "/api/v1/cart/items", tt.body)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, tt.wantErr, decodeBody[ErrorResponse](t, rr).Code)

			cart := decodeBody[CartResponseDTO](t, ts.do(http.MethodGet, "/api/v1/cart", nil))
			assert.Empty(t, cart.Items)
		})
	}
}

func TestSessionCookie(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, ts.cookie)
	first := ts.cookie.Value
	assert.True(t, ts.cookie.HttpOnly)

	ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan"})
	assert.Equal(t, first, ts.cookie.Value)
	assert.Equal(t, 1, ts.sessions.Len())

	// A fresh browser gets its own empty cart.
	other := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	other.AddCookie(&http.Cookie{Name: SessionCookie, Value: "not-a-uuid"})
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, other)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[CartResponseDTO](t, rec).Items)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, first, rec.Result().Cookies()[0].Value)
}

func quantity(n int) UpdateQuantityRequestDTO {
	return UpdateQuantityRequestDTO{Quantity: &n}
}

func TestUpdateQuantity(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "paneer", Quantity: 1})

	rr := ts.do(http.MethodPut, "/api/v1/cart/items/paneer", quantity(4))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 4, decodeBody[CartResponseDTO](t, rr).Items[0].Quantity)

	rr = ts.do(http.MethodPut, "/api/v1/cart/items/paneer", quantity(0))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeBody[CartResponseDTO](t, rr).Items)

	rr = ts.do(http.MethodPut, "/api/v1/cart/items/paneer", quantity(2))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateQuantity_RequiresQuantity(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"null", `{"quantity":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "paneer", Quantity: 3})

			req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/paneer", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := ts.serve(req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "invalid_request", decodeBody[ErrorResponse](t, rr).Code)

			got := decodeBody[CartResponseDTO](t, ts.do(http.MethodGet, "/api/v1/cart", nil))
			require.Len(t, got.Items, 1)
			assert.Equal(t, 3, got.Items[0].Quantity)
		})
	}
}

func TestCartQuantityLimit(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan", Quantity: math.MaxInt})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_argument", decodeBody[ErrorResponse](t, rr).Code)

	rr = ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan", Quantity: cart.MaxLineQuantity})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan", Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_argument", decodeBody[ErrorResponse](t, rr).Code)

	rr = ts.do(http.MethodPut, "/api/v1/cart/items/naan", quantity(cart.MaxLineQuantity+1))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	resp := decodeBody[CartResponseDTO](t, ts.do(http.MethodGet, "/api/v1/cart", nil))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, cart.MaxLineQuantity, resp.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(50*cart.MaxLineQuantity).Equal(resp.Total))
}

func TestCartLockedDuringCheckout(t *testing.T) {
	ts := newTestServer(t)
	fillCart(t, ts)
	startCheckout(t, ts)

	writes := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"add", http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan", Quantity: 1}},
		{"update", http.MethodPut, "/api/v1/cart/items/paneer", quantity(5)},
		{"remove", http.MethodDelete, "/api/v1/cart/items/naan", nil},
		{"clear", http.MethodDelete, "/api/v1/cart", nil},
	}
	for _, w := range writes {
		rr := ts.do(w.method, w.path, w.body)
		assert.Equal(t, http.StatusConflict, rr.Code, w.name)
		assert.Equal(t, "cart_locked", decodeBody[ErrorResponse](t, rr).Code, w.name)
	}

	resp := decodeBody[CartResponseDTO](t, ts.do(http.MethodGet, "/api/v1/cart", nil))
	assert.True(t, decimal.NewFromInt(250).Equal(resp.Total))

	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/v1/checkout/dismiss", nil).Code)
	rr := ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan", Quantity: 1})
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestRemoveAndClear(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "paneer", Quantity: 1})
	ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan", Quantity: 3})

	rr := ts.do(http.MethodGet, "/api/v1/cart/count", nil)
	assert.Equal(t, 2, decodeBody[CartCountDTO](t, rr).Count)

	rr = ts.do(http.MethodDelete, "/api/v1/cart/items/paneer", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody[CartResponseDTO](t, rr)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "naan", resp.Items[0].ID)

	// Removing an absent item is a no-op.
	rr = ts.do(http.MethodDelete, "/api/v1/cart/items/paneer", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(http.MethodDelete, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp = decodeBody[CartResponseDTO](t, rr)
	assert.Empty(t, resp.Items)
	assert.True(t, resp.Total.IsZero())
}

func TestCartSubscribe(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/api/v1/cart", nil)
	require.NotNil(t, ts.cookie)

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	header := http.Header{}
	header.Set("Cookie", ts.cookie.String())
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/cart/ws", header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var snap CartResponseDTO
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Empty(t, snap.Items)

	ts.do(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{MenuItemID: "naan", Quantity: 2})

	require.NoError(t, conn.ReadJSON(&snap))
	require.Len(t, snap.Items, 1)
	assert.Equal(t, domain.CartItem{
		ID:        "naan",
		Name:      "Garlic Naan",
		UnitPrice: snap.Items[0].UnitPrice,
		Quantity:  2,
	}, snap.Items[0])
	assert.True(t, decimal.NewFromInt(100).Equal(snap.Total))
	assert.Equal(t, 1, snap.Count)
}
