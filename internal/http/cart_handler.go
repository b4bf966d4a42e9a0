package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/qrorder/internal/cart"
	"github.com/fjod/qrorder/internal/domain"
	"github.com/fjod/qrorder/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var ErrItemUnavailable = errors.New("menu item is not available")

type CartHandler struct {
	menu     MenuReader
	timeout  time.Duration
	upgrader websocket.Upgrader
}

func NewCartHandler(menu MenuReader, timeout time.Duration) *CartHandler {
	return &CartHandler{
		menu:    menu,
		timeout: timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type AddItemRequestDTO struct {
	MenuItemID string `json:"menuItemId"`
	Quantity   int    `json:"quantity"`
}

// UpdateQuantityRequestDTO requires quantity; an explicit 0 removes the line.
type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type CartResponseDTO struct {
	Items   []domain.CartItem `json:"items"`
	Count   int               `json:"count"`
	Total   decimal.Decimal   `json:"total"`
	Version uint64            `json:"version"`
}

type CartCountDTO struct {
	Count int `json:"count"`
}

func cartResponse(snap cart.Snapshot) CartResponseDTO {
	items := snap.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponseDTO{
		Items:   items,
		Count:   snap.Count,
		Total:   snap.Total,
		Version: snap.Version,
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, cartResponse(s.Cart.Snapshot()))
}

// GET /api/v1/cart/count
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, CartCountDTO{Count: s.Cart.Len()})
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.MenuItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_menu_item_id", "menuItemId is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	// Prices always come from the menu, never from the client.
	item, err := h.menu.GetMenuItem(ctx, req.MenuItemID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !item.Available {
		respondError(w, http.StatusConflict, "item_unavailable", ErrItemUnavailable.Error())
		return
	}

	s := sessionFromContext(r.Context())
	if err := s.Cart.Add(item.CartItem(req.Quantity), req.Quantity); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, cartResponse(s.Cart.Snapshot()))
}

// PUT /api/v1/cart/items/{id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "quantity is required")
		return
	}

	s := sessionFromContext(r.Context())
	if err := s.Cart.UpdateQuantity(chi.URLParam(r, "id"), *req.Quantity); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(s.Cart.Snapshot()))
}

// DELETE /api/v1/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if err := s.Cart.Remove(chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(s.Cart.Snapshot()))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if s.Cart.Held() {
		handleError(w, r, cart.ErrCartHeld)
		return
	}
	s.Cart.Clear()
	respondJSON(w, http.StatusOK, cartResponse(s.Cart.Snapshot()))
}

// GET /api/v1/cart/ws
//
// Streams a cart snapshot on connect and after every mutation until the
// browser goes away.
func (h *CartHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	s := sessionFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := make(chan cart.Snapshot, 16)
	unsubscribe := s.Cart.Subscribe(func(snap cart.Snapshot) {
		select {
		case updates <- snap:
		default:
			// Slow reader: drop, the next snapshot supersedes this one.
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(cartResponse(s.Cart.Snapshot())); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(cartResponse(snap)); err != nil {
				log.Debug().Err(err).Msg("cart subscriber gone")
				return
			}
		}
	}
}
