package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/qrorder/internal/domain"
	"github.com/go-chi/chi/v5"
)

type MenuReader interface {
	ListMenu(ctx context.Context) ([]domain.MenuItem, error)
	GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error)
}

type MenuHandler struct {
	menu    MenuReader
	timeout time.Duration
}

func NewMenuHandler(menu MenuReader, timeout time.Duration) *MenuHandler {
	return &MenuHandler{
		menu:    menu,
		timeout: timeout,
	}
}

type MenuResponseDTO struct {
	Items      []domain.MenuItem `json:"items"`
	Categories []string          `json:"categories"`
	Empty      bool              `json:"empty"`
}

// GET /api/v1/menu?category=Starter&all=true
func (h *MenuHandler) ListMenu(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.menu.ListMenu(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}

	category := r.URL.Query().Get("category")
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	respondJSON(w, http.StatusOK, menuResponse(filterMenu(items, category, all)))
}

// GET /api/v1/menu/{id}
func (h *MenuHandler) GetMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	item, err := h.menu.GetMenuItem(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func filterMenu(items []domain.MenuItem, category string, includeUnavailable bool) []domain.MenuItem {
	out := make([]domain.MenuItem, 0, len(items))
	for _, item := range items {
		if !includeUnavailable && !item.Available {
			continue
		}
		if category != "" && item.Category != category {
			continue
		}
		out = append(out, item)
	}
	return out
}

func menuResponse(items []domain.MenuItem) MenuResponseDTO {
	if items == nil {
		items = []domain.MenuItem{}
	}
	return MenuResponseDTO{
		Items:      items,
		Categories: domain.Categories,
		Empty:      len(items) == 0,
	}
}
