package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fjod/qrorder/internal/domain"
	"github.com/shopspring/decimal"
)

var ErrInvalidMenuItem = errors.New("invalid menu item")

// MenuItemInput is the admin form for creating or updating a menu item.
type MenuItemInput struct {
	Name        string
	Price       decimal.Decimal
	Category    string
	Description string
	Available   bool
	Image       *Upload
}

// Validate normalises the category and checks required fields. requireImage is
// set for creation, where the backend needs an image upload.
func (in *MenuItemInput) Validate(requireImage bool) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMenuItem)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidMenuItem)
	}
	if in.Category == "" {
		in.Category = domain.DefaultCategory
	}
	if !domain.IsKnownCategory(in.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidMenuItem, in.Category)
	}
	if requireImage && (in.Image == nil || len(in.Image.Data) == 0) {
		return fmt.Errorf("%w: image is required", ErrInvalidMenuItem)
	}
	return nil
}

func (in MenuItemInput) fields() []formField {
	return []formField{
		{"name", in.Name},
		{"price", in.Price.String()},
		{"category", in.Category},
		{"description", in.Description},
		{"available", strconv.FormatBool(in.Available)},
	}
}

func (c *Client) ListMenu(ctx context.Context) ([]domain.MenuItem, error) {
	var resp struct {
		Items []domain.MenuItem `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/menu", "", nil, &resp); err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}
	return resp.Items, nil
}

func (c *Client) GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error) {
	var resp struct {
		Item *domain.MenuItem `json:"item"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/menu/"+url.PathEscape(id), "", nil, &resp); err != nil {
		return nil, fmt.Errorf("get menu item %s: %w", id, err)
	}
	if resp.Item == nil {
		return nil, fmt.Errorf("get menu item %s: %w", id, ErrNotFound)
	}
	return resp.Item, nil
}

func (c *Client) CreateMenuItem(ctx context.Context, token string, in MenuItemInput) (*domain.MenuItem, error) {
	if err := in.Validate(true); err != nil {
		return nil, err
	}
	var resp struct {
		MenuItem *domain.MenuItem `json:"menuItem"`
	}
	if err := c.doMultipart(ctx, http.MethodPost, "/api/menu/add", token, in.fields(), in.Image, &resp); err != nil {
		return nil, fmt.Errorf("create menu item: %w", err)
	}
	if resp.MenuItem == nil {
		return nil, fmt.Errorf("create menu item: %w: missing menuItem", ErrMalformedResponse)
	}
	return resp.MenuItem, nil
}

// UpdateMenuItem replaces the item's fields; the image is only sent when set.
func (c *Client) UpdateMenuItem(ctx context.Context, token, id string, in MenuItemInput) error {
	if err := in.Validate(false); err != nil {
		return err
	}
	path := "/api/menu/update/" + url.PathEscape(id)
	if err := c.doMultipart(ctx, http.MethodPut, path, token, in.fields(), in.Image, nil); err != nil {
		return fmt.Errorf("update menu item %s: %w", id, err)
	}
	return nil
}

func (c *Client) DeleteMenuItem(ctx context.Context, token, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/menu/"+url.PathEscape(id), token, nil, nil); err != nil {
		return fmt.Errorf("delete menu item %s: %w", id, err)
	}
	return nil
}

func (c *Client) SetAvailability(ctx context.Context, token, id string, available bool) error {
	body := map[string]bool{"available": available}
	path := "/api/menu/" + url.PathEscape(id) + "/availability"
	if err := c.doJSON(ctx, http.MethodPatch, path, token, body, nil); err != nil {
		return fmt.Errorf("set availability of %s: %w", id, err)
	}
	return nil
}
