package domain

import "github.com/shopspring/decimal"

const DefaultCategory = "Main Course"

var Categories = []string{"Main Course", "Starter", "Dessert", "Beverage"}

type MenuItem struct {
	ID          string          `json:"_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"imageUrl"`
	Available   bool            `json:"available"`
}

// CartItem converts the menu item into a cart line with the given quantity.
func (m MenuItem) CartItem(quantity int) CartItem {
	return CartItem{
		ID:        m.ID,
		Name:      m.Name,
		UnitPrice: m.Price,
		ImageURL:  m.ImageURL,
		Quantity:  quantity,
	}
}

func IsKnownCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

type AdminProfile struct {
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	Image  string `json:"image"`
	Email  string `json:"email,omitempty"`
}
