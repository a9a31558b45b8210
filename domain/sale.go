package domain

import "time"

type Sale struct {
	ID            int64     `db:"id" json:"id"`
	SoldAt        time.Time `db:"sold_at" json:"sold_at"`
	Total         float64   `db:"total" json:"total"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`
}

type SaleItem struct {
	ID        int64   `db:"id" json:"id"`
	SaleID    int64   `db:"sale_id" json:"sale_id"`
	ProductID int64   `db:"product_id" json:"product_id"`
	Quantity  float64 `db:"quantity" json:"quantity"`
	UnitPrice float64 `db:"unit_price" json:"unit_price"`
	Subtotal  float64 `db:"subtotal" json:"subtotal"`
}

// CartItem is one line of a sale as submitted by the POS screen. The
// name travels with the item so error messages can refer to it without
// another lookup.
type CartItem struct {
	ProductID int64   `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  float64 `json:"quantity"`
}
