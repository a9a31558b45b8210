package domain

import "time"

type Product struct {
	ID         int64      `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	CostPrice  *float64   `db:"cost_price" json:"cost_price,omitempty"`
	SalePrice  float64    `db:"sale_price" json:"sale_price"`
	Quantity   float64    `db:"quantity" json:"quantity"`
	Unit       string     `db:"unit" json:"unit"`
	ExpiryDate *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	Barcode    *int64     `db:"barcode" json:"barcode,omitempty"`
	SupplierID *int64     `db:"supplier_id" json:"supplier_id,omitempty"`
	CreatedAt  string     `db:"created_at" json:"created_at"`
	UpdatedAt  string     `db:"updated_at" json:"updated_at"`
}
