package domain

type Supplier struct {
	ID        int64    `db:"id" json:"id"`
	TradeName string   `db:"trade_name" json:"trade_name"`
	Email     *string  `db:"email" json:"email,omitempty"`
	Phone     *string  `db:"phone" json:"phone,omitempty"`
	City      *string  `db:"city" json:"city,omitempty"`
	State     *string  `db:"state" json:"state,omitempty"`
	Address   *string  `db:"address" json:"address,omitempty"`
	District  *string  `db:"district" json:"district,omitempty"`
	ZipCode   *string  `db:"zip_code" json:"zip_code,omitempty"`
	Freight   *float64 `db:"freight" json:"freight,omitempty"`
	Active    bool     `db:"active" json:"active"`
	CreatedAt string   `db:"created_at" json:"created_at"`
}
