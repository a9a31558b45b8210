// Package sales owns the point-of-sale write path and sale lookups. A
// sale is recorded inside one transaction: header insert, conditional
// stock decrements and item inserts either all land or none do.
package sales

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"storemate/m/domain"
	"storemate/m/internal/cache"
)

var (
	ErrEmptyCart   = errors.New("cart is empty")
	ErrMissingUser = errors.New("user id is required")
)

// InsufficientStockError reports the first cart line whose requested
// quantity exceeds the stock on hand.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q", e.ProductName)
}

// ProductNotFoundError reports a cart line naming a product id that
// does not exist.
type ProductNotFoundError struct {
	ProductID   int64
	ProductName string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %q not found", e.ProductName)
}

// Service records and reads sales.
type Service struct {
	db    *sqlx.DB
	cache *cache.Cache
	now   func() time.Time
}

// NewService constructs a Service. The cache is cleared after every
// recorded sale so dashboard aggregates pick up the new rows.
func NewService(db *sqlx.DB, c *cache.Cache) *Service {
	return &Service{db: db, cache: c, now: time.Now}
}

// Record writes a sale and its items, decrementing product stock. The
// decrement is conditional (quantity >= requested), so two concurrent
// sales of the same product cannot oversell: the loser sees zero rows
// affected and the whole transaction rolls back.
func (s *Service) Record(cart []domain.CartItem, paymentMethod string, userID int64) (int64, float64, error) {
	if userID <= 0 {
		return 0, 0, ErrMissingUser
	}
	if len(cart) == 0 {
		return 0, 0, ErrEmptyCart
	}

	var total float64
	for _, item := range cart {
		total += item.UnitPrice * item.Quantity
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	var saleID int64
	err = tx.QueryRow(
		`INSERT INTO sales (sold_at, total, payment_method) VALUES ($1, $2, $3) RETURNING id`,
		s.now(), total, paymentMethod).Scan(&saleID)
	if err != nil {
		return 0, 0, err
	}

	for _, item := range cart {
		res, err := tx.Exec(
			`UPDATE products SET quantity = quantity - $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND quantity >= $1`,
			item.Quantity, item.ProductID)
		if err != nil {
			return 0, 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, 0, err
		}
		if affected == 0 {
			// zero rows means either not enough stock or no such
			// product; re-check in the same transaction to tell them
			// apart
			var exists bool
			if err := tx.Get(&exists, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, item.ProductID); err != nil {
				return 0, 0, err
			}
			if !exists {
				return 0, 0, &ProductNotFoundError{ProductID: item.ProductID, ProductName: item.Name}
			}
			return 0, 0, &InsufficientStockError{ProductID: item.ProductID, ProductName: item.Name}
		}

		_, err = tx.Exec(
			`INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, subtotal) VALUES ($1, $2, $3, $4, $5)`,
			saleID, item.ProductID, item.Quantity, item.UnitPrice, item.UnitPrice*item.Quantity)
		if err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	s.cache.Clear()
	return saleID, total, nil
}

// List returns sales newest first, plus the exact total row count for
// pagination.
func (s *Service) List(limit, offset int) ([]domain.Sale, int, error) {
	var total int
	if err := s.db.Get(&total, `SELECT COUNT(*) FROM sales`); err != nil {
		return nil, 0, err
	}

	var out []domain.Sale
	err := s.db.Select(&out,
		`SELECT id, sold_at, total, payment_method FROM sales ORDER BY sold_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if out == nil {
		out = []domain.Sale{}
	}
	return out, total, nil
}

// ItemDetail is a sale line joined with the product it references.
type ItemDetail struct {
	ID          int64   `db:"id" json:"id"`
	ProductID   int64   `db:"product_id" json:"product_id"`
	ProductName string  `db:"product_name" json:"product_name"`
	Quantity    float64 `db:"quantity" json:"quantity"`
	Unit        string  `db:"unit" json:"unit"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
	Subtotal    float64 `db:"subtotal" json:"subtotal"`
}

// SaleDetail is a sale with its items.
type SaleDetail struct {
	domain.Sale
	Items []ItemDetail `json:"items"`
}

// Get loads one sale and its items. Missing sales surface as
// sql.ErrNoRows.
func (s *Service) Get(id int64) (SaleDetail, error) {
	var detail SaleDetail
	err := s.db.Get(&detail.Sale,
		`SELECT id, sold_at, total, payment_method FROM sales WHERE id = $1`, id)
	if err != nil {
		return SaleDetail{}, err
	}

	err = s.db.Select(&detail.Items,
		`SELECT si.id, si.product_id, COALESCE(p.name, 'Unknown product') AS product_name,
		        si.quantity, COALESCE(p.unit, '') AS unit, si.unit_price, si.subtotal
		 FROM sale_items si
		 LEFT JOIN products p ON p.id = si.product_id
		 WHERE si.sale_id = $1
		 ORDER BY si.id`, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return SaleDetail{}, err
	}
	if detail.Items == nil {
		detail.Items = []ItemDetail{}
	}
	return detail, nil
}
