// Package dashboard derives the business metrics behind the dashboard
// page: revenue windows, sale counts, best sellers, stock alerts and
// ticket averages. Results are cached per metric; write paths clear the
// cache through the shared Cache reference.
package dashboard

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"storemate/m/domain"
	"storemate/m/internal/cache"
)

const (
	metricTTL = time.Minute
	// Inventory value walks the whole products table and changes
	// slowly, so it stays cached longer.
	inventoryTTL = 5 * time.Minute
)

// Service computes dashboard aggregates. Each method returns an explicit
// error; the route layer decides how a failed widget degrades.
type Service struct {
	db    *sqlx.DB
	cache *cache.Cache
	now   func() time.Time
}

// NewService constructs a Service around the shared DB and result cache.
func NewService(db *sqlx.DB, c *cache.Cache) *Service {
	return &Service{db: db, cache: c, now: time.Now}
}

// Revenue reports revenue for today, the current month and the previous
// month, plus the month-over-month change in percent.
func (s *Service) Revenue() (RevenueSummary, error) {
	return cache.GetOrCompute(s.cache, "dashboard:revenue", metricTTL, func() (RevenueSummary, error) {
		now := s.now()
		thisMonth := monthStart(now)
		prevMonth := monthStart(thisMonth.AddDate(0, 0, -1))

		today, _, err := s.salesTotals(dayStart(now), now)
		if err != nil {
			return RevenueSummary{}, err
		}
		month, _, err := s.salesTotals(thisMonth, now)
		if err != nil {
			return RevenueSummary{}, err
		}
		previous, _, err := s.salesTotals(prevMonth, thisMonth.Add(-time.Millisecond))
		if err != nil {
			return RevenueSummary{}, err
		}

		return RevenueSummary{
			Today:         today,
			Month:         month,
			PreviousMonth: previous,
			PercentChange: percentChange(month, previous),
		}, nil
	})
}

// SalesCounts reports how many sales closed today and yesterday.
func (s *Service) SalesCounts() (SalesCountSummary, error) {
	return cache.GetOrCompute(s.cache, "dashboard:sales_counts", metricTTL, func() (SalesCountSummary, error) {
		now := s.now()
		yesterday := now.AddDate(0, 0, -1)

		_, today, err := s.salesTotals(dayStart(now), dayEnd(now))
		if err != nil {
			return SalesCountSummary{}, err
		}
		_, prior, err := s.salesTotals(dayStart(yesterday), dayEnd(yesterday))
		if err != nil {
			return SalesCountSummary{}, err
		}

		return SalesCountSummary{Today: today, Yesterday: prior, Delta: today - prior}, nil
	})
}

// BestSeller returns the product with the highest quantity sold, or nil
// when nothing was sold yet.
func (s *Service) BestSeller() (*ProductSales, error) {
	return cache.GetOrCompute(s.cache, "dashboard:best_seller", metricTTL, func() (*ProductSales, error) {
		items, err := s.loadSaleItems()
		if err != nil {
			return nil, err
		}
		ranked := rankProducts(items)
		if len(ranked) == 0 {
			return nil, nil
		}
		top := ranked[0]
		top.Name = s.productName(top.ProductID)
		return &top, nil
	})
}

// TopProducts returns the n best-selling products by quantity, with the
// revenue each brought in.
func (s *Service) TopProducts(n int) ([]ProductSales, error) {
	key := fmt.Sprintf("dashboard:top_products:%d", n)
	return cache.GetOrCompute(s.cache, key, metricTTL, func() ([]ProductSales, error) {
		items, err := s.loadSaleItems()
		if err != nil {
			return nil, err
		}
		ranked := rankProducts(items)
		if len(ranked) > n {
			ranked = ranked[:n]
		}
		for i := range ranked {
			ranked[i].Name = s.productName(ranked[i].ProductID)
		}
		return ranked, nil
	})
}

// LowStock lists products at or below the quantity threshold, lowest
// stock first, capped at maxResults.
func (s *Service) LowStock(threshold float64, maxResults int) ([]LowStockProduct, error) {
	key := fmt.Sprintf("dashboard:low_stock:%v:%d", threshold, maxResults)
	return cache.GetOrCompute(s.cache, key, metricTTL, func() ([]LowStockProduct, error) {
		var out []LowStockProduct
		err := s.db.Select(&out,
			`SELECT id, name, quantity, unit FROM products WHERE quantity <= $1 ORDER BY quantity ASC LIMIT $2`,
			threshold, maxResults)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = []LowStockProduct{}
		}
		return out, nil
	})
}

type expiringRow struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	ExpiryDate time.Time `db:"expiry_date"`
	Quantity   float64   `db:"quantity"`
	Unit       string    `db:"unit"`
}

// Expiring lists in-stock products whose expiry date falls within the
// next daysAhead days, soonest first.
func (s *Service) Expiring(daysAhead int) ([]ExpiringProduct, error) {
	key := fmt.Sprintf("dashboard:expiring:%d", daysAhead)
	return cache.GetOrCompute(s.cache, key, metricTTL, func() ([]ExpiringProduct, error) {
		now := s.now()
		from := dayStart(now)
		to := from.AddDate(0, 0, daysAhead)

		var rows []expiringRow
		err := s.db.Select(&rows,
			`SELECT id, name, expiry_date, quantity, unit FROM products
			 WHERE expiry_date IS NOT NULL AND expiry_date >= $1 AND expiry_date <= $2 AND quantity > 0
			 ORDER BY expiry_date ASC`,
			from, to)
		if err != nil {
			return nil, err
		}

		out := make([]ExpiringProduct, 0, len(rows))
		for _, row := range rows {
			out = append(out, ExpiringProduct{
				ID:         row.ID,
				Name:       row.Name,
				ExpiryDate: row.ExpiryDate.Format("2006-01-02"),
				DaysLeft:   daysUntil(row.ExpiryDate, now),
				Quantity:   row.Quantity,
				Unit:       row.Unit,
			})
		}
		return out, nil
	})
}

// InventoryValue sums quantity times cost price over every product.
func (s *Service) InventoryValue() (float64, error) {
	return cache.GetOrCompute(s.cache, "dashboard:inventory_value", inventoryTTL, func() (float64, error) {
		var total float64
		err := s.db.Get(&total,
			`SELECT COALESCE(SUM(quantity * COALESCE(cost_price, 0)), 0) FROM products`)
		return total, err
	})
}

// AverageTicket reports the mean sale value for today and for the
// current month. Periods without sales yield 0.
func (s *Service) AverageTicket() (TicketSummary, error) {
	return cache.GetOrCompute(s.cache, "dashboard:average_ticket", metricTTL, func() (TicketSummary, error) {
		now := s.now()

		dayRevenue, dayCount, err := s.salesTotals(dayStart(now), now)
		if err != nil {
			return TicketSummary{}, err
		}
		monthRevenue, monthCount, err := s.salesTotals(monthStart(now), now)
		if err != nil {
			return TicketSummary{}, err
		}

		var out TicketSummary
		if dayCount > 0 {
			out.Today = dayRevenue / float64(dayCount)
		}
		if monthCount > 0 {
			out.Month = monthRevenue / float64(monthCount)
		}
		return out, nil
	})
}

// SalesLastNDays buckets revenue per calendar day over the trailing
// days window, today included. Days without sales are present with 0.
func (s *Service) SalesLastNDays(days int) ([]DailyRevenue, error) {
	key := fmt.Sprintf("dashboard:last_days:%d", days)
	return cache.GetOrCompute(s.cache, key, metricTTL, func() ([]DailyRevenue, error) {
		now := s.now()
		from := dayStart(now.AddDate(0, 0, -(days - 1)))

		var rows []domain.Sale
		err := s.db.Select(&rows,
			`SELECT sold_at, total FROM sales WHERE sold_at >= $1 ORDER BY sold_at ASC`, from)
		if err != nil {
			return nil, err
		}
		return bucketByDay(rows, days, now), nil
	})
}

// salesTotals returns summed revenue and row count for sales inside the
// window, both bounds inclusive.
func (s *Service) salesTotals(from, to time.Time) (float64, int, error) {
	var (
		total float64
		count int
	)
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(total), 0), COUNT(*) FROM sales WHERE sold_at >= $1 AND sold_at <= $2`,
		from, to).Scan(&total, &count)
	if err != nil {
		return 0, 0, err
	}
	return total, count, nil
}

func (s *Service) loadSaleItems() ([]domain.SaleItem, error) {
	var items []domain.SaleItem
	err := s.db.Select(&items, `SELECT product_id, quantity, unit_price FROM sale_items`)
	return items, err
}

func (s *Service) productName(id int64) string {
	var name string
	if err := s.db.Get(&name, `SELECT name FROM products WHERE id = $1`, id); err != nil {
		return "Unknown product"
	}
	return name
}
