package dashboard

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"storemate/m/internal/cache"
)

const totalsQuery = `SELECT COALESCE(SUM(total), 0), COUNT(*) FROM sales WHERE sold_at >= $1 AND sold_at <= $2`

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	s := NewService(sqlx.NewDb(mockDB, "pgx"), cache.New(0))
	s.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }
	return s, mock
}

func expectTotals(mock sqlmock.Sqlmock, total float64, count int) {
	mock.ExpectQuery(regexp.QuoteMeta(totalsQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(total, count))
}

// expectTotalsWindow additionally pins the window bounds the service
// passes to the totals query.
func expectTotalsWindow(mock sqlmock.Sqlmock, from, to time.Time, total float64, count int) {
	mock.ExpectQuery(regexp.QuoteMeta(totalsQuery)).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(total, count))
}

func TestRevenuePercentChangeWithEmptyPreviousMonth(t *testing.T) {
	s, mock := newTestService(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	expectTotalsWindow(mock, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), now, 20, 2)
	expectTotalsWindow(mock, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), now, 100, 9)
	expectTotalsWindow(mock,
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 28, 23, 59, 59, 999000000, time.UTC),
		0, 0)

	got, err := s.Revenue()
	if err != nil {
		t.Fatalf("Revenue: %v", err)
	}
	if got.Today != 20 || got.Month != 100 || got.PreviousMonth != 0 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if got.PercentChange != 0 {
		t.Fatalf("percent change = %v, want 0 when previous month is empty", got.PercentChange)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevenueIsCached(t *testing.T) {
	s, mock := newTestService(t)

	expectTotals(mock, 20, 2)
	expectTotals(mock, 100, 9)
	expectTotals(mock, 80, 7)

	first, err := s.Revenue()
	if err != nil {
		t.Fatalf("Revenue: %v", err)
	}
	// second call must not touch the database
	second, err := s.Revenue()
	if err != nil {
		t.Fatalf("cached Revenue: %v", err)
	}
	if first != second {
		t.Fatalf("cached result differs: %+v vs %+v", first, second)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevenueQueryFailureIsReturnedAndNotCached(t *testing.T) {
	s, mock := newTestService(t)

	dbErr := errors.New("connection refused")
	mock.ExpectQuery(regexp.QuoteMeta(totalsQuery)).WillReturnError(dbErr)

	if _, err := s.Revenue(); err == nil {
		t.Fatal("expected error from failed query")
	}

	// the failure was not stored: a retry hits the database again
	expectTotals(mock, 20, 2)
	expectTotals(mock, 100, 9)
	expectTotals(mock, 80, 7)
	got, err := s.Revenue()
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Month != 100 {
		t.Fatalf("retry summary %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAverageTicketZeroSales(t *testing.T) {
	s, mock := newTestService(t)

	expectTotals(mock, 0, 0) // today
	expectTotals(mock, 0, 0) // month

	got, err := s.AverageTicket()
	if err != nil {
		t.Fatalf("AverageTicket: %v", err)
	}
	if got.Today != 0 || got.Month != 0 {
		t.Fatalf("ticket = %+v, want zeros without division error", got)
	}
}

func TestAverageTicketDividesByCount(t *testing.T) {
	s, mock := newTestService(t)

	expectTotals(mock, 90, 3)
	expectTotals(mock, 500, 20)

	got, err := s.AverageTicket()
	if err != nil {
		t.Fatalf("AverageTicket: %v", err)
	}
	if got.Today != 30 || got.Month != 25 {
		t.Fatalf("ticket = %+v, want {30 25}", got)
	}
}

func TestSalesCounts(t *testing.T) {
	s, mock := newTestService(t)

	expectTotalsWindow(mock,
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 23, 59, 59, 999000000, time.UTC),
		0, 8)
	expectTotalsWindow(mock,
		time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 9, 23, 59, 59, 999000000, time.UTC),
		0, 5)

	got, err := s.SalesCounts()
	if err != nil {
		t.Fatalf("SalesCounts: %v", err)
	}
	if got.Today != 8 || got.Yesterday != 5 || got.Delta != 3 {
		t.Fatalf("counts = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBestSellerGroupsItems(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT product_id, quantity, unit_price FROM sale_items`)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "unit_price"}).
			AddRow(int64(1), 3.0, 10.0).
			AddRow(int64(2), 5.0, 4.0).
			AddRow(int64(1), 1.0, 10.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM products WHERE id = $1`)).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Banana"))

	got, err := s.BestSeller()
	if err != nil {
		t.Fatalf("BestSeller: %v", err)
	}
	if got == nil || got.ProductID != 2 || got.Quantity != 5 || got.Name != "Banana" {
		t.Fatalf("best seller = %+v, want product 2 x5", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBestSellerWithoutSales(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT product_id, quantity, unit_price FROM sale_items`)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "unit_price"}))

	got, err := s.BestSeller()
	if err != nil {
		t.Fatalf("BestSeller: %v", err)
	}
	if got != nil {
		t.Fatalf("best seller = %+v, want nil when no sales exist", got)
	}
}

func TestLowStockPassesThresholdAndCap(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, quantity, unit FROM products WHERE quantity <= $1 ORDER BY quantity ASC LIMIT $2`)).
		WithArgs(10.0, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "quantity", "unit"}).
			AddRow(int64(4), "Rice 5kg", 1.0, "un").
			AddRow(int64(9), "Beans 1kg", 3.0, "un"))

	got, err := s.LowStock(10, 5)
	if err != nil {
		t.Fatalf("LowStock: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Rice 5kg" || got[1].Quantity != 3 {
		t.Fatalf("low stock = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExpiringComputesDaysLeft(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectQuery("SELECT id, name, expiry_date, quantity, unit FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "expiry_date", "quantity", "unit"}).
			AddRow(int64(3), "Milk 1L", time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), 6.0, "un"))

	got, err := s.Expiring(30)
	if err != nil {
		t.Fatalf("Expiring: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d products, want 1", len(got))
	}
	if got[0].DaysLeft != 2 || got[0].ExpiryDate != "2026-03-12" {
		t.Fatalf("expiring = %+v, want 2 days left on 2026-03-12", got[0])
	}
}

func TestInventoryValue(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(quantity \\* COALESCE\\(cost_price, 0\\)\\), 0\\) FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1234.5))

	got, err := s.InventoryValue()
	if err != nil {
		t.Fatalf("InventoryValue: %v", err)
	}
	if got != 1234.5 {
		t.Fatalf("inventory value = %v, want 1234.5", got)
	}
}

func TestSalesLastNDaysZeroFills(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT sold_at, total FROM sales WHERE sold_at >= $1 ORDER BY sold_at ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"sold_at", "total"}).
			AddRow(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC), 40.0))

	got, err := s.SalesLastNDays(3)
	if err != nil {
		t.Fatalf("SalesLastNDays: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d days, want 3", len(got))
	}
	if got[0].Date != "2026-03-08" || got[0].Total != 0 {
		t.Fatalf("first bucket = %+v, want empty 2026-03-08", got[0])
	}
	if got[1].Total != 40 || got[2].Date != "2026-03-10" {
		t.Fatalf("buckets = %+v", got)
	}
}

func TestSalesLastNDaysBucketsByLocalDay(t *testing.T) {
	s, mock := newTestService(t)
	loc := time.FixedZone("BRT", -3*60*60)
	s.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, loc) }

	// sold at 22:00 local on the 9th; the driver returns UTC
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT sold_at, total FROM sales WHERE sold_at >= $1 ORDER BY sold_at ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"sold_at", "total"}).
			AddRow(time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC), 50.0))

	got, err := s.SalesLastNDays(3)
	if err != nil {
		t.Fatalf("SalesLastNDays: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d days, want 3", len(got))
	}
	if got[1].Date != "2026-03-09" || got[1].Total != 50 {
		t.Fatalf("buckets = %+v, want the sale on 2026-03-09", got)
	}
	if got[2].Total != 0 {
		t.Fatalf("sale counted on %s: %+v", got[2].Date, got)
	}
}
