package dashboard

import (
	"sort"
	"time"

	"storemate/m/domain"
)

type RevenueSummary struct {
	Today         float64 `json:"today"`
	Month         float64 `json:"month"`
	PreviousMonth float64 `json:"previous_month"`
	PercentChange float64 `json:"percent_change"`
}

type SalesCountSummary struct {
	Today     int `json:"today"`
	Yesterday int `json:"yesterday"`
	Delta     int `json:"delta"`
}

type ProductSales struct {
	ProductID int64   `json:"id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	Revenue   float64 `json:"revenue"`
}

type LowStockProduct struct {
	ID       int64   `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Quantity float64 `db:"quantity" json:"quantity"`
	Unit     string  `db:"unit" json:"unit"`
}

type ExpiringProduct struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	ExpiryDate string  `json:"expiry_date"`
	DaysLeft   int     `json:"days_left"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
}

type TicketSummary struct {
	Today float64 `json:"today"`
	Month float64 `json:"month"`
}

type DailyRevenue struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
}

// rankProducts groups sale items by product, summing quantity and
// revenue, and orders the result by quantity descending. Ties keep the
// order in which a product was first seen; under concurrent writes the
// row order itself is not deterministic, which is fine for a display
// metric.
func rankProducts(items []domain.SaleItem) []ProductSales {
	index := make(map[int64]int, len(items))
	ranked := make([]ProductSales, 0, len(items))
	for _, item := range items {
		if item.ProductID == 0 {
			continue
		}
		i, ok := index[item.ProductID]
		if !ok {
			i = len(ranked)
			index[item.ProductID] = i
			ranked = append(ranked, ProductSales{ProductID: item.ProductID})
		}
		ranked[i].Quantity += item.Quantity
		ranked[i].Revenue += item.Quantity * item.UnitPrice
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Quantity > ranked[b].Quantity
	})
	return ranked
}

// percentChange returns the relative growth of current over previous in
// percent, and 0 when there is no previous value to compare against.
func percentChange(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// bucketByDay sums sale totals per calendar day over the trailing days
// window ending at now. Every day appears in the output, zero-filled,
// oldest first. Sale timestamps come back from the driver in UTC, so
// each one is read in now's location before picking its day.
func bucketByDay(sales []domain.Sale, days int, now time.Time) []DailyRevenue {
	if days <= 0 {
		return []DailyRevenue{}
	}
	totals := make(map[string]float64, days)
	for _, s := range sales {
		totals[s.SoldAt.In(now.Location()).Format("2006-01-02")] += s.Total
	}
	out := make([]DailyRevenue, 0, days)
	for i := days - 1; i >= 0; i-- {
		key := dayStart(now.AddDate(0, 0, -i)).Format("2006-01-02")
		out = append(out, DailyRevenue{Date: key, Total: totals[key]})
	}
	return out
}

// dayStart returns 00:00:00.000 of t's calendar day.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dayEnd returns 23:59:59.999 of t's calendar day.
func dayEnd(t time.Time) time.Time {
	return dayStart(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// monthStart returns midnight on the first day of t's month.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// daysUntil counts calendar days from today until the expiry date.
// Expiring today yields 0. Expiry is a date column that the driver
// hands back at UTC midnight, so both sides are compared by their own
// calendar day rather than as instants.
func daysUntil(expiry, now time.Time) int {
	e := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(n).Hours() / 24)
}
